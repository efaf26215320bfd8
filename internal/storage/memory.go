package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edufund/veriflow/internal/domain"
)

// Memory is an in-process implementation of ports.EntityStore and
// ports.LogStore. It backs tests and local development; semantics match
// the Postgres implementation, including optimistic versioning and the
// analytics aggregates.
type Memory struct {
	mu       sync.RWMutex
	entities map[entityKey]domain.Entity
	logs     map[uuid.UUID]domain.VerificationLog
}

type entityKey struct {
	kind domain.EntityKind
	id   string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entities: make(map[entityKey]domain.Entity),
		logs:     make(map[uuid.UUID]domain.VerificationLog),
	}
}

// Upsert inserts or replaces an entity snapshot, preserving the stored
// version counter on replace.
func (m *Memory) Upsert(_ context.Context, entity *domain.Entity) error {
	if !entity.Kind.Valid() {
		return fmt.Errorf("storage: upsert entity: %w", domain.ErrInvalidEntityKind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := entityKey{kind: entity.Kind, id: entity.ID}
	if existing, ok := m.entities[key]; ok {
		entity.Version = existing.Version
		entity.CreatedAt = existing.CreatedAt
	} else if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	entity.UpdatedAt = now
	if entity.Status == "" {
		entity.Status = domain.StatusPending
	}

	m.entities[key] = cloneEntity(*entity)
	return nil
}

// Load fetches an entity by kind and id.
func (m *Memory) Load(_ context.Context, kind domain.EntityKind, id string) (domain.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.entities[entityKey{kind: kind, id: id}]
	if !ok {
		return domain.Entity{}, fmt.Errorf("storage: %s %s: %w", kind, id, domain.ErrNotFound)
	}
	return cloneEntity(entity), nil
}

// Save writes the verification fields back under optimistic versioning.
func (m *Memory) Save(_ context.Context, entity *domain.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := entityKey{kind: entity.Kind, id: entity.ID}
	stored, ok := m.entities[key]
	if !ok {
		return fmt.Errorf("storage: %s %s: %w", entity.Kind, entity.ID, domain.ErrNotFound)
	}
	if stored.Version != entity.Version {
		return fmt.Errorf("storage: %s %s: %w", entity.Kind, entity.ID, domain.ErrConcurrentModification)
	}

	stored.Status = entity.Status
	stored.AIScore = entity.AIScore
	stored.Details = entity.Details
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	m.entities[key] = cloneEntity(stored)

	entity.Version = stored.Version
	entity.UpdatedAt = stored.UpdatedAt
	return nil
}

// ListPending returns pending entities, oldest first.
func (m *Memory) ListPending(_ context.Context, limit int) ([]domain.Entity, error) {
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []domain.Entity
	for _, entity := range m.entities {
		if entity.Status == domain.StatusPending {
			pending = append(pending, cloneEntity(entity))
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Append stores a new verification log record.
func (m *Memory) Append(_ context.Context, log *domain.VerificationLog) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	m.logs[log.ID] = cloneLog(*log)
	return log.ID, nil
}

// Get fetches a log record by id.
func (m *Memory) Get(_ context.Context, id uuid.UUID) (domain.VerificationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log, ok := m.logs[id]
	if !ok {
		return domain.VerificationLog{}, fmt.Errorf("storage: verification log %s: %w", id, domain.ErrNotFound)
	}
	return cloneLog(log), nil
}

// SetManualReview applies the manual-review transition.
func (m *Memory) SetManualReview(_ context.Context, id uuid.UUID, review domain.ManualReview) (domain.VerificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log, ok := m.logs[id]
	if !ok {
		return domain.VerificationLog{}, fmt.Errorf("storage: verification log %s: %w", id, domain.ErrNotFound)
	}

	log.ManualReview = &review
	log.Status = domain.LogCompleted
	log.Type = domain.TypeHybrid
	m.logs[id] = cloneLog(log)
	return cloneLog(log), nil
}

// FindByEntity returns all logs for an entity, most recent first.
func (m *Memory) FindByEntity(_ context.Context, kind domain.EntityKind, entityID string) ([]domain.VerificationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var logs []domain.VerificationLog
	for _, log := range m.logs {
		if log.EntityKind == kind && log.EntityID == entityID {
			logs = append(logs, cloneLog(log))
		}
	}
	sortLogsDesc(logs)
	return logs, nil
}

// FindPendingManualReview returns logs awaiting a human decision, most
// recent first.
func (m *Memory) FindPendingManualReview(_ context.Context) ([]domain.VerificationLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var logs []domain.VerificationLog
	for _, log := range m.logs {
		if log.Status == domain.LogPendingManualReview {
			logs = append(logs, cloneLog(log))
		}
	}
	sortLogsDesc(logs)
	return logs, nil
}

// ScoreHistogram aggregates scores into fixed-width buckets.
func (m *Memory) ScoreHistogram(_ context.Context, filter domain.AnalyticsFilter) ([]domain.ScoreBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[int]int64)
	for _, log := range m.logs {
		if !matchesFilter(log, filter) {
			continue
		}
		bucket := log.AIScore / scoreBucketWidth
		if bucket > 9 {
			bucket = 9
		}
		counts[bucket]++
	}
	return fillScoreBuckets(counts), nil
}

// FlagCounts aggregates flag frequency with near-duplicate grouping.
func (m *Memory) FlagCounts(_ context.Context, filter domain.AnalyticsFilter) ([]domain.FlagCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var flags []string
	for _, log := range m.logs {
		if !matchesFilter(log, filter) {
			continue
		}
		flags = append(flags, log.Analysis.Flags...)
	}
	return groupFlags(flags), nil
}

// Trend aggregates verification volume and average score per time
// bucket, oldest first.
func (m *Memory) Trend(_ context.Context, filter domain.AnalyticsFilter, bucket domain.TimeBucket) ([]domain.TrendPoint, error) {
	if !bucket.Valid() {
		bucket = domain.BucketDay
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type agg struct {
		count int64
		sum   int64
	}
	aggs := make(map[time.Time]*agg)
	for _, log := range m.logs {
		if !matchesFilter(log, filter) {
			continue
		}
		start := truncateToBucket(log.CreatedAt, bucket)
		a, ok := aggs[start]
		if !ok {
			a = &agg{}
			aggs[start] = a
		}
		a.count++
		a.sum += int64(log.AIScore)
	}

	points := make([]domain.TrendPoint, 0, len(aggs))
	for start, a := range aggs {
		points = append(points, domain.TrendPoint{
			Start:    start,
			Count:    a.count,
			AvgScore: float64(a.sum) / float64(a.count),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Start.Before(points[j].Start)
	})
	return points, nil
}

func matchesFilter(log domain.VerificationLog, filter domain.AnalyticsFilter) bool {
	if filter.Kind != "" && log.EntityKind != filter.Kind {
		return false
	}
	if !filter.Since.IsZero() && log.CreatedAt.Before(filter.Since) {
		return false
	}
	return true
}

// truncateToBucket matches Postgres date_trunc semantics: weeks start
// on Monday, months on the first.
func truncateToBucket(t time.Time, bucket domain.TimeBucket) time.Time {
	t = t.UTC()
	switch bucket {
	case domain.BucketWeek:
		day := t.Truncate(24 * time.Hour)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case domain.BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(24 * time.Hour)
	}
}

func sortLogsDesc(logs []domain.VerificationLog) {
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].CreatedAt.Equal(logs[j].CreatedAt) {
			return logs[i].CreatedAt.After(logs[j].CreatedAt)
		}
		return logs[i].ID.String() > logs[j].ID.String()
	})
}

func cloneEntity(e domain.Entity) domain.Entity {
	if e.Fields != nil {
		fields := make(map[string]string, len(e.Fields))
		for k, v := range e.Fields {
			fields[k] = v
		}
		e.Fields = fields
	}
	e.Documents = append([]string(nil), e.Documents...)
	if e.Details != nil {
		details := *e.Details
		e.Details = &details
	}
	return e
}

func cloneLog(l domain.VerificationLog) domain.VerificationLog {
	l.DocumentsAnalyzed = append([]string(nil), l.DocumentsAnalyzed...)
	if l.ManualReview != nil {
		review := *l.ManualReview
		l.ManualReview = &review
	}
	return l
}
