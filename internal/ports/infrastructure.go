// Package ports defines the interfaces between the verification engine
// and its infrastructure: the LLM scoring oracle, the persistence
// stores, and the metrics collector.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/edufund/veriflow/internal/domain"
)

// LLMClient is the narrow boundary to a generative-model provider.
// Implementations handle authentication, request formatting, and
// transport concerns; callers treat the response as untrusted free text.
type LLMClient interface {
	// Complete sends a completion request and returns the raw response
	// text. The options map carries provider-agnostic settings such as
	// "temperature" (float64) and "max_tokens" (int).
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// GetModel returns the model identifier in use, for logging and
	// capability checks.
	GetModel() string
}

// MetricsCollector records operational metrics for verification runs
// and oracle calls. Implementations integrate with Prometheus or other
// monitoring backends.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a distribution metric.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// EntityStore persists verifiable entities. Implementations must
// enforce optimistic versioning: Save fails with
// domain.ErrConcurrentModification when the stored version has advanced
// since the entity was loaded.
type EntityStore interface {
	// Upsert inserts or replaces an entity snapshot from the owning
	// CRUD system. Upserting resets neither logs nor version history.
	Upsert(ctx context.Context, entity *domain.Entity) error

	// Load fetches an entity by kind and id, or domain.ErrNotFound.
	Load(ctx context.Context, kind domain.EntityKind, id string) (domain.Entity, error)

	// Save writes the entity's verification fields back, incrementing
	// its version. Returns domain.ErrConcurrentModification on a
	// version conflict.
	Save(ctx context.Context, entity *domain.Entity) error

	// ListPending returns entities still awaiting verification,
	// oldest first, up to limit.
	ListPending(ctx context.Context, limit int) ([]domain.Entity, error)
}

// LogStore persists the append-only verification audit trail. Records
// are never deleted; the only permitted update is the single
// manual-review transition.
type LogStore interface {
	// Append stores a new log record and returns its id.
	Append(ctx context.Context, log *domain.VerificationLog) (uuid.UUID, error)

	// Get fetches a log by id, or domain.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (domain.VerificationLog, error)

	// SetManualReview applies the manual-review transition: it writes
	// the review block and forces status=completed, type=hybrid.
	// Calling it again overwrites the previous review block.
	SetManualReview(ctx context.Context, id uuid.UUID, review domain.ManualReview) (domain.VerificationLog, error)

	// FindByEntity returns all logs for an entity, most recent first.
	FindByEntity(ctx context.Context, kind domain.EntityKind, entityID string) ([]domain.VerificationLog, error)

	// FindPendingManualReview returns logs awaiting a human decision,
	// most recent first.
	FindPendingManualReview(ctx context.Context) ([]domain.VerificationLog, error)

	// ScoreHistogram aggregates scores into fixed-width buckets.
	ScoreHistogram(ctx context.Context, filter domain.AnalyticsFilter) ([]domain.ScoreBucket, error)

	// FlagCounts aggregates flag frequency, grouping near-duplicate
	// flag strings under one canonical form.
	FlagCounts(ctx context.Context, filter domain.AnalyticsFilter) ([]domain.FlagCount, error)

	// Trend aggregates verification volume and average score per time
	// bucket, oldest first.
	Trend(ctx context.Context, filter domain.AnalyticsFilter, bucket domain.TimeBucket) ([]domain.TrendPoint, error)
}
