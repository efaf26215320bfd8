package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/edufund/veriflow/internal/domain"
	"github.com/edufund/veriflow/internal/ports"
)

// DefaultBatchConcurrency bounds concurrent oracle calls during batch
// re-verification.
const DefaultBatchConcurrency = 4

// Outcome is what a verification run reports back to the caller.
type Outcome struct {
	Entity               domain.Entity `json:"entity"`
	LogID                uuid.UUID     `json:"log_id"`
	RequiresManualReview bool          `json:"requires_manual_review"`
}

// Orchestrator drives the per-entity verification state machine:
// pending -> in_review -> {verified|approved|rejected|in_review}. It
// owns the only write paths to entity verification state and the audit
// log, including the manual-override transition.
type Orchestrator struct {
	entities ports.EntityStore
	logs     ports.LogStore
	oracle   *Oracle
	metrics  ports.MetricsCollector
	logger   *slog.Logger
	tracer   trace.Tracer

	batchConcurrency int
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMetrics wires in a metrics collector.
func WithMetrics(collector ports.MetricsCollector) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = collector }
}

// WithBatchConcurrency bounds concurrent runs during ReverifyPending.
func WithBatchConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchConcurrency = n
		}
	}
}

// NewOrchestrator builds the verification orchestrator. All
// dependencies are injected; the orchestrator keeps no hidden global
// state.
func NewOrchestrator(
	entities ports.EntityStore,
	logs ports.LogStore,
	oracle *Oracle,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if entities == nil {
		return nil, errors.New("entity store cannot be nil")
	}
	if logs == nil {
		return nil, errors.New("log store cannot be nil")
	}
	if oracle == nil {
		return nil, errors.New("oracle cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		entities:         entities,
		logs:             logs,
		oracle:           oracle,
		logger:           logger,
		tracer:           otel.Tracer("verify-orchestrator"),
		batchConcurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RunVerification executes one verification attempt for the entity.
//
// Oracle and parsing failures are absorbed into fallback results, so
// the entity always reaches a classified state; only persistence
// failures and a missing entity propagate to the caller.
func (o *Orchestrator) RunVerification(ctx context.Context, kind domain.EntityKind, id string) (Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.RunVerification",
		trace.WithAttributes(
			attribute.String("entity.kind", kind.String()),
			attribute.String("entity.id", id),
		),
	)
	defer span.End()

	start := time.Now()

	entity, err := o.entities.Load(ctx, kind, id)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, fmt.Errorf("load %s %s: %w", kind, id, err)
	}

	// Mark the attempt in progress. The transient state is visible to
	// concurrent readers immediately; there is no transaction spanning
	// the oracle round trip.
	entity, err = o.persistEntity(ctx, entity, func(e *domain.Entity) {
		e.Status = domain.StatusInReview
	})
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}

	// Snapshot taken at call time; the entity is not re-read before
	// classification.
	raw, callErr := o.oracle.Score(ctx, entity)
	if callErr != nil {
		o.logger.Warn("oracle call degraded to fallback",
			"kind", kind, "id", id, "error", callErr)
	}

	norm := Normalize(raw, callErr, kind)
	cls := domain.Classify(norm.Result.Score, kind)
	requiresReview := norm.FromFallback || cls.RequiresManualReview

	now := time.Now().UTC()
	entity, err = o.persistEntity(ctx, entity, func(e *domain.Entity) {
		e.Status = cls.Status
		e.AIScore = norm.Result.Score
		e.Details = &domain.VerificationDetails{Result: norm.Result, VerifiedAt: now}
	})
	if err != nil {
		span.RecordError(err)
		return Outcome{}, err
	}

	log := &domain.VerificationLog{
		EntityKind:        kind,
		EntityID:          id,
		Type:              domain.TypeAIAutomated,
		AIScore:           norm.Result.Score,
		Analysis:          norm.Result,
		DocumentsAnalyzed: entity.Documents,
		Status:            domain.LogCompleted,
		CreatedAt:         now,
	}
	if requiresReview {
		log.Type = domain.TypeHybrid
		log.Status = domain.LogPendingManualReview
	}

	logID, err := o.logs.Append(ctx, log)
	if err != nil {
		span.RecordError(err)
		return Outcome{}, fmt.Errorf("append verification log: %w", err)
	}

	o.recordRunMetrics(kind, cls.Status, norm, time.Since(start))
	span.SetAttributes(
		attribute.Int("verification.score", norm.Result.Score),
		attribute.String("verification.status", string(cls.Status)),
		attribute.Bool("verification.fallback", norm.FromFallback),
		attribute.Bool("verification.requires_manual_review", requiresReview),
	)
	o.logger.Info("verification completed",
		"kind", kind, "id", id,
		"score", norm.Result.Score,
		"status", cls.Status,
		"requires_manual_review", requiresReview,
		"log_id", logID)

	return Outcome{Entity: entity, LogID: logID, RequiresManualReview: requiresReview}, nil
}

// ManualReview applies a human decision to a verification log and maps
// it onto the entity's status. It can reverse an automated rejection or
// revoke an automated acceptance. Calling it twice overwrites the
// review block; no override history is kept.
func (o *Orchestrator) ManualReview(
	ctx context.Context,
	logID uuid.UUID,
	reviewerID string,
	decision domain.ReviewDecision,
	notes string,
) (domain.VerificationLog, error) {
	if _, err := domain.ParseReviewDecision(string(decision)); err != nil {
		return domain.VerificationLog{}, err
	}

	log, err := o.logs.Get(ctx, logID)
	if err != nil {
		return domain.VerificationLog{}, fmt.Errorf("load verification log %s: %w", logID, err)
	}

	review := domain.ManualReview{
		ReviewerID:    reviewerID,
		Notes:         notes,
		FinalDecision: decision,
		ReviewedAt:    time.Now().UTC(),
	}
	updated, err := o.logs.SetManualReview(ctx, log.ID, review)
	if err != nil {
		return domain.VerificationLog{}, fmt.Errorf("record manual review: %w", err)
	}

	entity, err := o.entities.Load(ctx, log.EntityKind, log.EntityID)
	if err != nil {
		return domain.VerificationLog{}, fmt.Errorf("load %s %s: %w", log.EntityKind, log.EntityID, err)
	}

	status := decision.EntityStatus(log.EntityKind)
	if _, err := o.persistEntity(ctx, entity, func(e *domain.Entity) {
		e.Status = status
	}); err != nil {
		return domain.VerificationLog{}, err
	}

	o.logger.Info("manual review applied",
		"log_id", logID,
		"reviewer", reviewerID,
		"decision", decision,
		"entity_status", status)
	if o.metrics != nil {
		o.metrics.RecordCounter("manual_reviews_total", 1, map[string]string{
			"kind":     log.EntityKind.String(),
			"decision": string(decision),
		})
	}

	return updated, nil
}

// ReverifyPending re-runs verification for entities still in the
// pending state, bounding oracle concurrency. Runs for different
// entities are independent; a failed run aborts the batch and reports
// the first error.
func (o *Orchestrator) ReverifyPending(ctx context.Context, limit int) ([]Outcome, error) {
	pending, err := o.entities.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending entities: %w", err)
	}

	outcomes := make([]Outcome, len(pending))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.batchConcurrency)

	for i, entity := range pending {
		g.Go(func() error {
			outcome, err := o.RunVerification(gctx, entity.Kind, entity.ID)
			if err != nil {
				return err
			}
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// persistEntity applies a mutation and saves, retrying once after an
// optimistic-version conflict by reloading and reapplying. A second
// conflict propagates as ErrConcurrentModification.
func (o *Orchestrator) persistEntity(
	ctx context.Context,
	entity domain.Entity,
	apply func(*domain.Entity),
) (domain.Entity, error) {
	apply(&entity)
	err := o.entities.Save(ctx, &entity)
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, domain.ErrConcurrentModification) {
		return domain.Entity{}, fmt.Errorf("save %s %s: %w", entity.Kind, entity.ID, err)
	}

	reloaded, err := o.entities.Load(ctx, entity.Kind, entity.ID)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("reload %s %s after conflict: %w", entity.Kind, entity.ID, err)
	}
	apply(&reloaded)
	if err := o.entities.Save(ctx, &reloaded); err != nil {
		return domain.Entity{}, fmt.Errorf("save %s %s: %w", entity.Kind, entity.ID, err)
	}
	return reloaded, nil
}

func (o *Orchestrator) recordRunMetrics(kind domain.EntityKind, status domain.Status, norm Normalized, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	labels := map[string]string{
		"kind":     kind.String(),
		"status":   string(status),
		"fallback": strconv.FormatBool(norm.FromFallback),
	}
	o.metrics.RecordCounter("verification_runs_total", 1, labels)
	o.metrics.RecordHistogram("verification_score", float64(norm.Result.Score), labels)
	o.metrics.RecordLatency("run_verification", elapsed, labels)
}
