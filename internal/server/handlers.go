package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/edufund/veriflow/internal/domain"
	"github.com/edufund/veriflow/internal/ports"
	"github.com/edufund/veriflow/internal/verify"
)

// Pinger reports backend connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	orchestrator *verify.Orchestrator
	entities     ports.EntityStore
	logs         ports.LogStore
	health       Pinger
	logger       *slog.Logger
	maxBody      int64
	validate     *validator.Validate
}

// HandlersDeps bundles the dependencies for NewHandlers. Health is
// optional; a nil Pinger makes /healthz report liveness only.
type HandlersDeps struct {
	Orchestrator *verify.Orchestrator
	Entities     ports.EntityStore
	Logs         ports.LogStore
	Health       Pinger
	Logger       *slog.Logger
	MaxBody      int64
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	maxBody := deps.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		orchestrator: deps.Orchestrator,
		entities:     deps.Entities,
		logs:         deps.Logs,
		health:       deps.Health,
		logger:       deps.Logger,
		maxBody:      maxBody,
		validate:     validator.New(),
	}
}

type upsertEntityRequest struct {
	Name      string            `json:"name" validate:"required,max=512"`
	Fields    map[string]string `json:"fields"`
	Documents []string          `json:"documents" validate:"max=64,dive,max=2048"`
}

// HandleUpsertEntity stores or refreshes an entity snapshot from the
// owning CRUD system. New entities start pending.
func (h *Handlers) HandleUpsertEntity(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseEntityKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_kind", err.Error())
		return
	}

	var req upsertEntityRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	entity := domain.Entity{
		Kind:      kind,
		ID:        r.PathValue("id"),
		Name:      req.Name,
		Fields:    req.Fields,
		Documents: req.Documents,
		Status:    domain.StatusPending,
	}
	if err := h.entities.Upsert(r.Context(), &entity); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entity)
}

// HandleGetEntity returns the current verification state of an entity.
func (h *Handlers) HandleGetEntity(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseEntityKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_kind", err.Error())
		return
	}

	entity, err := h.entities.Load(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entity)
}

// HandleVerify runs one verification attempt for an entity.
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseEntityKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_kind", err.Error())
		return
	}

	outcome, err := h.orchestrator.RunVerification(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, outcome)
}

type reverifyPendingRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=1000"`
}

// HandleReverifyPending re-runs verification for entities stuck in the
// pending state.
func (h *Handlers) HandleReverifyPending(w http.ResponseWriter, r *http.Request) {
	var req reverifyPendingRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	outcomes, err := h.orchestrator.ReverifyPending(r.Context(), req.Limit)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"count":    len(outcomes),
		"outcomes": outcomes,
	})
}

type manualReviewRequest struct {
	ReviewerID string `json:"reviewer_id" validate:"required,max=128"`
	Decision   string `json:"decision" validate:"required"`
	Notes      string `json:"notes" validate:"max=4096"`
}

// HandleManualReview applies a human decision to a verification log.
func (h *Handlers) HandleManualReview(w http.ResponseWriter, r *http.Request) {
	logID, err := uuid.Parse(r.PathValue("log_id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_log_id", "log id must be a UUID")
		return
	}

	var req manualReviewRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	log, err := h.orchestrator.ManualReview(r.Context(), logID,
		req.ReviewerID, domain.ReviewDecision(req.Decision), req.Notes)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, log)
}

// HandleListPendingReviews returns logs awaiting a human decision.
func (h *Handlers) HandleListPendingReviews(w http.ResponseWriter, r *http.Request) {
	logs, err := h.logs.FindPendingManualReview(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"count": len(logs),
		"logs":  logs,
	})
}

// HandleEntityLogs returns the verification history of an entity, most
// recent first.
func (h *Handlers) HandleEntityLogs(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseEntityKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_kind", err.Error())
		return
	}

	logs, err := h.logs.FindByEntity(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"count": len(logs),
		"logs":  logs,
	})
}

// HandleScoreAnalytics returns the score distribution histogram.
func (h *Handlers) HandleScoreAnalytics(w http.ResponseWriter, r *http.Request) {
	filter, err := analyticsFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	buckets, err := h.logs.ScoreHistogram(r.Context(), filter)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"buckets": buckets})
}

// HandleFlagAnalytics returns flag frequencies with near-duplicate
// grouping.
func (h *Handlers) HandleFlagAnalytics(w http.ResponseWriter, r *http.Request) {
	filter, err := analyticsFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	flags, err := h.logs.FlagCounts(r.Context(), filter)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"flags": flags})
}

// HandleTrendAnalytics returns time-bucketed verification volume and
// average scores.
func (h *Handlers) HandleTrendAnalytics(w http.ResponseWriter, r *http.Request) {
	filter, err := analyticsFilterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	bucket := domain.TimeBucket(r.URL.Query().Get("bucket"))
	if bucket == "" {
		bucket = domain.BucketDay
	}
	if !bucket.Valid() {
		writeError(w, r, http.StatusBadRequest, "invalid_filter", "bucket must be day, week, or month")
		return
	}

	points, err := h.logs.Trend(r.Context(), filter, bucket)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"points": points})
}

// HandleHealth reports liveness and, when a Pinger is wired, storage
// connectivity.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func analyticsFilterFromQuery(r *http.Request) (domain.AnalyticsFilter, error) {
	var filter domain.AnalyticsFilter
	q := r.URL.Query()

	if kindStr := q.Get("kind"); kindStr != "" {
		kind, err := domain.ParseEntityKind(kindStr)
		if err != nil {
			return domain.AnalyticsFilter{}, err
		}
		filter.Kind = kind
	}
	if sinceStr := q.Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			return domain.AnalyticsFilter{}, errors.New("since must be RFC 3339")
		}
		filter.Since = since
	}
	return filter, nil
}

func (h *Handlers) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidEntityKind), errors.Is(err, domain.ErrInvalidDecision):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrConcurrentModification):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal server error")
	}
}
