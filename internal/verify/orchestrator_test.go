package verify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edufund/veriflow/infrastructure/llm"
	"github.com/edufund/veriflow/internal/domain"
	"github.com/edufund/veriflow/internal/ports"
	"github.com/edufund/veriflow/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, store *storage.Memory, mock *llm.MockCoreLLM) *Orchestrator {
	t.Helper()

	var client ports.LLMClient
	if mock != nil {
		client = llm.NewClientFromCore(mock)
	}
	oracle, err := NewOracle(client, OracleConfig{})
	require.NoError(t, err)

	orch, err := NewOrchestrator(store, store, oracle, discardLogger())
	require.NoError(t, err)
	return orch
}

func seedEntity(t *testing.T, store *storage.Memory, kind domain.EntityKind, id string) domain.Entity {
	t.Helper()
	entity := domain.Entity{
		Kind:   kind,
		ID:     id,
		Name:   "Test " + id,
		Status: domain.StatusPending,
	}
	require.NoError(t, store.Upsert(context.Background(), &entity))
	return entity
}

func TestRunVerification_HighScoreVerifies(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Response = `{"score": 91, "keyFindings": ["Registration confirmed"], "confidence": 88}`
	orch := newTestOrchestrator(t, store, mock)
	seedEntity(t, store, domain.KindSchool, "sch-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindSchool, "sch-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusVerified, outcome.Entity.Status)
	assert.Equal(t, 91, outcome.Entity.AIScore)
	assert.False(t, outcome.RequiresManualReview)
	require.NotNil(t, outcome.Entity.Details)
	assert.Equal(t, 91, outcome.Entity.Details.Result.Score)
	assert.False(t, outcome.Entity.Details.VerifiedAt.IsZero())

	log, err := store.Get(context.Background(), outcome.LogID)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeAIAutomated, log.Type)
	assert.Equal(t, domain.LogCompleted, log.Status)
	assert.Equal(t, 91, log.AIScore)
	assert.Nil(t, log.ManualReview)
}

func TestRunVerification_HighScoreApprovesFundingRequest(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Response = `{"score": 84}`
	orch := newTestOrchestrator(t, store, mock)
	seedEntity(t, store, domain.KindRequest, "req-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindRequest, "req-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusApproved, outcome.Entity.Status, "funding requests use the approved label")
}

func TestRunVerification_MiddleBandNeedsManualReview(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Response = `{"score": 65, "flags": ["Address could not be confirmed"]}`
	orch := newTestOrchestrator(t, store, mock)
	seedEntity(t, store, domain.KindStudent, "stu-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindStudent, "stu-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusInReview, outcome.Entity.Status)
	assert.True(t, outcome.RequiresManualReview)

	log, err := store.Get(context.Background(), outcome.LogID)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeHybrid, log.Type)
	assert.Equal(t, domain.LogPendingManualReview, log.Status)
}

func TestRunVerification_LowScoreRejects(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Response = `{"score": 12, "flags": ["Registration number is fabricated"]}`
	orch := newTestOrchestrator(t, store, mock)
	seedEntity(t, store, domain.KindCollege, "col-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindCollege, "col-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRejected, outcome.Entity.Status)
	assert.False(t, outcome.RequiresManualReview)
}

func TestRunVerification_UnavailableOracleLandsInReview(t *testing.T) {
	store := storage.NewMemory()
	orch := newTestOrchestrator(t, store, nil) // no oracle client
	seedEntity(t, store, domain.KindSchool, "sch-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindSchool, "sch-1")
	require.NoError(t, err)

	assert.Equal(t, 50, outcome.Entity.AIScore, "neutral fallback score")
	assert.Equal(t, domain.StatusInReview, outcome.Entity.Status)
	assert.True(t, outcome.RequiresManualReview)
	assert.Contains(t, outcome.Entity.Details.Result.Flags, FlagOracleUnavailable)
}

func TestRunVerification_FailedCallRejectsWithReviewFlag(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Err = llm.NewProviderError("mock", llm.ErrorTypeServerError, 500, "boom", nil)
	orch := newTestOrchestrator(t, store, mock)
	seedEntity(t, store, domain.KindStudent, "stu-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindStudent, "stu-1")
	require.NoError(t, err, "oracle failures must not fail the run")

	assert.Equal(t, 0, outcome.Entity.AIScore, "a failed call attempt is penalized")
	assert.Equal(t, domain.StatusRejected, outcome.Entity.Status)
	assert.True(t, outcome.RequiresManualReview, "fallback outcomes always need a human look")
	assert.Contains(t, outcome.Entity.Details.Result.Flags, FlagSystemError)

	log, err := store.Get(context.Background(), outcome.LogID)
	require.NoError(t, err)
	assert.Equal(t, domain.TypeHybrid, log.Type)
	assert.Equal(t, domain.LogPendingManualReview, log.Status)
}

func TestRunVerification_UnknownEntity(t *testing.T) {
	store := storage.NewMemory()
	orch := newTestOrchestrator(t, store, llm.NewMockCoreLLM())

	_, err := orch.RunVerification(context.Background(), domain.KindSchool, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunVerification_RetriesOnceOnVersionConflict(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Response = `{"score": 90}`

	conflicting := &conflictOnceStore{Memory: store}
	oracle, err := NewOracle(llm.NewClientFromCore(mock), OracleConfig{})
	require.NoError(t, err)
	orch, err := NewOrchestrator(conflicting, store, oracle, discardLogger())
	require.NoError(t, err)

	seedEntity(t, store, domain.KindSchool, "sch-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindSchool, "sch-1")
	require.NoError(t, err, "one conflict should be absorbed by the retry")
	assert.Equal(t, domain.StatusVerified, outcome.Entity.Status)
	assert.True(t, conflicting.conflicted, "the injected conflict should have fired")
}

func TestManualReview_ApprovalOverridesRejection(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Response = `{"score": 30}`
	orch := newTestOrchestrator(t, store, mock)
	seedEntity(t, store, domain.KindSchool, "sch-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindSchool, "sch-1")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, outcome.Entity.Status)

	log, err := orch.ManualReview(context.Background(), outcome.LogID, "reviewer-7", domain.DecisionApproved, "Registration verified by phone")
	require.NoError(t, err)

	assert.Equal(t, domain.LogCompleted, log.Status)
	assert.Equal(t, domain.TypeHybrid, log.Type)
	require.NotNil(t, log.ManualReview)
	assert.Equal(t, "reviewer-7", log.ManualReview.ReviewerID)
	assert.Equal(t, domain.DecisionApproved, log.ManualReview.FinalDecision)

	entity, err := store.Load(context.Background(), domain.KindSchool, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, entity.Status, "approval reverses the automated rejection")
}

func TestManualReview_SecondCallOverwrites(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Response = `{"score": 60}`
	orch := newTestOrchestrator(t, store, mock)
	seedEntity(t, store, domain.KindRequest, "req-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindRequest, "req-1")
	require.NoError(t, err)

	_, err = orch.ManualReview(context.Background(), outcome.LogID, "reviewer-1", domain.DecisionApproved, "")
	require.NoError(t, err)

	log, err := orch.ManualReview(context.Background(), outcome.LogID, "reviewer-2", domain.DecisionRejected, "Amount is disproportionate")
	require.NoError(t, err)

	require.NotNil(t, log.ManualReview)
	assert.Equal(t, "reviewer-2", log.ManualReview.ReviewerID, "the review block is overwritten in place")
	assert.Equal(t, domain.DecisionRejected, log.ManualReview.FinalDecision)

	entity, err := store.Load(context.Background(), domain.KindRequest, "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, entity.Status)
}

func TestManualReview_NeedsMoreInfoResetsToPending(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Response = `{"score": 55}`
	orch := newTestOrchestrator(t, store, mock)
	seedEntity(t, store, domain.KindStudent, "stu-1")

	outcome, err := orch.RunVerification(context.Background(), domain.KindStudent, "stu-1")
	require.NoError(t, err)

	_, err = orch.ManualReview(context.Background(), outcome.LogID, "reviewer-1", domain.DecisionNeedsMoreInfo, "Ask for an enrollment letter")
	require.NoError(t, err)

	entity, err := store.Load(context.Background(), domain.KindStudent, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, entity.Status, "needs_more_info sends the entity back to pending")
}

func TestManualReview_InvalidDecision(t *testing.T) {
	store := storage.NewMemory()
	orch := newTestOrchestrator(t, store, llm.NewMockCoreLLM())

	_, err := orch.ManualReview(context.Background(), uuid.New(), "reviewer-1", domain.ReviewDecision("maybe"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidDecision)
}

func TestManualReview_UnknownLog(t *testing.T) {
	store := storage.NewMemory()
	orch := newTestOrchestrator(t, store, llm.NewMockCoreLLM())

	_, err := orch.ManualReview(context.Background(), uuid.New(), "reviewer-1", domain.DecisionApproved, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReverifyPending(t *testing.T) {
	store := storage.NewMemory()
	mock := llm.NewMockCoreLLM()
	mock.Response = `{"score": 85}`
	orch := newTestOrchestrator(t, store, mock)

	seedEntity(t, store, domain.KindSchool, "sch-1")
	seedEntity(t, store, domain.KindStudent, "stu-1")
	seedEntity(t, store, domain.KindRequest, "req-1")

	// An already verified entity must not be picked up again.
	verified := seedEntity(t, store, domain.KindCollege, "col-1")
	verified.Status = domain.StatusVerified
	require.NoError(t, store.Save(context.Background(), &verified))

	outcomes, err := orch.ReverifyPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	for _, outcome := range outcomes {
		assert.NotEqual(t, domain.StatusPending, outcome.Entity.Status, "no entity stays pending after a run")
	}

	remaining, err := store.ListPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

// conflictOnceStore injects a single optimistic-version conflict on the
// first Save, then delegates.
type conflictOnceStore struct {
	*storage.Memory
	conflicted bool
}

func (c *conflictOnceStore) Save(ctx context.Context, entity *domain.Entity) error {
	if !c.conflicted {
		c.conflicted = true
		return fmt.Errorf("storage: %s %s: %w", entity.Kind, entity.ID, domain.ErrConcurrentModification)
	}
	return c.Memory.Save(ctx, entity)
}
