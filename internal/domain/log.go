package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VerificationType distinguishes how a verification attempt concluded.
type VerificationType string

const (
	// TypeAIAutomated marks a run decided entirely by the classifier.
	TypeAIAutomated VerificationType = "ai_automated"
	// TypeManualReview marks a record created directly by a reviewer.
	TypeManualReview VerificationType = "manual_review"
	// TypeHybrid marks an automated run that required, or later
	// received, a human decision.
	TypeHybrid VerificationType = "hybrid"
)

// LogStatus is the lifecycle state of a verification log record.
type LogStatus string

const (
	// LogCompleted means no further action is expected.
	LogCompleted LogStatus = "completed"
	// LogPendingManualReview means a human decision is outstanding.
	LogPendingManualReview LogStatus = "pending_manual_review"
	// LogFlagged marks a record set aside for out-of-band attention.
	LogFlagged LogStatus = "flagged"
)

// ReviewDecision is the verdict a human reviewer records on a log.
type ReviewDecision string

const (
	DecisionApproved      ReviewDecision = "approved"
	DecisionRejected      ReviewDecision = "rejected"
	DecisionNeedsMoreInfo ReviewDecision = "needs_more_info"
)

// ParseReviewDecision converts a string into a ReviewDecision, returning
// ErrInvalidDecision for anything outside the enumerated set.
func ParseReviewDecision(s string) (ReviewDecision, error) {
	switch ReviewDecision(s) {
	case DecisionApproved, DecisionRejected, DecisionNeedsMoreInfo:
		return ReviewDecision(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

// EntityStatus maps a review decision onto the entity's status field for
// the given kind. Approval uses the kind-specific accepted label; a
// needs_more_info decision sends the entity back to pending.
func (d ReviewDecision) EntityStatus(kind EntityKind) Status {
	switch d {
	case DecisionApproved:
		return kind.AcceptedStatus()
	case DecisionRejected:
		return StatusRejected
	default:
		return StatusPending
	}
}

// ManualReview is the human-override block on a verification log.
// Calling the override twice overwrites this block in place; no history
// of prior overrides is kept.
type ManualReview struct {
	ReviewerID    string         `json:"reviewer_id"`
	Notes         string         `json:"notes,omitempty"`
	FinalDecision ReviewDecision `json:"final_decision"`
	ReviewedAt    time.Time      `json:"reviewed_at"`
}

// VerificationLog is the append-only audit record of one verification
// attempt. All fields except the manual-review transition (ManualReview,
// Status, Type) are write-once at creation.
type VerificationLog struct {
	ID         uuid.UUID        `json:"id"`
	EntityKind EntityKind       `json:"entity_kind"`
	EntityID   string           `json:"entity_id"`
	Type       VerificationType `json:"verification_type"`

	AIScore  int                `json:"ai_score"`
	Analysis VerificationResult `json:"analysis"`

	// DocumentsAnalyzed records the document URIs forwarded to the
	// oracle for this attempt.
	DocumentsAnalyzed []string `json:"documents_analyzed,omitempty"`

	Status       LogStatus     `json:"status"`
	ManualReview *ManualReview `json:"manual_review,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
