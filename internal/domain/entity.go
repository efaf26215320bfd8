// Package domain contains the core types of the verification engine:
// entity kinds and their status vocabulary, verification results, the
// score classifier, and the append-only verification log.
package domain

import (
	"fmt"
	"time"
)

// EntityKind identifies which collection a verifiable entity belongs to.
// Each kind carries its own status vocabulary; funding requests use
// "approved" where the other kinds use "verified".
type EntityKind string

// Supported entity kinds.
const (
	KindSchool  EntityKind = "school"
	KindStudent EntityKind = "student"
	KindRequest EntityKind = "request"
	KindCollege EntityKind = "college"
)

// ParseEntityKind converts a string into an EntityKind.
// It returns ErrInvalidEntityKind for anything outside the supported set.
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case KindSchool, KindStudent, KindRequest, KindCollege:
		return EntityKind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntityKind, s)
	}
}

// String returns the wire representation of the kind.
func (k EntityKind) String() string { return string(k) }

// Valid reports whether the kind is one of the supported entity kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindSchool, KindStudent, KindRequest, KindCollege:
		return true
	}
	return false
}

// AcceptedStatus returns the status label used when an entity of this
// kind passes verification. Funding requests are "approved"; every other
// kind is "verified". This mapping is the single place the kind-specific
// vocabulary lives.
func (k EntityKind) AcceptedStatus() Status {
	if k == KindRequest {
		return StatusApproved
	}
	return StatusVerified
}

// Status is the verification state of an entity.
type Status string

// Entity verification states.
const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in_review"
	StatusVerified Status = "verified"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status is a settled outcome of a
// verification run. StatusInReview is sticky but not terminal: it waits
// for a human decision.
func (s Status) Terminal() bool {
	switch s {
	case StatusVerified, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// VerificationDetails is the result snapshot persisted onto an entity
// after a verification attempt.
type VerificationDetails struct {
	Result     VerificationResult `json:"result"`
	VerifiedAt time.Time          `json:"verified_at"`
}

// Entity is a verifiable record owned by the surrounding CRUD system.
// The verification engine mutates only its status, score, and details;
// everything else is an opaque snapshot forwarded to the scoring oracle.
type Entity struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
	Name string     `json:"name"`

	// Fields holds the flattened attributes relevant to verification:
	// registration numbers, address, contact details, declared amounts.
	Fields map[string]string `json:"fields"`

	// Documents lists opaque URIs of supporting documents. Only the
	// count and the references are forwarded to the oracle; content is
	// never inspected here.
	Documents []string `json:"documents"`

	Status  Status               `json:"status"`
	AIScore int                  `json:"ai_score"`
	Details *VerificationDetails `json:"details,omitempty"`

	// Version is an optimistic concurrency counter. Saves fail with
	// ErrConcurrentModification if the stored version has advanced
	// since the entity was loaded.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
