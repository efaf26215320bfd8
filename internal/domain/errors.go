package domain

import "errors"

// Sentinel errors shared across the verification engine. Oracle-side
// failures never surface through these; they are absorbed into fallback
// results by the normalizer.
var (
	// ErrNotFound indicates a missing entity or verification log.
	ErrNotFound = errors.New("not found")

	// ErrInvalidEntityKind indicates a kind outside the supported set.
	ErrInvalidEntityKind = errors.New("invalid entity kind")

	// ErrInvalidDecision indicates a manual-review decision outside the
	// enumerated set. No entity or log mutation occurs.
	ErrInvalidDecision = errors.New("invalid review decision")

	// ErrConcurrentModification indicates an optimistic-version
	// conflict: the entity changed between load and save.
	ErrConcurrentModification = errors.New("concurrent modification")
)
