package domain

// Score thresholds for automated status classification. These are the
// single source of truth; no other code may re-encode them.
const (
	// AcceptThreshold is the minimum score for automatic acceptance.
	AcceptThreshold = 80
	// ReviewThreshold is the minimum score for the manual-review band.
	// Scores below it are rejected automatically.
	ReviewThreshold = 50
)

// Classification is the outcome of mapping a score onto the status
// state machine.
type Classification struct {
	Status               Status
	RequiresManualReview bool
}

// Classify maps a normalized score to a verification status for the
// given entity kind. It is a pure function:
//
//	score >= 80        -> verified (approved for funding requests)
//	50 <= score < 80   -> in_review, flagged for manual review
//	score < 50         -> rejected
func Classify(score int, kind EntityKind) Classification {
	switch {
	case score >= AcceptThreshold:
		return Classification{Status: kind.AcceptedStatus()}
	case score >= ReviewThreshold:
		return Classification{Status: StatusInReview, RequiresManualReview: true}
	default:
		return Classification{Status: StatusRejected}
	}
}
