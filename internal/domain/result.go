package domain

// VerificationResult is the canonical, normalized outcome of a single
// scoring-oracle call. It is produced fresh on every verification
// attempt and never mutated afterwards.
type VerificationResult struct {
	// Score is the overall verification score, clamped to [0, 100].
	Score int `json:"score"`

	// SubScores breaks the overall score down by aspect, each clamped
	// to [0, 100]. Keys depend on the entity kind (e.g. "legitimacy",
	// "documentation", "consistency").
	SubScores map[string]int `json:"sub_scores,omitempty"`

	// Narratives carries free-text assessments keyed by aspect.
	Narratives map[string]string `json:"narratives,omitempty"`

	// KeyFindings lists notable observations supporting the score.
	KeyFindings []string `json:"key_findings,omitempty"`

	// Flags lists concerns that warrant attention. Fallback results use
	// well-known flag strings (see the normalizer).
	Flags []string `json:"flags,omitempty"`

	// Recommendations is the oracle's suggested follow-up, if any.
	Recommendations string `json:"recommendations,omitempty"`

	// Confidence is the oracle's self-reported confidence in [0, 100].
	// When the oracle omits it, it defaults to the score itself.
	Confidence int `json:"confidence"`
}

// ClampScore restricts a score to the inclusive [0, 100] range.
// Out-of-range oracle values are clamped rather than rejected.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
