package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		score          int
		kind           EntityKind
		wantStatus     Status
		wantNeedReview bool
	}{
		{
			name:       "high score verifies a school",
			score:      92,
			kind:       KindSchool,
			wantStatus: StatusVerified,
		},
		{
			name:       "accept threshold is inclusive",
			score:      80,
			kind:       KindStudent,
			wantStatus: StatusVerified,
		},
		{
			name:       "high score approves a funding request",
			score:      85,
			kind:       KindRequest,
			wantStatus: StatusApproved,
		},
		{
			name:           "middle band lands in manual review",
			score:          65,
			kind:           KindCollege,
			wantStatus:     StatusInReview,
			wantNeedReview: true,
		},
		{
			name:           "review threshold is inclusive",
			score:          50,
			kind:           KindSchool,
			wantStatus:     StatusInReview,
			wantNeedReview: true,
		},
		{
			name:           "just below accept threshold stays in review",
			score:          79,
			kind:           KindRequest,
			wantStatus:     StatusInReview,
			wantNeedReview: true,
		},
		{
			name:       "low score rejects",
			score:      49,
			kind:       KindStudent,
			wantStatus: StatusRejected,
		},
		{
			name:       "zero score rejects",
			score:      0,
			kind:       KindRequest,
			wantStatus: StatusRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.score, tt.kind)
			assert.Equal(t, tt.wantStatus, got.Status, "status should match")
			assert.Equal(t, tt.wantNeedReview, got.RequiresManualReview, "manual review flag should match")
		})
	}
}

func TestClassify_EveryScoreGetsAStatus(t *testing.T) {
	// The classifier must never leave an entity without a decision.
	for score := 0; score <= 100; score++ {
		got := Classify(score, KindSchool)
		assert.NotEmpty(t, got.Status, "score %d should classify", score)
		if got.Status == StatusInReview {
			assert.True(t, got.RequiresManualReview, "score %d in review band must flag manual review", score)
		}
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 100, ClampScore(150), "over-range scores clamp to 100")
	assert.Equal(t, 0, ClampScore(-10), "negative scores clamp to 0")
	assert.Equal(t, 73, ClampScore(73), "in-range scores pass through")
	assert.Equal(t, 0, ClampScore(0))
	assert.Equal(t, 100, ClampScore(100))
}
