package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityKind(t *testing.T) {
	for _, valid := range []string{"school", "student", "request", "college"} {
		kind, err := ParseEntityKind(valid)
		require.NoError(t, err, "%q should parse", valid)
		assert.True(t, kind.Valid())
	}

	for _, invalid := range []string{"", "School", "donor", "requests"} {
		_, err := ParseEntityKind(invalid)
		assert.ErrorIs(t, err, ErrInvalidEntityKind, "%q should be rejected", invalid)
	}
}

func TestEntityKind_AcceptedStatus(t *testing.T) {
	assert.Equal(t, StatusApproved, KindRequest.AcceptedStatus(), "funding requests are approved")
	assert.Equal(t, StatusVerified, KindSchool.AcceptedStatus())
	assert.Equal(t, StatusVerified, KindStudent.AcceptedStatus())
	assert.Equal(t, StatusVerified, KindCollege.AcceptedStatus())
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusVerified.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInReview.Terminal(), "in_review waits for a human decision")
}

func TestParseReviewDecision(t *testing.T) {
	for _, valid := range []string{"approved", "rejected", "needs_more_info"} {
		_, err := ParseReviewDecision(valid)
		require.NoError(t, err, "%q should parse", valid)
	}

	_, err := ParseReviewDecision("maybe")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestReviewDecision_EntityStatus(t *testing.T) {
	tests := []struct {
		decision ReviewDecision
		kind     EntityKind
		want     Status
	}{
		{DecisionApproved, KindSchool, StatusVerified},
		{DecisionApproved, KindRequest, StatusApproved},
		{DecisionRejected, KindStudent, StatusRejected},
		{DecisionRejected, KindRequest, StatusRejected},
		{DecisionNeedsMoreInfo, KindCollege, StatusPending},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.decision.EntityStatus(tt.kind),
			"%s on %s", tt.decision, tt.kind)
	}
}
