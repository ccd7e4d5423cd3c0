package pipeline

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFollowsPipelineGraph(t *testing.T) {
	tests := []struct {
		action Action
		from   Status
		to     Status
	}{
		{ActionCompleteAssessment, StatusAssessmentPending, StatusAssessmentCompleted},
		{ActionScheduleOrientation, StatusAssessmentCompleted, StatusOrientationScheduled},
		{ActionCompleteOrientation, StatusOrientationScheduled, StatusOrientationCompleted},
		{ActionIssueBusinessForm, StatusOrientationCompleted, StatusBusinessFormPending},
		{ActionSubmitBusinessForm, StatusBusinessFormPending, StatusBusinessFormSubmitted},
		{ActionScheduleInterview, StatusBusinessFormSubmitted, StatusInterviewScheduled},
		{ActionApprove, StatusInterviewScheduled, StatusApproved},
		{ActionRejectInterview, StatusInterviewScheduled, StatusRejected},
		{ActionIssueAcceptance, StatusApproved, StatusAcceptancePending},
		{ActionAcceptOffer, StatusAcceptancePending, StatusPaymentPending},
		{ActionRecordPayment, StatusPaymentPending, StatusPaymentCompleted},
		{ActionCreateAccount, StatusPaymentCompleted, StatusAccountCreated},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			got, err := Next(tt.action, tt.from)
			require.NoError(t, err)
			assert.Equal(t, tt.to, got)
		})
	}
}

func TestNextRejectsEveryUnlistedPair(t *testing.T) {
	for _, action := range actionOrder {
		for _, from := range Statuses {
			_, listed := transitions[action][from]
			_, err := Next(action, from)
			if listed {
				assert.NoError(t, err, "%s from %s", action, from)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s from %s", action, from)
			}
		}
	}
}

func TestTerminalStatusesAllowNothing(t *testing.T) {
	for _, s := range []Status{StatusRejected, StatusAccountCreated} {
		assert.True(t, s.Terminal())
		assert.Empty(t, Allowed(s))
	}
}

func TestRejectReachableFromEveryNonTerminalStatus(t *testing.T) {
	for _, s := range Statuses {
		if s.Terminal() {
			continue
		}
		got, err := Next(ActionReject, s)
		require.NoError(t, err, s)
		assert.Equal(t, StatusRejected, got)
		assert.Contains(t, Allowed(s), ActionReject)
	}
}

func TestPipelineOnlyMovesForward(t *testing.T) {
	rank := make(map[Status]int, len(Statuses))
	for i, s := range Statuses {
		rank[s] = i
	}
	for action, edges := range transitions {
		if action == ActionReject || action == ActionRejectInterview {
			continue
		}
		for from, to := range edges {
			assert.Greater(t, rank[to], rank[from], "%s: %s -> %s", action, from, to)
		}
	}
}

func TestTokensAreURLSafeAndDistinct(t *testing.T) {
	gen := NewTokenGenerator(32)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, err := gen.NewToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err)
		assert.Len(t, raw, 32)

		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestTokenGeneratorEnforcesMinimumSize(t *testing.T) {
	tok, err := NewTokenGenerator(4).NewToken()
	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}
