package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseOrder(t *testing.T) {
	order := []Phase{
		PhaseRegisteringVoters,
		PhaseProposalsRegistrationStarted,
		PhaseProposalsRegistrationEnded,
		PhaseVotingSessionStarted,
		PhaseVotingSessionEnded,
		PhaseVotesTallied,
	}

	for i, p := range order {
		assert.Equal(t, Phase(i), p)
		assert.True(t, p.IsValid())

		next, ok := p.Next()
		if i == len(order)-1 {
			assert.False(t, ok)
			continue
		}
		assert.True(t, ok)
		assert.Equal(t, order[i+1], next)
		assert.True(t, p.CanTransitionTo(next))
		assert.False(t, next.CanTransitionTo(p), "phases never go back")
	}

	assert.False(t, PhaseRegisteringVoters.CanTransitionTo(PhaseProposalsRegistrationEnded))
	assert.False(t, PhaseVotesTallied.CanTransitionTo(PhaseRegisteringVoters))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "RegisteringVoters", PhaseRegisteringVoters.String())
	assert.Equal(t, "VotesTallied", PhaseVotesTallied.String())
	assert.Equal(t, "Unknown", Phase(42).String())
	assert.False(t, Phase(6).IsValid())
}

func TestErrorMessages(t *testing.T) {
	err := &WrongPhaseError{Actual: PhaseVotingSessionEnded, Expected: PhaseVotingSessionStarted}
	assert.Equal(t, "wrong phase: in VotingSessionEnded, requires VotingSessionStarted", err.Error())

	pnf := &ProposalNotFoundError{ProposalID: 999, Count: 3}
	assert.Equal(t, "proposal 999 not found (3 proposals)", pnf.Error())
	assert.NotErrorIs(t, pnf, ErrWrongPhase)
}
