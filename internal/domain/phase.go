package domain

// Phase represents the current stage of the election workflow
type Phase uint8

const (
	PhaseRegisteringVoters            Phase = iota // Admin registers eligible voters
	PhaseProposalsRegistrationStarted              // Voters submit proposals
	PhaseProposalsRegistrationEnded                // Proposals are frozen
	PhaseVotingSessionStarted                      // Voters cast ballots
	PhaseVotingSessionEnded                        // Ballots are frozen
	PhaseVotesTallied                              // Winner is final
)

var phaseNames = [...]string{
	PhaseRegisteringVoters:            "RegisteringVoters",
	PhaseProposalsRegistrationStarted: "ProposalsRegistrationStarted",
	PhaseProposalsRegistrationEnded:   "ProposalsRegistrationEnded",
	PhaseVotingSessionStarted:         "VotingSessionStarted",
	PhaseVotingSessionEnded:           "VotingSessionEnded",
	PhaseVotesTallied:                 "VotesTallied",
}

// String returns the display name of the phase
func (p Phase) String() string {
	if !p.IsValid() {
		return "Unknown"
	}
	return phaseNames[p]
}

// IsValid reports whether p is one of the six workflow phases
func (p Phase) IsValid() bool {
	return int(p) < len(phaseNames)
}

// Next returns the phase that follows p. The last phase has no successor.
func (p Phase) Next() (Phase, bool) {
	if !p.IsValid() || p == PhaseVotesTallied {
		return p, false
	}
	return p + 1, true
}

// CanTransitionTo checks if a forward transition from p to target is valid.
// Going back to PhaseRegisteringVoters is only possible through a reset and is not a transition.
func (p Phase) CanTransitionTo(target Phase) bool {
	next, ok := p.Next()
	return ok && next == target
}
