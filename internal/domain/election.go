package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxVoters is used when an election is created with a non-positive maximum
const DefaultMaxVoters = 100

// Transition records a phase change
type Transition struct {
	From Phase `json:"previous"`
	To   Phase `json:"next"`
}

// Election holds the state of a single election and enforces its rules.
// It is not safe for concurrent use; app.Ledger serializes access.
type Election struct {
	admin     common.Address
	maxVoters int
	round     uint64

	phase      Phase
	voters     map[common.Address]*Voter
	voterOrder []common.Address
	proposals  []Proposal

	winningProposalID uint64
	finalized         bool
}

// NewElection creates an election administered by admin
func NewElection(admin common.Address, maxVoters int) *Election {
	if maxVoters <= 0 {
		maxVoters = DefaultMaxVoters
	}
	return &Election{
		admin:      admin,
		maxVoters:  maxVoters,
		round:      1,
		phase:      PhaseRegisteringVoters,
		voters:     make(map[common.Address]*Voter),
		voterOrder: make([]common.Address, 0),
		proposals:  make([]Proposal, 0),
	}
}

// IsAdmin checks if the given identity is the administrator
func (e *Election) IsAdmin(caller common.Address) bool {
	return e.admin == caller
}

func (e *Election) requireAdmin(caller common.Address) error {
	if !e.IsAdmin(caller) {
		return ErrUnauthorized
	}
	return nil
}

func (e *Election) requirePhase(expected Phase) error {
	if e.phase != expected {
		return &WrongPhaseError{Actual: e.phase, Expected: expected}
	}
	return nil
}

func (e *Election) requireVoter(caller common.Address) (*Voter, error) {
	voter, ok := e.voters[caller]
	if !ok || !voter.IsRegistered {
		return nil, &NotAVoterError{Caller: caller}
	}
	return voter, nil
}

// RegisterVoter adds an identity to the registered set
func (e *Election) RegisterVoter(caller, addr common.Address) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.requirePhase(PhaseRegisteringVoters); err != nil {
		return err
	}
	if addr == (common.Address{}) {
		return ErrInvalidIdentity
	}
	if _, ok := e.voters[addr]; ok {
		return &AlreadyRegisteredError{Voter: addr}
	}
	if len(e.voterOrder) >= e.maxVoters {
		return ErrCapacityExceeded
	}

	e.voters[addr] = &Voter{IsRegistered: true}
	e.voterOrder = append(e.voterOrder, addr)
	return nil
}

// advance moves the election from one phase to the next
func (e *Election) advance(caller common.Address, from, to Phase) (Transition, error) {
	if err := e.requireAdmin(caller); err != nil {
		return Transition{}, err
	}
	if err := e.requirePhase(from); err != nil {
		return Transition{}, err
	}
	if !from.CanTransitionTo(to) {
		return Transition{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	e.phase = to
	return Transition{From: from, To: to}, nil
}

// StartProposalsRegistering opens proposal submission and creates the GENESIS proposal
func (e *Election) StartProposalsRegistering(caller common.Address) (Transition, error) {
	t, err := e.advance(caller, PhaseRegisteringVoters, PhaseProposalsRegistrationStarted)
	if err != nil {
		return t, err
	}
	e.proposals = append(e.proposals, Proposal{
		ID:          GenesisProposalID,
		Description: GenesisDescription,
	})
	return t, nil
}

// EndProposalsRegistering closes proposal submission
func (e *Election) EndProposalsRegistering(caller common.Address) (Transition, error) {
	return e.advance(caller, PhaseProposalsRegistrationStarted, PhaseProposalsRegistrationEnded)
}

// StartVotingSession opens the ballot
func (e *Election) StartVotingSession(caller common.Address) (Transition, error) {
	return e.advance(caller, PhaseProposalsRegistrationEnded, PhaseVotingSessionStarted)
}

// EndVotingSession closes the ballot
func (e *Election) EndVotingSession(caller common.Address) (Transition, error) {
	return e.advance(caller, PhaseVotingSessionStarted, PhaseVotingSessionEnded)
}

// TallyVotes finalizes the winner. The leader is already tracked by CastVote,
// so nothing is recomputed here.
func (e *Election) TallyVotes(caller common.Address) (Transition, error) {
	t, err := e.advance(caller, PhaseVotingSessionEnded, PhaseVotesTallied)
	if err != nil {
		return t, err
	}
	e.finalized = true
	return t, nil
}

// AddProposal appends a proposal from a registered voter and returns its id
func (e *Election) AddProposal(caller common.Address, description string) (uint64, error) {
	if _, err := e.requireVoter(caller); err != nil {
		return 0, err
	}
	if err := e.requirePhase(PhaseProposalsRegistrationStarted); err != nil {
		return 0, err
	}

	description = strings.TrimSpace(description)
	if description == "" {
		return 0, ErrEmptyDescription
	}

	id := uint64(len(e.proposals))
	e.proposals = append(e.proposals, Proposal{
		ID:          id,
		Description: description,
	})
	return id, nil
}

// CastVote records the caller's ballot and updates the running leader
func (e *Election) CastVote(caller common.Address, proposalID uint64) error {
	voter, err := e.requireVoter(caller)
	if err != nil {
		return err
	}
	if err := e.requirePhase(PhaseVotingSessionStarted); err != nil {
		return err
	}
	if voter.HasVoted {
		return &AlreadyVotedError{Voter: caller}
	}
	count := uint64(len(e.proposals))
	if proposalID >= count {
		return &ProposalNotFoundError{ProposalID: proposalID, Count: count}
	}

	voter.HasVoted = true
	voter.VotedProposalID = proposalID
	e.proposals[proposalID].VoteCount++

	// Strictly greater: on a tie the proposal that reached the count first keeps the lead.
	if e.proposals[proposalID].VoteCount > e.proposals[e.winningProposalID].VoteCount {
		e.winningProposalID = proposalID
	}

	return nil
}

// Reset clears voters and proposals and starts a new round. It returns the phase the
// election was in before the reset.
func (e *Election) Reset(caller common.Address) (Phase, error) {
	if err := e.requireAdmin(caller); err != nil {
		return e.phase, err
	}

	previous := e.phase
	e.voters = make(map[common.Address]*Voter)
	e.voterOrder = make([]common.Address, 0)
	e.proposals = make([]Proposal, 0)
	e.phase = PhaseRegisteringVoters
	e.winningProposalID = GenesisProposalID
	e.finalized = false
	e.round++

	return previous, nil
}

// Admin returns the administrator identity
func (e *Election) Admin() common.Address {
	return e.admin
}

// Phase returns the current phase
func (e *Election) Phase() Phase {
	return e.phase
}

// Round returns the ordinal of the current election, starting at 1
func (e *Election) Round() uint64 {
	return e.round
}

// MaxVoters returns the registered-voter capacity
func (e *Election) MaxVoters() int {
	return e.maxVoters
}

// WinningProposalID returns the current leader, or the final winner once tallied
func (e *Election) WinningProposalID() uint64 {
	return e.winningProposalID
}

// IsFinalized returns true once votes have been tallied
func (e *Election) IsFinalized() bool {
	return e.finalized
}

// VoterCount returns the number of registered voters
func (e *Election) VoterCount() int {
	return len(e.voterOrder)
}

// VoterAt returns the identity registered at index i
func (e *Election) VoterAt(i int) (common.Address, error) {
	if i < 0 || i >= len(e.voterOrder) {
		return common.Address{}, ErrIndexOutOfRange
	}
	return e.voterOrder[i], nil
}

// GetVoter returns a copy of the voter state for addr. Unknown identities
// return the zero Voter.
func (e *Election) GetVoter(addr common.Address) Voter {
	if voter, ok := e.voters[addr]; ok {
		return *voter
	}
	return Voter{}
}

// GetVoterInfoList returns all registered voters in registration order
func (e *Election) GetVoterInfoList() []VoterInfo {
	infos := make([]VoterInfo, 0, len(e.voterOrder))
	for _, addr := range e.voterOrder {
		infos = append(infos, VoterInfo{Address: addr, Voter: *e.voters[addr]})
	}
	return infos
}

// ProposalCount returns the number of proposals, GENESIS included
func (e *Election) ProposalCount() int {
	return len(e.proposals)
}

// ProposalAt returns a copy of the proposal with the given id
func (e *Election) ProposalAt(id uint64) (Proposal, error) {
	if id >= uint64(len(e.proposals)) {
		return Proposal{}, ErrIndexOutOfRange
	}
	return e.proposals[id], nil
}

// GetProposals returns a copy of the proposal list, optionally without GENESIS
func (e *Election) GetProposals(includeGenesis bool) []Proposal {
	proposals := make([]Proposal, 0, len(e.proposals))
	for _, p := range e.proposals {
		if p.IsGenesis() && !includeGenesis {
			continue
		}
		proposals = append(proposals, p)
	}
	return proposals
}
