package app

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"

	"github.com/FlorentDgrs/Dvoting/internal/domain"
)

// eventQueueSize is the number of notifications buffered for live delivery
const eventQueueSize = 256

// Ledger wraps an election with concurrency control and notification delivery
type Ledger struct {
	id       string
	election *domain.Election
	mu       sync.RWMutex
	logger   *slog.Logger

	// Notification log, guarded by mu
	log []*domain.Event
	seq uint64

	// Live delivery
	feed    event.Feed
	scope   event.SubscriptionScope
	events  chan *domain.Event
	dropped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// NewLedger creates a ledger administered by admin
func NewLedger(admin common.Address, maxVoters int, logger *slog.Logger) *Ledger {
	l := &Ledger{
		id:       uuid.New().String(),
		election: domain.NewElection(admin, maxVoters),
		logger:   logger,
		log:      make([]*domain.Event, 0),
		events:   make(chan *domain.Event, eventQueueSize),
		done:     make(chan struct{}),
	}

	go l.eventLoop()

	return l
}

// ID returns the unique id of this ledger instance
func (l *Ledger) ID() string {
	return l.id
}

// RegisterVoter registers a voter (admin only) and returns its new state
func (l *Ledger) RegisterVoter(caller, voter common.Address) (domain.VoterInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.election.RegisterVoter(caller, voter); err != nil {
		return domain.VoterInfo{}, err
	}

	l.record(domain.EventVoterRegistered, &domain.VoterRegisteredPayload{Voter: voter})
	l.logger.Info("voter registered", "voter", voter.Hex(), "count", l.election.VoterCount())

	return l.voterInfo(voter), nil
}

// StartProposalsRegistering opens proposal submission (admin only)
func (l *Ledger) StartProposalsRegistering(caller common.Address) (domain.Transition, error) {
	return l.transition(caller, l.election.StartProposalsRegistering)
}

// EndProposalsRegistering closes proposal submission (admin only)
func (l *Ledger) EndProposalsRegistering(caller common.Address) (domain.Transition, error) {
	return l.transition(caller, l.election.EndProposalsRegistering)
}

// StartVotingSession opens the ballot (admin only)
func (l *Ledger) StartVotingSession(caller common.Address) (domain.Transition, error) {
	return l.transition(caller, l.election.StartVotingSession)
}

// EndVotingSession closes the ballot (admin only)
func (l *Ledger) EndVotingSession(caller common.Address) (domain.Transition, error) {
	return l.transition(caller, l.election.EndVotingSession)
}

// TallyVotes finalizes the winner (admin only)
func (l *Ledger) TallyVotes(caller common.Address) (domain.Transition, error) {
	return l.transition(caller, l.election.TallyVotes)
}

// transition runs a phase change under the write lock
func (l *Ledger) transition(caller common.Address, apply func(common.Address) (domain.Transition, error)) (domain.Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := apply(caller)
	if err != nil {
		return t, err
	}

	l.record(domain.EventPhaseChanged, &domain.PhaseChangedPayload{Previous: t.From, Next: t.To})
	l.logger.Info("phase changed", "previous", t.From.String(), "next", t.To.String())

	if t.To == domain.PhaseVotesTallied {
		l.logger.Info("votes tallied", "winningProposalId", l.election.WinningProposalID())
	}

	return t, nil
}

// AddProposal submits a proposal for a registered voter and returns its id
func (l *Ledger) AddProposal(caller common.Address, description string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, err := l.election.AddProposal(caller, description)
	if err != nil {
		return 0, err
	}

	l.record(domain.EventProposalRegistered, &domain.ProposalRegisteredPayload{ProposalID: id})
	l.logger.Info("proposal registered", "proposalId", id, "voter", caller.Hex())

	return id, nil
}

// CastVote casts the caller's ballot and returns the voter's new state
func (l *Ledger) CastVote(caller common.Address, proposalID uint64) (domain.VoterInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.election.CastVote(caller, proposalID); err != nil {
		return domain.VoterInfo{}, err
	}

	l.record(domain.EventVoted, &domain.VotedPayload{Voter: caller, ProposalID: proposalID})
	l.logger.Debug("vote cast", "voter", caller.Hex(), "proposalId", proposalID,
		"leader", l.election.WinningProposalID())

	return l.voterInfo(caller), nil
}

// Reset clears the election and starts a new round (admin only). It returns the
// summary of the fresh round.
func (l *Ledger) Reset(caller common.Address) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	previous, err := l.election.Reset(caller)
	if err != nil {
		return nil, err
	}

	l.record(domain.EventElectionReset, &domain.ElectionResetPayload{Previous: previous})
	l.logger.Info("election reset", "previous", previous.String(), "round", l.election.Round())

	return l.snapshot(), nil
}

// voterInfo reads a voter record. Caller must hold the lock.
func (l *Ledger) voterInfo(addr common.Address) domain.VoterInfo {
	return domain.VoterInfo{Address: addr, Voter: l.election.GetVoter(addr)}
}

// Snapshot is a consistent view of the election summary
type Snapshot struct {
	LedgerID          string         `json:"ledgerId"`
	Round             uint64         `json:"round"`
	Phase             domain.Phase   `json:"phase"`
	PhaseName         string         `json:"phaseName"`
	Admin             common.Address `json:"admin"`
	WinningProposalID uint64         `json:"winningProposalId"`
	Finalized         bool           `json:"finalized"`
	MaxVoters         int            `json:"maxVoters"`
	VoterCount        int            `json:"voterCount"`
	ProposalCount     int            `json:"proposalCount"`
	LastSeq           uint64         `json:"lastSeq"`
}

// GetSnapshot returns the election summary read under a single lock
func (l *Ledger) GetSnapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot()
}

// snapshot builds the summary. Caller must hold the lock.
func (l *Ledger) snapshot() *Snapshot {
	return &Snapshot{
		LedgerID:          l.id,
		Round:             l.election.Round(),
		Phase:             l.election.Phase(),
		PhaseName:         l.election.Phase().String(),
		Admin:             l.election.Admin(),
		WinningProposalID: l.election.WinningProposalID(),
		Finalized:         l.election.IsFinalized(),
		MaxVoters:         l.election.MaxVoters(),
		VoterCount:        l.election.VoterCount(),
		ProposalCount:     l.election.ProposalCount(),
		LastSeq:           l.seq,
	}
}

// GetPhase returns the current phase
func (l *Ledger) GetPhase() domain.Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.election.Phase()
}

// GetAdmin returns the administrator identity
func (l *Ledger) GetAdmin() common.Address {
	return l.election.Admin()
}

// GetMaxVoters returns the registered-voter capacity
func (l *Ledger) GetMaxVoters() int {
	return l.election.MaxVoters()
}

// GetWinningProposalID returns the current leader or final winner
func (l *Ledger) GetWinningProposalID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.election.WinningProposalID()
}

// GetVoterCount returns the number of registered voters
func (l *Ledger) GetVoterCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.election.VoterCount()
}

// GetVoterAt returns the voter registered at index i
func (l *Ledger) GetVoterAt(i int) (domain.VoterInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	addr, err := l.election.VoterAt(i)
	if err != nil {
		return domain.VoterInfo{}, err
	}
	return l.voterInfo(addr), nil
}

// GetVoter returns the voter state for addr; unknown identities are not registered
func (l *Ledger) GetVoter(addr common.Address) domain.Voter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.election.GetVoter(addr)
}

// GetVoters returns all registered voters in registration order
func (l *Ledger) GetVoters() []domain.VoterInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.election.GetVoterInfoList()
}

// GetProposalCount returns the number of proposals, GENESIS included
func (l *Ledger) GetProposalCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.election.ProposalCount()
}

// GetProposal returns the proposal with the given id
func (l *Ledger) GetProposal(id uint64) (domain.Proposal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.election.ProposalAt(id)
}

// GetProposals returns the proposal list, optionally including GENESIS
func (l *Ledger) GetProposals(includeGenesis bool) []domain.Proposal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.election.GetProposals(includeGenesis)
}
