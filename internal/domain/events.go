package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType represents the type of ledger notification
type EventType string

const (
	EventVoterRegistered    EventType = "VOTER_REGISTERED"
	EventProposalRegistered EventType = "PROPOSAL_REGISTERED"
	EventVoted              EventType = "VOTED"
	EventPhaseChanged       EventType = "PHASE_CHANGED"
	EventElectionReset      EventType = "ELECTION_RESET"
)

// Event is an append-only record of a successful mutation
type Event struct {
	Seq       uint64      `json:"seq"`
	Round     uint64      `json:"round"`
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent creates a new event. Seq is assigned by the ledger when the event is logged.
func NewEvent(eventType EventType, round uint64, payload interface{}) *Event {
	return &Event{
		Type:      eventType,
		Round:     round,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Payload types for different events

// VoterRegisteredPayload is emitted when the admin registers a voter
type VoterRegisteredPayload struct {
	Voter common.Address `json:"voter"`
}

// ProposalRegisteredPayload is emitted when a voter submits a proposal
type ProposalRegisteredPayload struct {
	ProposalID uint64 `json:"proposalId"`
}

// VotedPayload is emitted when a voter casts a ballot
type VotedPayload struct {
	Voter      common.Address `json:"voter"`
	ProposalID uint64         `json:"proposalId"`
}

// PhaseChangedPayload is emitted on every forward transition
type PhaseChangedPayload struct {
	Previous Phase `json:"previous"`
	Next     Phase `json:"next"`
}

// ElectionResetPayload is emitted when the admin resets the ledger
type ElectionResetPayload struct {
	Previous Phase `json:"previous"`
}
