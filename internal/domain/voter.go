package domain

import "github.com/ethereum/go-ethereum/common"

// Voter represents the registration and ballot state of an identity.
// An unknown identity reads back as the zero Voter, so callers must check IsRegistered.
type Voter struct {
	IsRegistered    bool   `json:"isRegistered"`
	HasVoted        bool   `json:"hasVoted"`
	VotedProposalID uint64 `json:"votedProposalId"`
}

// VoterInfo pairs a voter with its identity for listings
type VoterInfo struct {
	Address common.Address `json:"address"`
	Voter
}
