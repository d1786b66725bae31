package domain

// GenesisDescription is the description of the placeholder proposal at id 0
const GenesisDescription = "GENESIS"

// GenesisProposalID is the id of the placeholder proposal
const GenesisProposalID uint64 = 0

// Proposal represents an option voters can cast a ballot for
type Proposal struct {
	ID          uint64 `json:"id"`
	Description string `json:"description"`
	VoteCount   uint64 `json:"voteCount"`
}

// IsGenesis returns true for the placeholder proposal
func (p Proposal) IsGenesis() bool {
	return p.ID == GenesisProposalID
}
