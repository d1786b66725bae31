package domain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Domain errors
var (
	ErrUnauthorized      = errors.New("caller is not the administrator")
	ErrWrongPhase        = errors.New("invalid action for current phase")
	ErrAlreadyRegistered = errors.New("voter already registered")
	ErrCapacityExceeded  = errors.New("max voters reached")
	ErrNotAVoter         = errors.New("caller is not a registered voter")
	ErrEmptyDescription  = errors.New("proposal description cannot be empty")
	ErrAlreadyVoted      = errors.New("voter has already voted")
	ErrProposalNotFound  = errors.New("proposal not found")
	ErrInvalidIdentity   = errors.New("invalid voter identity")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrInvalidTransition = errors.New("invalid phase transition")
)

// WrongPhaseError is returned when an operation runs outside its required phase.
// It matches ErrWrongPhase with errors.Is.
type WrongPhaseError struct {
	Actual   Phase
	Expected Phase
}

func (e *WrongPhaseError) Error() string {
	return fmt.Sprintf("wrong phase: in %s, requires %s", e.Actual, e.Expected)
}

func (e *WrongPhaseError) Is(target error) bool { return target == ErrWrongPhase }

// AlreadyRegisteredError carries the duplicate identity
type AlreadyRegisteredError struct {
	Voter common.Address
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("voter %s already registered", e.Voter.Hex())
}

func (e *AlreadyRegisteredError) Is(target error) bool { return target == ErrAlreadyRegistered }

// NotAVoterError carries the unregistered caller
type NotAVoterError struct {
	Caller common.Address
}

func (e *NotAVoterError) Error() string {
	return fmt.Sprintf("%s is not a registered voter", e.Caller.Hex())
}

func (e *NotAVoterError) Is(target error) bool { return target == ErrNotAVoter }

// AlreadyVotedError carries the voter who tried to vote twice
type AlreadyVotedError struct {
	Voter common.Address
}

func (e *AlreadyVotedError) Error() string {
	return fmt.Sprintf("voter %s has already voted", e.Voter.Hex())
}

func (e *AlreadyVotedError) Is(target error) bool { return target == ErrAlreadyVoted }

// ProposalNotFoundError carries the requested id and the number of proposals at the time
type ProposalNotFoundError struct {
	ProposalID uint64
	Count      uint64
}

func (e *ProposalNotFoundError) Error() string {
	return fmt.Sprintf("proposal %d not found (%d proposals)", e.ProposalID, e.Count)
}

func (e *ProposalNotFoundError) Is(target error) bool { return target == ErrProposalNotFound }
