package staking

import (
	"github.com/code-payments/code-staking/pkg/solana"
)

type StakingError uint32

const (
	// Staked amount is lower than the requested unstake amount
	ErrorInsufficientStake StakingError = iota + 0x1770

	// Signer does not own the staking account
	ErrorOwnerMismatch

	// Amount must be greater than zero
	ErrorInvalidAmount
)

func (e StakingError) String() string {
	switch e {
	case ErrorInsufficientStake:
		return "InsufficientStake"
	case ErrorOwnerMismatch:
		return "OwnerMismatch"
	case ErrorInvalidAmount:
		return "InvalidAmount"
	}
	return "Unknown"
}

// ToCustomError converts the program error into the on-chain custom error
// code surfaced by RPC nodes.
func (e StakingError) ToCustomError() solana.CustomError {
	return solana.CustomError(e)
}

// GetStakingError extracts a staking program error from a transaction error,
// if the failing instruction returned one.
func GetStakingError(txErr *solana.TransactionError) (StakingError, bool) {
	if txErr == nil || txErr.InstructionError() == nil {
		return 0, false
	}

	custom := txErr.InstructionError().CustomError()
	if custom == nil {
		return 0, false
	}

	switch e := StakingError(*custom); e {
	case ErrorInsufficientStake, ErrorOwnerMismatch, ErrorInvalidAmount:
		return e, true
	}
	return 0, false
}
