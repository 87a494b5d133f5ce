package staking

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/code/transaction"
	staking_program "github.com/code-payments/code-staking/pkg/solana/staking"
)

var (
	ErrInvalidConfig = errors.New("invalid staking config")
	ErrInvalidOwner  = errors.New("session owner must be able to sign")

	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrNotInitialized      = errors.New("staking account is not initialized")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidStakingAccount is returned when the owner's staking address
	// holds data the program didn't write for them.
	ErrInvalidStakingAccount = errors.New("invalid staking account")

	ErrNetwork             = transaction.ErrNetwork
	ErrTimeout             = transaction.ErrTimeout
	ErrStaleFreshnessToken = transaction.ErrStaleFreshnessToken
)

// GetProgramError returns the staking program error that caused a rejected
// transaction, if any.
func GetProgramError(err error) (staking_program.StakingError, bool) {
	rejected, ok := transaction.IsRejected(err)
	if !ok {
		return 0, false
	}
	return staking_program.GetStakingError(rejected.Reason)
}
