package account

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/code/transaction"
)

var (
	ErrAccountNotFound = errors.New("token account not found")
	ErrInvalidOwner    = errors.New("owner cannot hold an associated token account")

	// ErrInvalidTokenAccount is returned when the associated address holds
	// something other than a token account for the owner and mint.
	ErrInvalidTokenAccount = errors.New("invalid token account")

	// ErrCreationRejected matches any CreationRejectedError.
	ErrCreationRejected = errors.New("token account creation rejected")

	// ErrNetwork is shared with the sequencer so callers classify both the
	// same way.
	ErrNetwork = transaction.ErrNetwork
)

// CreationRejectedError wraps the network's rejection of a creation
// transaction, such as the fee payer lacking funds.
type CreationRejectedError struct {
	Rejection *transaction.InstructionRejectedError
}

func (e *CreationRejectedError) Error() string {
	return ErrCreationRejected.Error() + ": " + e.Rejection.Error()
}

func (e *CreationRejectedError) Is(target error) bool {
	return target == ErrCreationRejected
}

func (e *CreationRejectedError) Unwrap() error {
	return e.Rejection
}
