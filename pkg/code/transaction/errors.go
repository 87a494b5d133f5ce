package transaction

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/solana"
)

var (
	ErrInvalidRequest = errors.New("invalid transaction request")
	ErrMissingSigner  = errors.New("missing signer")

	// ErrNetwork is returned when the network could not be reached after the
	// configured number of attempts. The caller may retry.
	ErrNetwork = errors.New("network unavailable")

	// ErrStaleFreshnessToken is returned when every fresh-token attempt expired
	// before the transaction was observed by the network.
	ErrStaleFreshnessToken = errors.New("freshness token expired")

	// ErrTimeout is returned when the confirmation deadline or the caller's
	// context expires first. The transaction may still land, so callers should
	// re-query state before retrying.
	ErrTimeout = errors.New("transaction confirmation timed out")

	errBlockhashExpired = errors.New("blockhash expired")
)

// InstructionRejectedError is a terminal rejection reported by the network,
// either during preflight or as the transaction's final status.
type InstructionRejectedError struct {
	Signature solana.Signature
	Reason    *solana.TransactionError
}

func (e *InstructionRejectedError) Error() string {
	if e.Reason == nil {
		return "transaction rejected"
	}
	return fmt.Sprintf("transaction rejected: %s", e.Reason.Error())
}

// InstructionIndex returns the index of the failing instruction, when the
// rejection was caused by one.
func (e *InstructionRejectedError) InstructionIndex() (int, bool) {
	if e.Reason == nil || e.Reason.InstructionError() == nil {
		return 0, false
	}
	return e.Reason.InstructionError().Index, true
}

// CustomError returns the program specific error code, if any.
func (e *InstructionRejectedError) CustomError() *solana.CustomError {
	if e.Reason == nil || e.Reason.InstructionError() == nil {
		return nil
	}
	return e.Reason.InstructionError().CustomError()
}

// IsRetryable reports whether the caller may safely retry the operation that
// produced err.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rejected *InstructionRejectedError
	if errors.As(err, &rejected) {
		return false
	}

	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrStaleFreshnessToken) || errors.Is(err, ErrTimeout)
}

// IsRejected reports whether err is a rejection, returning it if so.
func IsRejected(err error) (*InstructionRejectedError, bool) {
	var rejected *InstructionRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var txErr *solana.TransactionError
	return !errors.As(err, &txErr)
}
