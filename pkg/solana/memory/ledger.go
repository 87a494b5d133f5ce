package memory

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
)

const mintAccountSize = 82

var (
	invalidInstructionData   = instructionError(solana.InstructionErrorInvalidInstructionData)
	invalidAccountData       = instructionError(solana.InstructionErrorInvalidAccountData)
	invalidSeeds             = instructionError(solana.InstructionErrorInvalidSeeds)
	incorrectProgramID       = instructionError(solana.InstructionErrorIncorrectProgramID)
	missingRequiredSignature = instructionError(solana.InstructionErrorMissingRequiredSignature)
	accountAlreadyInitialized = instructionError(solana.InstructionErrorAccountAlreadyInitialized)
	uninitializedAccount     = instructionError(solana.InstructionErrorUninitializedAccount)
	illegalOwner             = instructionError("IllegalOwner")
)

type instructionError solana.InstructionErrorKey

func (e instructionError) Error() string {
	return string(e)
}

// instructionFailure wraps an instruction's error the way RPC nodes report
// it, so callers can inspect it with solana.TransactionError.
func instructionFailure(index int, err error) *solana.TransactionError {
	txErr, convErr := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: index,
		Err:   err,
	})
	if convErr != nil {
		return solana.NewTransactionError(solana.TransactionErrorInstructionError)
	}
	return txErr
}

type accountReader interface {
	get(address ed25519.PublicKey) (*account, bool)
}

type accountMap map[string]*account

func (m accountMap) get(address ed25519.PublicKey) (*account, bool) {
	a, ok := m[string(address)]
	return a, ok
}

// workingSet buffers account writes made by a transaction until every
// instruction succeeds.
type workingSet struct {
	base     map[string]*account
	modified map[string]*account
}

func (w *workingSet) get(address ed25519.PublicKey) (*account, bool) {
	if a, ok := w.modified[string(address)]; ok {
		return a, true
	}
	a, ok := w.base[string(address)]
	return a, ok
}

// modify returns a writable copy of an existing account.
func (w *workingSet) modify(address ed25519.PublicKey) *account {
	key := string(address)
	if a, ok := w.modified[key]; ok {
		return a
	}

	a := w.base[key].clone()
	w.modified[key] = a
	return a
}

func (w *workingSet) getOrCreate(address, owner ed25519.PublicKey) *account {
	if _, ok := w.get(address); ok {
		return w.modify(address)
	}

	a := &account{owner: owner}
	w.modified[string(address)] = a
	return a
}

func (w *workingSet) put(address ed25519.PublicKey, a *account) {
	w.modified[string(address)] = a
}
