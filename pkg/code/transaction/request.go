package transaction

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/code/common"
	"github.com/code-payments/code-staking/pkg/solana"
)

// Request is a single transaction to be signed, submitted and confirmed.
//
// The fee payer always signs. Signers lists any additional accounts that
// instructions mark as signers.
type Request struct {
	FeePayer     *common.Account
	Instructions []solana.Instruction
	Signers      []*common.Account

	// Memo is optionally appended to the transaction as a memo instruction
	Memo string
}

// Result is a confirmed transaction.
type Result struct {
	Signature solana.Signature
	Slot      uint64

	// Attempts is the number of freshness tokens the transaction was signed
	// over before it landed.
	Attempts uint64
}

func (r *Request) validate() error {
	if r == nil {
		return errors.Wrap(ErrInvalidRequest, "request is nil")
	}

	if r.FeePayer == nil {
		return errors.Wrap(ErrInvalidRequest, "fee payer is required")
	}

	if len(r.Instructions) == 0 {
		return errors.Wrap(ErrInvalidRequest, "at least one instruction is required")
	}

	signers := make(map[string]*common.Account)
	for _, signer := range append([]*common.Account{r.FeePayer}, r.Signers...) {
		if signer == nil {
			return errors.Wrap(ErrInvalidRequest, "signer is nil")
		}

		if signer.PrivateKey() == nil {
			return errors.Wrapf(ErrMissingSigner, "%s has no private key", signer.PublicKey().ToBase58())
		}

		signers[signer.PublicKey().ToBase58()] = signer
	}

	referenced := map[string]struct{}{
		r.FeePayer.PublicKey().ToBase58(): {},
	}
	for i, ixn := range r.Instructions {
		if len(ixn.Program) == 0 {
			return errors.Wrapf(ErrInvalidRequest, "instruction %d has no program", i)
		}

		for _, meta := range ixn.Accounts {
			address, err := common.NewAccountFromPublicKeyBytes(meta.PublicKey)
			if err != nil {
				return errors.Wrapf(ErrInvalidRequest, "instruction %d references an invalid account", i)
			}

			referenced[address.PublicKey().ToBase58()] = struct{}{}

			if !meta.IsSigner {
				continue
			}

			if _, ok := signers[address.PublicKey().ToBase58()]; !ok {
				return errors.Wrapf(ErrMissingSigner, "instruction %d requires a signature from %s", i, address.PublicKey().ToBase58())
			}
		}
	}

	for _, signer := range r.Signers {
		if _, ok := referenced[signer.PublicKey().ToBase58()]; !ok {
			return errors.Wrapf(ErrInvalidRequest, "signer %s is not referenced by any instruction", signer.PublicKey().ToBase58())
		}
	}

	return nil
}

func (r *Request) getSigners() ([]solana.Signer, error) {
	var signers []solana.Signer
	seen := make(map[string]struct{})
	for _, account := range append([]*common.Account{r.FeePayer}, r.Signers...) {
		if _, ok := seen[account.PublicKey().ToBase58()]; ok {
			continue
		}
		seen[account.PublicKey().ToBase58()] = struct{}{}

		signer, err := account.Signer()
		if err != nil {
			return nil, errors.Wrapf(ErrMissingSigner, "%s cannot sign: %v", account.PublicKey().ToBase58(), err)
		}
		signers = append(signers, signer)
	}
	return signers, nil
}
