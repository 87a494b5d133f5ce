package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrExhaustedSearch indicates no bump in [0, 255] produced an off-curve
	// address. This is a programming or configuration error, and should never
	// happen with well formed seeds.
	ErrExhaustedSearch = errors.New("no valid bump seed found for program address")
)

var (
	programHashCtor = sha256.New
)

// DerivedAddress is a program derived address and the bump seed that was
// used to push it off the ed25519 curve.
type DerivedAddress struct {
	Address ed25519.PublicKey
	Bump    uint8
}

// CreateProgramAddress mirrors the implementation of the Solana SDK's CreateProgramAddress.
//
// ProgramAddresses are public keys that _do not_ lie on the ed25519 curve to ensure that
// there is no associated private key. In the event that the program and seed parameters
// result in a valid public key, ErrInvalidPublicKey is returned.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}

	h := programHashCtor()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write(s); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{program, []byte("ProgramDerivedAddress")} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	hash := h.Sum(nil)
	var pub [32]byte
	copy(pub[:], hash)

	// Following the Solana SDK, we want to _reject_ the generated public key
	// if it's a valid compressed EdwardsPoint.
	//
	// The edwards25519.ExtendedGroupElement (the EdwardsPoint) is internal to
	// the golang.org/x/crypto library, so we rely on the jdgcs fork, which
	// exposes the decompression check used by ed25519.Verify().
	//
	// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L182-L187
	var A edwards25519.ExtendedGroupElement
	if A.FromBytes(&pub) {
		return nil, ErrInvalidPublicKey
	}

	return pub[:], nil
}

// DeriveProgramAddress searches bump seeds from 255 down to 0, returning the
// first combination that yields an off-curve address. ErrExhaustedSearch is
// returned if every bump lands on the curve.
//
// The result depends only on the inputs, so the same seeds resolve to the
// same address across processes and sessions.
func DeriveProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (DerivedAddress, error) {
	if len(seeds)+1 > maxSeeds {
		return DerivedAddress{}, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := math.MaxUint8; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}

		pub, err := CreateProgramAddress(program, withBump...)
		if err == nil {
			return DerivedAddress{Address: pub, Bump: uint8(bump)}, nil
		}
		if err != ErrInvalidPublicKey {
			return DerivedAddress{}, err
		}
	}

	return DerivedAddress{}, ErrExhaustedSearch
}

// FindProgramAddressAndBump mirrors the Solana SDK's FindProgramAddress. It
// returns the address and bump seed.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddressAndBump(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	derived, err := DeriveProgramAddress(program, seeds...)
	if err != nil {
		return nil, 0, err
	}
	return derived.Address, derived.Bump, nil
}

// FindProgramAddress mirrors the Solana SDK's FindProgramAddress. It only
// returns the address.
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	pub, _, err := FindProgramAddressAndBump(program, seeds...)
	return pub, err
}
