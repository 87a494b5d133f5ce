package staking

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/solana"
)

type InstructionType uint8

const (
	InstructionTypeUnknown InstructionType = iota
	InstructionTypeInitialize
	InstructionTypeStake
	InstructionTypeUnstake
	InstructionTypeClaimRewards
)

func (t InstructionType) String() string {
	switch t {
	case InstructionTypeInitialize:
		return "initialize"
	case InstructionTypeStake:
		return "stake"
	case InstructionTypeUnstake:
		return "unstake"
	case InstructionTypeClaimRewards:
		return "claim_rewards"
	}
	return "unknown"
}

var instructionLayouts = []struct {
	instructionType InstructionType
	discriminator   []byte
	argsSize        int
	numAccounts     int
}{
	{InstructionTypeInitialize, initializeInstructionDiscriminator, InitializeInstructionArgsSize, 3},
	{InstructionTypeStake, stakeInstructionDiscriminator, StakeInstructionArgsSize, 6},
	{InstructionTypeUnstake, unstakeInstructionDiscriminator, UnstakeInstructionArgsSize, 6},
	{InstructionTypeClaimRewards, claimRewardsInstructionDiscriminator, ClaimRewardsInstructionArgsSize, 6},
}

// DecompiledInstruction is a staking program instruction recovered from a
// compiled message. Accounts are listed in the order the instruction
// declares them.
type DecompiledInstruction struct {
	Type     InstructionType
	Amount   uint64
	Bump     uint8
	Accounts []ed25519.PublicKey
	Signers  []bool
}

// DecompileInstruction parses the instruction at index, which must target
// the provided staking program.
func DecompileInstruction(program ed25519.PublicKey, m solana.Message, index int) (*DecompiledInstruction, error) {
	if index >= len(m.Instructions) {
		return nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	i := m.Instructions[index]
	if !bytes.Equal(m.Accounts[i.ProgramIndex], program) {
		return nil, solana.ErrIncorrectProgram
	}

	for _, layout := range instructionLayouts {
		if !bytes.HasPrefix(i.Data, layout.discriminator) {
			continue
		}

		if len(i.Data) != len(layout.discriminator)+layout.argsSize {
			return nil, ErrInvalidInstructionData
		}
		if len(i.Accounts) != layout.numAccounts {
			return nil, errors.Errorf("invalid number of accounts: %d (expected %d)", len(i.Accounts), layout.numAccounts)
		}

		decompiled := &DecompiledInstruction{
			Type: layout.instructionType,
		}

		offset := len(layout.discriminator)
		switch layout.instructionType {
		case InstructionTypeStake, InstructionTypeUnstake:
			getUint64(i.Data, &decompiled.Amount, &offset)
		}
		getUint8(i.Data, &decompiled.Bump, &offset)

		for _, accountIndex := range i.Accounts {
			decompiled.Accounts = append(decompiled.Accounts, m.Accounts[accountIndex])
			decompiled.Signers = append(decompiled.Signers, int(accountIndex) < int(m.Header.NumSignatures))
		}

		return decompiled, nil
	}

	return nil, solana.ErrIncorrectInstruction
}
