package staking

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
)

var unstakeInstructionDiscriminator = []byte{
	0x5a, 0x5f, 0x6b, 0x2a, 0xcd, 0x7c, 0x32, 0xe1,
}

const (
	UnstakeInstructionArgsSize = (8 + // amount
		1) // bump
)

type UnstakeInstructionArgs struct {
	Amount uint64
	Bump   uint8
}

type UnstakeInstructionAccounts struct {
	Program             ed25519.PublicKey
	StakingAccount      ed25519.PublicKey
	StakingTokenAccount ed25519.PublicKey
	Vault               ed25519.PublicKey
	StakingMint         ed25519.PublicKey
	Owner               ed25519.PublicKey
}

func NewUnstakeInstruction(
	accounts *UnstakeInstructionAccounts,
	args *UnstakeInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(unstakeInstructionDiscriminator)+
			UnstakeInstructionArgsSize)

	putDiscriminator(data, unstakeInstructionDiscriminator, &offset)
	putUint64(data, args.Amount, &offset)
	putUint8(data, args.Bump, &offset)

	return solana.Instruction{
		Program: accounts.Program,

		// Instruction args
		Data: data,

		// Instruction accounts
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.StakingAccount,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.StakingTokenAccount,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Vault,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.StakingMint,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Owner,
				IsWritable: false,
				IsSigner:   true,
			},
			{
				PublicKey:  SPL_TOKEN_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}
