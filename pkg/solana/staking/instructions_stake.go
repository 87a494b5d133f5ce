package staking

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
)

var stakeInstructionDiscriminator = []byte{
	0xce, 0xb0, 0xca, 0x12, 0xc8, 0xd1, 0xb3, 0x6c,
}

const (
	StakeInstructionArgsSize = (8 + // amount
		1) // bump
)

type StakeInstructionArgs struct {
	Amount uint64
	Bump   uint8
}

type StakeInstructionAccounts struct {
	Program             ed25519.PublicKey
	StakingAccount      ed25519.PublicKey
	StakingTokenAccount ed25519.PublicKey
	Vault               ed25519.PublicKey
	StakingMint         ed25519.PublicKey
	Owner               ed25519.PublicKey
}

func NewStakeInstruction(
	accounts *StakeInstructionAccounts,
	args *StakeInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(stakeInstructionDiscriminator)+
			StakeInstructionArgsSize)

	putDiscriminator(data, stakeInstructionDiscriminator, &offset)
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
