package staking

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
)

var initializeInstructionDiscriminator = []byte{
	0xaf, 0xaf, 0x6d, 0x1f, 0x0d, 0x98, 0x9b, 0xed,
}

const (
	InitializeInstructionArgsSize = 1 // bump
)

type InitializeInstructionArgs struct {
	Bump uint8
}

type InitializeInstructionAccounts struct {
	Program        ed25519.PublicKey
	StakingAccount ed25519.PublicKey
	Owner          ed25519.PublicKey
}

func NewInitializeInstruction(
	accounts *InitializeInstructionAccounts,
	args *InitializeInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(initializeInstructionDiscriminator)+
			InitializeInstructionArgsSize)

	putDiscriminator(data, initializeInstructionDiscriminator, &offset)
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
				PublicKey:  accounts.Owner,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  SYSTEM_PROGRAM_ID,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}
