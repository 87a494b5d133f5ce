package staking

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
)

var claimRewardsInstructionDiscriminator = []byte{
	0x04, 0x90, 0x84, 0x47, 0x74, 0x17, 0x97, 0x50,
}

const (
	ClaimRewardsInstructionArgsSize = 1 // bump
)

type ClaimRewardsInstructionArgs struct {
	Bump uint8
}

type ClaimRewardsInstructionAccounts struct {
	Program            ed25519.PublicKey
	StakingAccount     ed25519.PublicKey
	RewardTokenAccount ed25519.PublicKey
	RewardMint         ed25519.PublicKey
	RewardAuthority    ed25519.PublicKey
	Owner              ed25519.PublicKey
}

func NewClaimRewardsInstruction(
	accounts *ClaimRewardsInstructionAccounts,
	args *ClaimRewardsInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(claimRewardsInstructionDiscriminator)+
			ClaimRewardsInstructionArgsSize)

	putDiscriminator(data, claimRewardsInstructionDiscriminator, &offset)
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
				PublicKey:  accounts.RewardTokenAccount,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.RewardMint,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.RewardAuthority,
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
