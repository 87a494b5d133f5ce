package staking

import (
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
)

var (
	StakingAccountPrefix  = []byte("staking_account")
	VaultPrefix           = []byte("vault")
	RewardAuthorityPrefix = []byte("reward_authority")
)

type GetStakingAccountAddressArgs struct {
	Program ed25519.PublicKey
	Owner   ed25519.PublicKey
}

// GetStakingAccountAddress derives the per-owner staking state account.
func GetStakingAccountAddress(args *GetStakingAccountAddressArgs) (solana.DerivedAddress, error) {
	return solana.DeriveProgramAddress(
		args.Program,
		StakingAccountPrefix,
		args.Owner,
	)
}

type GetVaultAddressArgs struct {
	Program        ed25519.PublicKey
	StakingAccount ed25519.PublicKey
}

// GetVaultAddress derives the token account holding an owner's staked tokens.
func GetVaultAddress(args *GetVaultAddressArgs) (solana.DerivedAddress, error) {
	return solana.DeriveProgramAddress(
		args.Program,
		VaultPrefix,
		args.StakingAccount,
	)
}

type GetRewardAuthorityAddressArgs struct {
	Program ed25519.PublicKey
}

// GetRewardAuthorityAddress derives the program-wide mint authority of the
// reward token.
func GetRewardAuthorityAddress(args *GetRewardAuthorityAddressArgs) (solana.DerivedAddress, error) {
	return solana.DeriveProgramAddress(
		args.Program,
		RewardAuthorityPrefix,
	)
}
