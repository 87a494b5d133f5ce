package common

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/staking"
)

// StakingConfig identifies a deployment of the staking program.
type StakingConfig struct {
	Program     *Account
	StakingMint *Account
	RewardMint  *Account
}

// StakingAccounts is the full set of addresses an owner interacts with for a
// given staking program deployment.
type StakingAccounts struct {
	Owner *Account

	State     *Account
	StateBump uint8

	Vault     *Account
	VaultBump uint8

	RewardAuthority     *Account
	RewardAuthorityBump uint8

	StakingTokenAccount *Account
	RewardTokenAccount  *Account

	Program     *Account
	StakingMint *Account
	RewardMint  *Account
}

func (a *Account) ToStakingAccount(program *Account) (*Account, uint8, error) {
	if err := a.Validate(); err != nil {
		return nil, 0, errors.Wrap(err, "error validating owner account")
	}

	derived, err := staking.GetStakingAccountAddress(&staking.GetStakingAccountAddressArgs{
		Program: program.PublicKey().ToBytes(),
		Owner:   a.PublicKey().ToBytes(),
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "error getting staking account address")
	}

	account, err := NewAccountFromPublicKeyBytes(derived.Address)
	if err != nil {
		return nil, 0, errors.Wrap(err, "invalid staking account address")
	}
	return account, derived.Bump, nil
}

func (a *Account) GetStakingAccounts(config *StakingConfig) (*StakingAccounts, error) {
	stateAccount, stateBump, err := a.ToStakingAccount(config.Program)
	if err != nil {
		return nil, err
	}

	vault, err := staking.GetVaultAddress(&staking.GetVaultAddressArgs{
		Program:        config.Program.PublicKey().ToBytes(),
		StakingAccount: stateAccount.PublicKey().ToBytes(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error getting vault address")
	}

	rewardAuthority, err := staking.GetRewardAuthorityAddress(&staking.GetRewardAuthorityAddressArgs{
		Program: config.Program.PublicKey().ToBytes(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "error getting reward authority address")
	}

	vaultAccount, err := NewAccountFromPublicKeyBytes(vault.Address)
	if err != nil {
		return nil, errors.Wrap(err, "invalid vault address")
	}

	rewardAuthorityAccount, err := NewAccountFromPublicKeyBytes(rewardAuthority.Address)
	if err != nil {
		return nil, errors.Wrap(err, "invalid reward authority address")
	}

	stakingTokenAccount, err := a.ToAssociatedTokenAccount(config.StakingMint)
	if err != nil {
		return nil, errors.Wrap(err, "error getting staking token account address")
	}

	rewardTokenAccount, err := a.ToAssociatedTokenAccount(config.RewardMint)
	if err != nil {
		return nil, errors.Wrap(err, "error getting reward token account address")
	}

	return &StakingAccounts{
		Owner: a,

		State:     stateAccount,
		StateBump: stateBump,

		Vault:     vaultAccount,
		VaultBump: vault.Bump,

		RewardAuthority:     rewardAuthorityAccount,
		RewardAuthorityBump: rewardAuthority.Bump,

		StakingTokenAccount: stakingTokenAccount,
		RewardTokenAccount:  rewardTokenAccount,

		Program:     config.Program,
		StakingMint: config.StakingMint,
		RewardMint:  config.RewardMint,
	}, nil
}

// GetInitializeInstruction gets an Initialize instruction for the owner's
// staking account
func (a *StakingAccounts) GetInitializeInstruction() solana.Instruction {
	return staking.NewInitializeInstruction(
		&staking.InitializeInstructionAccounts{
			Program:        a.Program.PublicKey().ToBytes(),
			StakingAccount: a.State.PublicKey().ToBytes(),
			Owner:          a.Owner.PublicKey().ToBytes(),
		},
		&staking.InitializeInstructionArgs{
			Bump: a.StateBump,
		},
	)
}

// GetStakeInstruction gets a Stake instruction moving quarks from the owner's
// staking token account into the vault
func (a *StakingAccounts) GetStakeInstruction(quarks uint64) solana.Instruction {
	return staking.NewStakeInstruction(
		&staking.StakeInstructionAccounts{
			Program:             a.Program.PublicKey().ToBytes(),
			StakingAccount:      a.State.PublicKey().ToBytes(),
			StakingTokenAccount: a.StakingTokenAccount.PublicKey().ToBytes(),
			Vault:               a.Vault.PublicKey().ToBytes(),
			StakingMint:         a.StakingMint.PublicKey().ToBytes(),
			Owner:               a.Owner.PublicKey().ToBytes(),
		},
		&staking.StakeInstructionArgs{
			Amount: quarks,
			Bump:   a.StateBump,
		},
	)
}

// GetUnstakeInstruction gets an Unstake instruction moving quarks from the
// vault back into the owner's staking token account
func (a *StakingAccounts) GetUnstakeInstruction(quarks uint64) solana.Instruction {
	return staking.NewUnstakeInstruction(
		&staking.UnstakeInstructionAccounts{
			Program:             a.Program.PublicKey().ToBytes(),
			StakingAccount:      a.State.PublicKey().ToBytes(),
			StakingTokenAccount: a.StakingTokenAccount.PublicKey().ToBytes(),
			Vault:               a.Vault.PublicKey().ToBytes(),
			StakingMint:         a.StakingMint.PublicKey().ToBytes(),
			Owner:               a.Owner.PublicKey().ToBytes(),
		},
		&staking.UnstakeInstructionArgs{
			Amount: quarks,
			Bump:   a.StateBump,
		},
	)
}

// GetClaimRewardsInstruction gets a ClaimRewards instruction paying pending
// rewards into the owner's reward token account
func (a *StakingAccounts) GetClaimRewardsInstruction() solana.Instruction {
	return staking.NewClaimRewardsInstruction(
		&staking.ClaimRewardsInstructionAccounts{
			Program:            a.Program.PublicKey().ToBytes(),
			StakingAccount:     a.State.PublicKey().ToBytes(),
			RewardTokenAccount: a.RewardTokenAccount.PublicKey().ToBytes(),
			RewardMint:         a.RewardMint.PublicKey().ToBytes(),
			RewardAuthority:    a.RewardAuthority.PublicKey().ToBytes(),
			Owner:              a.Owner.PublicKey().ToBytes(),
		},
		&staking.ClaimRewardsInstructionArgs{
			Bump: a.StateBump,
		},
	)
}
