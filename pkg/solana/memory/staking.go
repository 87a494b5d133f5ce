package memory

import (
	"bytes"
	"crypto/ed25519"

	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/solana/token"
)

// stakingProgram emulates the on-chain staking program. Rewards accrue as a
// fixed yield per stake or unstake that leaves tokens staked.
type stakingProgram struct {
	id          ed25519.PublicKey
	stakingMint ed25519.PublicKey
	rewardMint  ed25519.PublicKey
	rewardYield uint64
}

func (p *stakingProgram) execute(c *Client, working *workingSet, m solana.Message, index int) error {
	ixn, err := staking.DecompileInstruction(p.id, m, index)
	if err != nil {
		return invalidInstructionData
	}

	switch ixn.Type {
	case staking.InstructionTypeInitialize:
		return p.initialize(c, working, ixn)
	case staking.InstructionTypeStake:
		return p.stake(working, ixn)
	case staking.InstructionTypeUnstake:
		return p.unstake(working, ixn)
	case staking.InstructionTypeClaimRewards:
		return p.claimRewards(working, ixn)
	}
	return invalidInstructionData
}

// Accounts: [staking_account, owner, system_program]
func (p *stakingProgram) initialize(c *Client, working *workingSet, ixn *staking.DecompiledInstruction) error {
	stakingAccount, owner := ixn.Accounts[0], ixn.Accounts[1]
	if !ixn.Signers[1] {
		return missingRequiredSignature
	}

	derived, err := staking.GetStakingAccountAddress(&staking.GetStakingAccountAddressArgs{
		Program: p.id,
		Owner:   owner,
	})
	if err != nil || !bytes.Equal(derived.Address, stakingAccount) || derived.Bump != ixn.Bump {
		return invalidSeeds
	}

	if _, ok := working.get(stakingAccount); ok {
		return accountAlreadyInitialized
	}

	if c.transactionFee > 0 {
		rent := rentExemption(staking.StakingAccountSize)
		payer, ok := working.get(owner)
		if !ok || payer.lamports < rent {
			return solana.CustomError(1) // SystemError::ResultWithNegativeLamports
		}
		working.modify(owner).lamports -= rent
	}

	state := &staking.StakingAccount{
		Owner: owner,
		Bump:  ixn.Bump,
	}
	working.put(stakingAccount, &account{
		owner:       p.id,
		lamports:    rentExemption(staking.StakingAccountSize),
		data:        state.Marshal(),
		hiddenReads: c.visibilityDelay,
	})
	return nil
}

// Accounts: [staking_account, staking_token_account, vault, staking_mint, owner, token_program]
func (p *stakingProgram) stake(working *workingSet, ixn *staking.DecompiledInstruction) error {
	stakingAccount, tokenAccount, vault, mint, owner := ixn.Accounts[0], ixn.Accounts[1], ixn.Accounts[2], ixn.Accounts[3], ixn.Accounts[4]

	state, err := p.loadStakingAccount(working, stakingAccount, owner, ixn)
	if err != nil {
		return err
	}
	if ixn.Amount == 0 {
		return staking.ErrorInvalidAmount.ToCustomError()
	}
	if !bytes.Equal(mint, p.stakingMint) {
		return token.ErrorInvalidMint
	}
	if err := p.checkVault(stakingAccount, vault); err != nil {
		return err
	}

	source, ok := getTokenAccount(working, tokenAccount)
	if !ok {
		return uninitializedAccount
	}
	if !bytes.Equal(source.Owner, owner) {
		return token.ErrorOwnerMismatch
	}
	if !bytes.Equal(source.Mint, p.stakingMint) {
		return token.ErrorMintMismatch
	}
	if source.Amount < ixn.Amount {
		return token.ErrorInsufficientFunds
	}

	if _, ok := working.get(vault); !ok {
		working.put(vault, newTokenAccount(vault, p.stakingMint, 0))
	}
	dest, _ := getTokenAccount(working, vault)
	moveTokens(working, tokenAccount, source, vault, dest, ixn.Amount)

	state.StakedAmount += ixn.Amount
	state.PendingRewards += p.rewardYield
	working.modify(stakingAccount).data = state.Marshal()

	return nil
}

// Accounts: [staking_account, staking_token_account, vault, staking_mint, owner, token_program]
func (p *stakingProgram) unstake(working *workingSet, ixn *staking.DecompiledInstruction) error {
	stakingAccount, tokenAccount, vault, mint, owner := ixn.Accounts[0], ixn.Accounts[1], ixn.Accounts[2], ixn.Accounts[3], ixn.Accounts[4]

	state, err := p.loadStakingAccount(working, stakingAccount, owner, ixn)
	if err != nil {
		return err
	}
	if ixn.Amount == 0 {
		return staking.ErrorInvalidAmount.ToCustomError()
	}
	if !bytes.Equal(mint, p.stakingMint) {
		return token.ErrorInvalidMint
	}
	if err := p.checkVault(stakingAccount, vault); err != nil {
		return err
	}
	if state.StakedAmount < ixn.Amount {
		return staking.ErrorInsufficientStake.ToCustomError()
	}

	dest, ok := getTokenAccount(working, tokenAccount)
	if !ok {
		return uninitializedAccount
	}
	if !bytes.Equal(dest.Owner, owner) {
		return token.ErrorOwnerMismatch
	}
	if !bytes.Equal(dest.Mint, p.stakingMint) {
		return token.ErrorMintMismatch
	}

	source, ok := getTokenAccount(working, vault)
	if !ok {
		return uninitializedAccount
	}
	moveTokens(working, vault, source, tokenAccount, dest, ixn.Amount)

	state.StakedAmount -= ixn.Amount
	if state.StakedAmount > 0 {
		state.PendingRewards += p.rewardYield
	}
	working.modify(stakingAccount).data = state.Marshal()
	return nil
}

// Accounts: [staking_account, reward_token_account, reward_mint, reward_authority, owner, token_program]
func (p *stakingProgram) claimRewards(working *workingSet, ixn *staking.DecompiledInstruction) error {
	stakingAccount, tokenAccount, mint, authority, owner := ixn.Accounts[0], ixn.Accounts[1], ixn.Accounts[2], ixn.Accounts[3], ixn.Accounts[4]

	state, err := p.loadStakingAccount(working, stakingAccount, owner, ixn)
	if err != nil {
		return err
	}
	if !bytes.Equal(mint, p.rewardMint) {
		return token.ErrorInvalidMint
	}

	derived, err := staking.GetRewardAuthorityAddress(&staking.GetRewardAuthorityAddressArgs{
		Program: p.id,
	})
	if err != nil || !bytes.Equal(derived.Address, authority) {
		return invalidSeeds
	}

	dest, ok := getTokenAccount(working, tokenAccount)
	if !ok {
		return uninitializedAccount
	}
	if !bytes.Equal(dest.Owner, owner) {
		return token.ErrorOwnerMismatch
	}
	if !bytes.Equal(dest.Mint, p.rewardMint) {
		return token.ErrorMintMismatch
	}

	// Rewards are minted by the reward authority
	dest.Amount += state.PendingRewards
	working.modify(tokenAccount).data = dest.Marshal()

	state.TotalClaimed += state.PendingRewards
	state.PendingRewards = 0
	working.modify(stakingAccount).data = state.Marshal()
	return nil
}

func (p *stakingProgram) loadStakingAccount(working *workingSet, address, owner ed25519.PublicKey, ixn *staking.DecompiledInstruction) (*staking.StakingAccount, error) {
	if !ixn.Signers[4] {
		return nil, missingRequiredSignature
	}

	a, ok := working.get(address)
	if !ok {
		return nil, uninitializedAccount
	}
	if !bytes.Equal(a.owner, p.id) {
		return nil, incorrectProgramID
	}

	var state staking.StakingAccount
	if err := state.Unmarshal(a.data); err != nil {
		return nil, invalidAccountData
	}
	if !bytes.Equal(state.Owner, owner) {
		return nil, staking.ErrorOwnerMismatch.ToCustomError()
	}
	if state.Bump != ixn.Bump {
		return nil, invalidSeeds
	}
	return &state, nil
}

func (p *stakingProgram) checkVault(stakingAccount, vault ed25519.PublicKey) error {
	derived, err := staking.GetVaultAddress(&staking.GetVaultAddressArgs{
		Program:        p.id,
		StakingAccount: stakingAccount,
	})
	if err != nil || !bytes.Equal(derived.Address, vault) {
		return invalidSeeds
	}
	return nil
}
