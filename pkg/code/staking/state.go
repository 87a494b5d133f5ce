package staking

import (
	staking_program "github.com/code-payments/code-staking/pkg/solana/staking"
)

// State is a session's view of its owner's staking account.
//
//	Uninitialized -> Initialized -> Staked <-> RewardsClaimable
type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateStaked
	StateRewardsClaimable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateStaked:
		return "staked"
	case StateRewardsClaimable:
		return "rewards_claimable"
	}
	return "unknown"
}

func (s State) isInitialized() bool {
	return s != StateUninitialized
}

func stateOf(account *staking_program.StakingAccount) State {
	switch {
	case account == nil:
		return StateUninitialized
	case account.StakedAmount == 0:
		return StateInitialized
	case account.PendingRewards > 0:
		return StateRewardsClaimable
	default:
		return StateStaked
	}
}

// afterUnstake is the state once remaining quarks are left staked.
func afterUnstake(remaining uint64) State {
	if remaining == 0 {
		return StateInitialized
	}
	return StateRewardsClaimable
}

// afterClaim is the state once rewards are claimed with staked quarks still
// in the vault.
func afterClaim(staked uint64) State {
	if staked == 0 {
		return StateInitialized
	}
	return StateStaked
}
