package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/code/common"
	"github.com/code-payments/code-staking/pkg/solana/memory"
)

// DefaultRewardYield is the reward accrued per stake by networks created with
// NewStakingNetwork
const DefaultRewardYield = 7

func NewRandomAccount(t *testing.T) *common.Account {
	account, err := common.NewRandomAccount()
	require.NoError(t, err)

	return account
}

// NewStakingNetwork returns an in-memory network with a freshly deployed
// staking program and both of its mints.
func NewStakingNetwork(t *testing.T, opts ...memory.Option) (*memory.Client, *common.StakingConfig) {
	config := &common.StakingConfig{
		Program:     NewRandomAccount(t),
		StakingMint: NewRandomAccount(t),
		RewardMint:  NewRandomAccount(t),
	}

	opts = append([]memory.Option{
		memory.WithStakingProgram(
			config.Program.PublicKey().ToBytes(),
			config.StakingMint.PublicKey().ToBytes(),
			config.RewardMint.PublicKey().ToBytes(),
			DefaultRewardYield,
		),
	}, opts...)

	client := memory.NewClient(opts...)
	client.CreateMint(config.StakingMint.PublicKey().ToBytes())
	client.CreateMint(config.RewardMint.PublicKey().ToBytes())

	return client, config
}

// FundTokenAccount creates the owner's associated token account for mint with
// the provided balance.
func FundTokenAccount(t *testing.T, client *memory.Client, owner, mint *common.Account, quarks uint64) *common.Account {
	address, err := client.CreateTokenAccount(owner.PublicKey().ToBytes(), mint.PublicKey().ToBytes(), quarks)
	require.NoError(t, err)

	account, err := common.NewAccountFromPublicKeyBytes(address)
	require.NoError(t, err)
	return account
}
