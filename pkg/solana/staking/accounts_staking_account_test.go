package staking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/solana"
)

func TestStakingAccount_RoundTrip(t *testing.T) {
	expected := StakingAccount{
		Owner:          newKey(t),
		StakedAmount:   10,
		PendingRewards: 3,
		TotalClaimed:   7,
		Bump:           251,
	}

	data := expected.Marshal()
	assert.Len(t, data, StakingAccountSize)

	var actual StakingAccount
	require.NoError(t, actual.Unmarshal(data))
	assert.Equal(t, expected, actual)
	assert.Contains(t, actual.String(), "staked_amount=10")
}

func TestStakingAccount_InvalidData(t *testing.T) {
	var account StakingAccount
	assert.Equal(t, ErrInvalidAccountData, account.Unmarshal(make([]byte, StakingAccountSize-1)))
	assert.Equal(t, ErrInvalidAccountData, account.Unmarshal(make([]byte, StakingAccountSize)))
}

func TestGetStakingError(t *testing.T) {
	txErr, err := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: 0,
		Err:   ErrorInsufficientStake.ToCustomError(),
	})
	require.NoError(t, err)

	stakingErr, ok := GetStakingError(txErr)
	require.True(t, ok)
	assert.Equal(t, ErrorInsufficientStake, stakingErr)
	assert.Equal(t, "InsufficientStake", stakingErr.String())

	txErr, err = solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: 0,
		Err:   solana.CustomError(1),
	})
	require.NoError(t, err)
	_, ok = GetStakingError(txErr)
	assert.False(t, ok)

	_, ok = GetStakingError(solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound))
	assert.False(t, ok)

	_, ok = GetStakingError(nil)
	assert.False(t, ok)
}
