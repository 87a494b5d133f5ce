package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-staking/pkg/solana/memory"
	"github.com/code-payments/code-staking/pkg/solana/token"
)

func TestEnforceMinimumFeePayerBalance(t *testing.T) {
	ctx := context.Background()
	client := memory.NewClient()
	feePayer := newRandomTestAccount(t)

	err := EnforceMinimumFeePayerBalance(ctx, client, feePayer, 0, FeeEstimateClaimRewards)
	assert.Equal(t, ErrFeePayerRequiresFunding, err)

	client.FundLamports(feePayer.PublicKey().ToBytes(), lamportsPerSignature)
	assert.NoError(t, EnforceMinimumFeePayerBalance(ctx, client, feePayer, 0, FeeEstimateClaimRewards))
	assert.NoError(t, EnforceMinimumFeePayerBalance(ctx, client, feePayer, 0, FeeEstimateUnstake))

	err = EnforceMinimumFeePayerBalance(ctx, client, feePayer, 1, FeeEstimateClaimRewards)
	assert.Equal(t, ErrFeePayerRequiresFunding, err)

	err = EnforceMinimumFeePayerBalance(ctx, client, feePayer, 0, FeeEstimateCreateTokenAccount)
	assert.Equal(t, ErrFeePayerRequiresFunding, err)

	rent, err := client.GetMinimumBalanceForRentExemption(token.AccountSize)
	require.NoError(t, err)
	client.FundLamports(feePayer.PublicKey().ToBytes(), rent)
	assert.NoError(t, EnforceMinimumFeePayerBalance(ctx, client, feePayer, 0, FeeEstimateCreateTokenAccount))
	assert.NoError(t, EnforceMinimumFeePayerBalance(ctx, client, feePayer, 0, FeeEstimateStake))

	balance, err := GetFeePayerBalance(ctx, client, feePayer)
	require.NoError(t, err)
	assert.EqualValues(t, rent+lamportsPerSignature, balance)
}
