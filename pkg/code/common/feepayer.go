package common

import (
	"context"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/staking"
	"github.com/code-payments/code-staking/pkg/solana/token"
)

// FeeEstimate is the worst case lamport cost of a staking operation
type FeeEstimate uint8

const (
	FeeEstimateCreateTokenAccount FeeEstimate = iota
	FeeEstimateInitialize
	FeeEstimateStake
	FeeEstimateUnstake
	FeeEstimateClaimRewards
)

const lamportsPerSignature = 5000

var ErrFeePayerRequiresFunding = errors.New("fee payer requires funding")

// todo: fees are assumed constant, which won't hold once priority fees are set dynamically
func (f FeeEstimate) lamports(client solana.Client) (uint64, error) {
	switch f {
	case FeeEstimateCreateTokenAccount:
		rent, err := client.GetMinimumBalanceForRentExemption(token.AccountSize)
		if err != nil {
			return 0, err
		}
		return rent + lamportsPerSignature, nil
	case FeeEstimateInitialize:
		rent, err := client.GetMinimumBalanceForRentExemption(staking.StakingAccountSize)
		if err != nil {
			return 0, err
		}
		return rent + lamportsPerSignature, nil
	case FeeEstimateStake:
		// The vault is created on first stake
		rent, err := client.GetMinimumBalanceForRentExemption(token.AccountSize)
		if err != nil {
			return 0, err
		}
		return rent + lamportsPerSignature, nil
	case FeeEstimateUnstake, FeeEstimateClaimRewards:
		return lamportsPerSignature, nil
	}
	return 0, errors.Errorf("unknown fee estimate: %d", f)
}

// GetFeePayerBalance returns the fee payer's current balance in lamports.
func GetFeePayerBalance(ctx context.Context, client solana.Client, feePayer *Account) (uint64, error) {
	return client.GetBalance(feePayer.PublicKey().ToBytes())
}

// EnforceMinimumFeePayerBalance returns ErrFeePayerRequiresFunding if the fee
// payer's balance, less the estimated cost of the operation, breaks the provided
// threshold.
func EnforceMinimumFeePayerBalance(ctx context.Context, client solana.Client, feePayer *Account, minBalance uint64, estimate FeeEstimate) error {
	balance, err := GetFeePayerBalance(ctx, client, feePayer)
	if err != nil {
		return err
	}

	fees, err := estimate.lamports(client)
	if err != nil {
		return err
	}

	if fees <= balance && balance-fees >= minBalance {
		return nil
	}

	metrics.RecordCount(ctx, "FeePayer/min_balance_enforced", 1)

	return ErrFeePayerRequiresFunding
}
