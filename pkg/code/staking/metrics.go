package staking

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/code/common"
	"github.com/code-payments/code-staking/pkg/code/transaction"
	"github.com/code-payments/code-staking/pkg/metrics"
)

const (
	operationEventName = "StakingOperation"

	stakedQuarksMetricName   = "StakingOrchestrator/staked_quarks"
	unstakedQuarksMetricName = "StakingOrchestrator/unstaked_quarks"
	claimedQuarksMetricName  = "StakingOrchestrator/claimed_quarks"
)

func recordOperationEvent(ctx context.Context, operation string, from, to State, err error, duration time.Duration) {
	metrics.RecordEvent(ctx, operationEventName, map[string]interface{}{
		"operation":  operation,
		"from_state": from.String(),
		"to_state":   to.String(),
		"outcome":    outcomeOf(err),
		"duration":   duration.Milliseconds(),
	})
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}

	if _, ok := transaction.IsRejected(err); ok {
		return "rejected"
	}

	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrNotInitialized), errors.Is(err, ErrInsufficientBalance):
		return "precondition"
	case errors.Is(err, common.ErrFeePayerRequiresFunding):
		return "fee_payer_requires_funding"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrStaleFreshnessToken):
		return "stale_freshness_token"
	}
	return "unknown"
}
