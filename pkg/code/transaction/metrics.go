package transaction

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/metrics"
)

const (
	metricsStructName = "transaction.sequencer"

	submissionEventName            = "TransactionSubmission"
	confirmationDurationMetricName = "TransactionSequencer/confirmation_duration"
	freshTokenRetryMetricName      = "TransactionSequencer/fresh_token_retry"
	rebroadcastMetricName          = "TransactionSequencer/rebroadcast"
)

func recordSubmissionEvent(ctx context.Context, err error, attempts uint64, duration time.Duration) {
	metrics.RecordEvent(ctx, submissionEventName, map[string]interface{}{
		"outcome":  outcomeOf(err),
		"attempts": attempts,
		"duration": duration.Milliseconds(),
	})

	if err == nil {
		metrics.RecordDuration(ctx, confirmationDurationMetricName, duration)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "confirmed"
	}

	if _, ok := IsRejected(err); ok {
		return "rejected"
	}

	switch {
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrStaleFreshnessToken):
		return "stale_freshness_token"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrMissingSigner):
		return "invalid_request"
	}
	return "unknown"
}
