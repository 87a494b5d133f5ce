package staking

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/code-payments/code-staking/pkg/metrics"
)

// Balances are the owner's token balances, in quarks. Missing token accounts
// read as zero.
type Balances struct {
	Staking uint64
	Reward  uint64
}

// Position is the owner's staking account state, in quarks.
type Position struct {
	Staked         uint64
	PendingRewards uint64
	TotalClaimed   uint64
}

// QueryBalances reads the owner's staking and reward token balances. It takes
// no locks and never creates accounts.
func (s *Session) QueryBalances(ctx context.Context) (*Balances, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "QueryBalances")
	defer tracer.End()

	var balances Balances

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		balances.Staking, err = s.orchestrator.getTokenBalance(ctx, s.owner, s.accounts.StakingMint)
		return err
	})
	g.Go(func() (err error) {
		balances.Reward, err = s.orchestrator.getTokenBalance(ctx, s.owner, s.accounts.RewardMint)
		return err
	})

	if err := g.Wait(); err != nil {
		tracer.OnError(err)
		return nil, err
	}
	return &balances, nil
}

// Position reads the owner's staking account, returning ErrNotInitialized
// when it doesn't exist.
func (s *Session) Position(ctx context.Context) (*Position, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Position")
	defer tracer.End()

	account, err := s.orchestrator.getStakingAccount(ctx, s.accounts)
	if err != nil {
		if err != ErrNotInitialized {
			tracer.OnError(err)
		}
		return nil, err
	}

	return &Position{
		Staked:         account.StakedAmount,
		PendingRewards: account.PendingRewards,
		TotalClaimed:   account.TotalClaimed,
	}, nil
}
