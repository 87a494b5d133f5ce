package staking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/code/common"
	"github.com/code-payments/code-staking/pkg/code/transaction"
	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/solana"
)

const memoPrefix = "code-staking"

// Session performs staking operations on behalf of a single owner.
//
// Mutations are serialized with every other session for the same owner, and
// a failed mutation leaves the session's state as it was. Sessions cache
// state locally, so a session that may be racing another process should
// Refresh before acting on State.
type Session struct {
	log          *logrus.Entry
	orchestrator *Orchestrator

	owner    *common.Account
	feePayer *common.Account
	accounts *common.StakingAccounts

	stateMu sync.RWMutex
	state   State
}

type SessionOption func(*Session)

// WithFeePayer pays transaction fees and rent from an account other than the
// owner.
func WithFeePayer(feePayer *common.Account) SessionOption {
	return func(s *Session) {
		s.feePayer = feePayer
	}
}

// OpenSession derives the owner's staking addresses and loads their current
// state from the network.
func (o *Orchestrator) OpenSession(ctx context.Context, owner *common.Account, opts ...SessionOption) (*Session, error) {
	if err := owner.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidOwner, err.Error())
	}
	if owner.PrivateKey() == nil {
		return nil, errors.Wrapf(ErrInvalidOwner, "%s has no private key", owner.PublicKey().ToBase58())
	}

	accounts, err := owner.GetStakingAccounts(o.config.stakingConfig())
	if err != nil {
		return nil, errors.Wrap(err, "error deriving staking accounts")
	}

	s := &Session{
		orchestrator: o,
		owner:        owner,
		feePayer:     owner,
		accounts:     accounts,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.feePayer.Validate(); err != nil || s.feePayer.PrivateKey() == nil {
		return nil, errors.Wrap(transaction.ErrMissingSigner, "fee payer must be able to sign")
	}

	s.log = o.log.WithFields(logrus.Fields{
		"session_id":      uuid.New().String(),
		"owner":           owner.PublicKey().ToBase58(),
		"staking_account": accounts.State.PublicKey().ToBase58(),
	})

	if _, err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) Owner() *common.Account {
	return s.owner
}

// Accounts returns the addresses the session operates on.
func (s *Session) Accounts() *common.StakingAccounts {
	return s.accounts
}

func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	return s.state
}

func (s *Session) setState(state State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.state = state
}

// Refresh re-derives the session's state from the owner's staking account.
func (s *Session) Refresh(ctx context.Context) (State, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Refresh")
	defer tracer.End()

	lockCtx, unlock, err := s.orchestrator.lock(ctx, s.accounts)
	if err != nil {
		tracer.OnError(err)
		return s.State(), err
	}
	defer unlock()

	account, err := s.orchestrator.getStakingAccount(lockCtx, s.accounts)
	if err == ErrNotInitialized {
		account = nil
	} else if err != nil {
		tracer.OnError(err)
		return s.State(), err
	}

	state := stateOf(account)
	s.setState(state)
	return state, nil
}

// Initialize creates the owner's staking account. It succeeds without
// submitting anything when the account already exists.
func (s *Session) Initialize(ctx context.Context) error {
	return s.mutate(ctx, "Initialize", func(ctx context.Context, log *logrus.Entry) (State, error) {
		existing, err := s.orchestrator.getStakingAccount(ctx, s.accounts)
		if err == nil {
			log.Debug("staking account already initialized")
			return stateOf(existing), nil
		} else if err != ErrNotInitialized {
			return 0, err
		}

		err = s.submit(ctx, log, "initialize", common.FeeEstimateInitialize, s.accounts.GetInitializeInstruction())
		if _, ok := transaction.IsRejected(err); ok {
			// Another process may have initialized it first
			existing, getErr := s.orchestrator.getStakingAccount(ctx, s.accounts)
			if getErr == nil {
				log.WithError(err).Info("staking account was initialized concurrently")
				return stateOf(existing), nil
			}
			return 0, err
		} else if err != nil {
			return 0, err
		}

		return StateInitialized, nil
	})
}

// Stake moves quarks from the owner's staking token account into the vault.
func (s *Session) Stake(ctx context.Context, quarks uint64) error {
	if quarks == 0 {
		return ErrInvalidAmount
	}

	return s.mutate(ctx, "Stake", func(ctx context.Context, log *logrus.Entry) (State, error) {
		if !s.State().isInitialized() {
			return 0, ErrNotInitialized
		}

		balance, err := s.orchestrator.getTokenBalance(ctx, s.owner, s.accounts.StakingMint)
		if err != nil {
			return 0, err
		}
		if balance < quarks {
			return 0, errors.Wrapf(ErrInsufficientBalance, "cannot stake %d quarks with a balance of %d", quarks, balance)
		}

		if err := s.submit(ctx, log, "stake", common.FeeEstimateStake, s.accounts.GetStakeInstruction(quarks)); err != nil {
			return 0, err
		}

		metrics.RecordCount(ctx, stakedQuarksMetricName, quarks)
		return StateRewardsClaimable, nil
	})
}

// Unstake returns quarks from the vault to the owner's staking token account,
// creating that account if needed.
func (s *Session) Unstake(ctx context.Context, quarks uint64) error {
	if quarks == 0 {
		return ErrInvalidAmount
	}

	return s.mutate(ctx, "Unstake", func(ctx context.Context, log *logrus.Entry) (State, error) {
		if !s.State().isInitialized() {
			return 0, ErrNotInitialized
		}

		account, err := s.orchestrator.getStakingAccount(ctx, s.accounts)
		if err != nil {
			return 0, err
		}
		if account.StakedAmount < quarks {
			return 0, errors.Wrapf(ErrInsufficientBalance, "cannot unstake %d quarks with %d staked", quarks, account.StakedAmount)
		}

		if _, err := s.orchestrator.provisioner.Ensure(ctx, s.feePayer, s.owner, s.accounts.StakingMint); err != nil {
			return 0, err
		}

		if err := s.submit(ctx, log, "unstake", common.FeeEstimateUnstake, s.accounts.GetUnstakeInstruction(quarks)); err != nil {
			return 0, err
		}

		metrics.RecordCount(ctx, unstakedQuarksMetricName, quarks)
		return afterUnstake(account.StakedAmount - quarks), nil
	})
}

// ClaimRewards moves pending rewards into the owner's reward token account,
// creating that account if needed, and returns its balance afterwards.
func (s *Session) ClaimRewards(ctx context.Context) (uint64, error) {
	err := s.mutate(ctx, "ClaimRewards", func(ctx context.Context, log *logrus.Entry) (State, error) {
		if !s.State().isInitialized() {
			return 0, ErrNotInitialized
		}

		account, err := s.orchestrator.getStakingAccount(ctx, s.accounts)
		if err != nil {
			return 0, err
		}

		if _, err := s.orchestrator.provisioner.Ensure(ctx, s.feePayer, s.owner, s.accounts.RewardMint); err != nil {
			return 0, err
		}

		if err := s.submit(ctx, log, "claim_rewards", common.FeeEstimateClaimRewards, s.accounts.GetClaimRewardsInstruction()); err != nil {
			return 0, err
		}

		metrics.RecordCount(ctx, claimedQuarksMetricName, account.PendingRewards)
		return afterClaim(account.StakedAmount), nil
	})
	if err != nil {
		return 0, err
	}

	return s.orchestrator.getTokenBalance(ctx, s.owner, s.accounts.RewardMint)
}

type mutation func(ctx context.Context, log *logrus.Entry) (State, error)

func (s *Session) mutate(ctx context.Context, method string, fn mutation) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, method)
	defer tracer.End()

	from := s.State()
	tracer.AddAttributes(map[string]interface{}{
		"owner":      s.owner.PublicKey().ToBase58(),
		"from_state": from.String(),
	})

	if timeout := s.orchestrator.config.OperationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := s.log.WithField("method", method)
	start := time.Now()

	to, err := func() (State, error) {
		lockCtx, unlock, err := s.orchestrator.lock(ctx, s.accounts)
		if err != nil {
			return 0, err
		}
		defer unlock()

		to, err := fn(lockCtx, log)
		if err != nil {
			return 0, err
		}

		s.setState(to)
		return to, nil
	}()

	if err != nil {
		to = from
	}
	recordOperationEvent(ctx, method, from, to, err, time.Since(start))

	if err != nil {
		tracer.OnError(err)
		log.WithError(err).Warn("staking operation failed")
		return err
	}

	log.WithFields(logrus.Fields{
		"from_state": from.String(),
		"to_state":   to.String(),
	}).Info("staking operation succeeded")
	return nil
}

func (s *Session) submit(ctx context.Context, log *logrus.Entry, operation string, estimate common.FeeEstimate, ixn solana.Instruction) error {
	if err := s.orchestrator.enforceFeePayerBalance(ctx, s.feePayer, estimate); err != nil {
		return err
	}

	result, err := s.orchestrator.sequencer.Submit(ctx, &transaction.Request{
		FeePayer:     s.feePayer,
		Instructions: []solana.Instruction{ixn},
		Signers:      []*common.Account{s.owner},
		Memo:         fmt.Sprintf("%s:%s", memoPrefix, operation),
	})
	if err != nil {
		return err
	}

	log = log.WithFields(logrus.Fields{
		"signature": result.Signature.String(),
		"slot":      result.Slot,
	})
	if s.orchestrator.environment != "" {
		log = log.WithField("explorer_url", s.orchestrator.environment.ExplorerTransactionURL(result.Signature))
	}
	log.Info("transaction confirmed")
	return nil
}
