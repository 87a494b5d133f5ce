package staking

import (
	"bytes"
	"context"
	"path"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/code/account"
	"github.com/code-payments/code-staking/pkg/code/common"
	"github.com/code-payments/code-staking/pkg/code/transaction"
	"github.com/code-payments/code-staking/pkg/lock"
	"github.com/code-payments/code-staking/pkg/retry"
	"github.com/code-payments/code-staking/pkg/retry/backoff"
	"github.com/code-payments/code-staking/pkg/solana"
	staking_program "github.com/code-payments/code-staking/pkg/solana/staking"
	sync_util "github.com/code-payments/code-staking/pkg/sync"
)

const (
	metricsStructName = "staking.orchestrator"

	lockStripes = 1024
)

// Orchestrator drives staking operations against a single program
// deployment. It is safe for concurrent use, and is shared by every Session it
// opens.
//
// Mutations for the same owner are serialized in-process. When a distributed
// lock manager is configured, they're also serialized across processes.
type Orchestrator struct {
	log  *logrus.Entry
	conf *conf

	config      *Config
	client      solana.Client
	sequencer   *transaction.Sequencer
	provisioner *account.Provisioner

	locks            *sync_util.StripedLock
	distributedLocks lock.Manager

	environment solana.Environment
}

type Option func(*Orchestrator)

// WithDistributedLocks serializes mutations for an owner across every process
// sharing the lock manager's backing store.
func WithDistributedLocks(manager lock.Manager) Option {
	return func(o *Orchestrator) {
		o.distributedLocks = manager
	}
}

// WithEnvironment adds explorer links for the environment to transaction logs.
func WithEnvironment(environment solana.Environment) Option {
	return func(o *Orchestrator) {
		o.environment = environment
	}
}

func NewOrchestrator(
	client solana.Client,
	sequencer *transaction.Sequencer,
	provisioner *account.Provisioner,
	config *Config,
	configProvider ConfigProvider,
	opts ...Option,
) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		log:         logrus.StandardLogger().WithField("type", "staking/orchestrator"),
		conf:        configProvider(),
		config:      config,
		client:      client,
		sequencer:   sequencer,
		provisioner: provisioner,
		locks:       sync_util.NewStripedLock(lockStripes),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *Orchestrator) commitment(ctx context.Context) solana.Commitment {
	if o.config.Commitment.Commitment != "" {
		return o.config.Commitment
	}
	return o.sequencer.Commitment(ctx)
}

// lock serializes mutations on an owner's staking account. The returned
// context is cancelled if a distributed lock is lost while held.
func (o *Orchestrator) lock(ctx context.Context, accounts *common.StakingAccounts) (context.Context, func(), error) {
	program := accounts.Program.PublicKey()
	owner := accounts.Owner.PublicKey()

	key := make([]byte, 0, 64)
	key = append(key, program.ToBytes()...)
	key = append(key, owner.ToBytes()...)

	unlockLocal, err := o.locks.LockContext(ctx, key)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrTimeout, "waiting on session lock: %v", err)
	}

	if o.distributedLocks == nil {
		return ctx, unlockLocal, nil
	}

	name := path.Join(o.conf.distributedLockRoot.Get(ctx), program.ToBase58(), owner.ToBase58())
	distributedLock, err := o.distributedLocks.Create(ctx, name)
	if err != nil {
		unlockLocal()
		return nil, nil, errors.Wrap(err, "error creating distributed lock")
	}

	lostCh, err := distributedLock.Acquire(ctx)
	if err != nil {
		unlockLocal()
		if ctx.Err() != nil {
			return nil, nil, errors.Wrapf(ErrTimeout, "waiting on distributed session lock: %v", err)
		}
		return nil, nil, errors.Wrap(err, "error acquiring distributed lock")
	}

	lockCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-lostCh:
			cancel()
		case <-lockCtx.Done():
		}
	}()

	return lockCtx, func() {
		if err := distributedLock.Unlock(context.Background()); err != nil {
			o.log.WithError(err).WithField("lock", name).Warn("failed to release distributed lock")
		}
		cancel()
		unlockLocal()
	}, nil
}

// getStakingAccount reads and decodes the owner's program state, returning
// ErrNotInitialized when it doesn't exist.
func (o *Orchestrator) getStakingAccount(ctx context.Context, accounts *common.StakingAccounts) (*staking_program.StakingAccount, error) {
	address := accounts.State.PublicKey()

	var info solana.AccountInfo
	_, err := retry.Retry(
		func() (err error) {
			info, err = o.client.GetAccountInfo(address.ToBytes(), o.commitment(ctx))
			return err
		},
		retry.NonRetriableErrors(solana.ErrNoAccountInfo),
		retry.Context(ctx),
		retry.Limit(uint(o.conf.networkAttemptLimit.Get(ctx))),
		retry.BackoffWithJitter(
			backoff.BinaryExponential(o.conf.networkBackoffBaseDelay.Get(ctx)),
			o.conf.networkBackoffMaxDelay.Get(ctx),
			0.1,
		),
	)
	switch {
	case err == nil:
	case errors.Is(err, solana.ErrNoAccountInfo):
		return nil, ErrNotInitialized
	case ctx.Err() != nil:
		return nil, errors.Wrapf(ErrTimeout, "error getting staking account %s: %v", address.ToBase58(), ctx.Err())
	default:
		return nil, errors.Wrapf(ErrNetwork, "error getting staking account %s: %v", address.ToBase58(), err)
	}

	if !bytes.Equal(info.Owner, accounts.Program.PublicKey().ToBytes()) {
		return nil, errors.Wrapf(ErrInvalidStakingAccount, "%s is not owned by the staking program", address.ToBase58())
	}

	var state staking_program.StakingAccount
	if err := state.Unmarshal(info.Data); err != nil {
		return nil, errors.Wrapf(ErrInvalidStakingAccount, "%s: %v", address.ToBase58(), err)
	}

	if !bytes.Equal(state.Owner, accounts.Owner.PublicKey().ToBytes()) {
		return nil, errors.Wrapf(ErrInvalidStakingAccount, "%s belongs to another owner", address.ToBase58())
	}

	return &state, nil
}

// getTokenBalance reads an owner's token balance for mint, treating a missing
// account as empty.
func (o *Orchestrator) getTokenBalance(ctx context.Context, owner, mint *common.Account) (uint64, error) {
	tokenAccount, err := o.provisioner.Get(ctx, owner, mint)
	if err == account.ErrAccountNotFound {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return tokenAccount.Balance, nil
}

func (o *Orchestrator) enforceFeePayerBalance(ctx context.Context, feePayer *common.Account, estimate common.FeeEstimate) error {
	if o.config.MinFeePayerBalance == 0 {
		return nil
	}

	err := common.EnforceMinimumFeePayerBalance(ctx, o.client, feePayer, o.config.MinFeePayerBalance, estimate)
	if err == nil || err == common.ErrFeePayerRequiresFunding {
		return err
	}
	return errors.Wrapf(ErrNetwork, "error checking fee payer balance: %v", err)
}
