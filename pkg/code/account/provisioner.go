package account

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/code/common"
	"github.com/code-payments/code-staking/pkg/code/transaction"
	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/retry"
	"github.com/code-payments/code-staking/pkg/retry/backoff"
	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/token"
	"github.com/code-payments/code-staking/pkg/sync"
)

const (
	metricsStructName = "account.provisioner"

	lockStripes = 1024
)

// TokenAccount is an owner's associated token account for a mint.
type TokenAccount struct {
	Address *common.Account
	Owner   *common.Account
	Mint    *common.Account
	Balance uint64
}

// Provisioner resolves, and if needed creates, associated token accounts.
//
// Concurrent calls for the same owner and mint within a process are
// serialized, so at most one creation is submitted. Across processes the
// idempotent create instruction makes a lost race indistinguishable from
// success.
type Provisioner struct {
	log       *logrus.Entry
	conf      *conf
	client    solana.Client
	sequencer *transaction.Sequencer
	locks     *sync.StripedLock
}

func NewProvisioner(client solana.Client, sequencer *transaction.Sequencer, configProvider ConfigProvider) *Provisioner {
	return &Provisioner{
		log:       logrus.StandardLogger().WithField("type", "account/provisioner"),
		conf:      configProvider(),
		client:    client,
		sequencer: sequencer,
		locks:     sync.NewStripedLock(lockStripes),
	}
}

// Address returns the associated token account address for owner and mint
// without any network calls.
func (p *Provisioner) Address(ctx context.Context, owner, mint *common.Account) (*common.Account, error) {
	if err := owner.Validate(); err != nil {
		return nil, errors.Wrap(ErrInvalidOwner, err.Error())
	}

	if !p.conf.allowOwnerOffCurve.Get(ctx) && !owner.IsOnCurve() {
		return nil, errors.Wrapf(ErrInvalidOwner, "%s is off curve", owner.PublicKey().ToBase58())
	}

	return owner.ToAssociatedTokenAccount(mint)
}

// Get returns the owner's token account for mint, or ErrAccountNotFound. It
// never submits transactions.
func (p *Provisioner) Get(ctx context.Context, owner, mint *common.Account) (*TokenAccount, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Get")
	defer tracer.End()

	address, err := p.Address(ctx, owner, mint)
	if err != nil {
		return nil, err
	}

	account, err := p.get(ctx, address, owner, mint)
	if err != nil && err != ErrAccountNotFound {
		tracer.OnError(err)
	}
	return account, err
}

// Ensure returns the owner's token account for mint, creating it with payer
// covering fees and rent when it doesn't exist.
func (p *Provisioner) Ensure(ctx context.Context, payer, owner, mint *common.Account) (*TokenAccount, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Ensure")
	defer tracer.End()

	account, err := p.ensure(ctx, payer, owner, mint)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}
	return account, nil
}

func (p *Provisioner) ensure(ctx context.Context, payer, owner, mint *common.Account) (*TokenAccount, error) {
	address, err := p.Address(ctx, owner, mint)
	if err != nil {
		return nil, err
	}

	log := p.log.WithFields(logrus.Fields{
		"method":  "Ensure",
		"owner":   owner.PublicKey().ToBase58(),
		"mint":    mint.PublicKey().ToBase58(),
		"address": address.PublicKey().ToBase58(),
	})

	unlock, err := p.locks.LockContext(ctx, address.PublicKey().ToBytes())
	if err != nil {
		return nil, errors.Wrapf(transaction.ErrTimeout, "waiting to provision %s: %v", address.PublicKey().ToBase58(), err)
	}
	defer unlock()

	existing, err := p.get(ctx, address, owner, mint)
	if err == nil {
		return existing, nil
	} else if err != ErrAccountNotFound {
		return nil, err
	}

	create, _, err := token.CreateAssociatedTokenAccountIdempotent(
		payer.PublicKey().ToBytes(),
		owner.PublicKey().ToBytes(),
		mint.PublicKey().ToBytes(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error creating instruction")
	}

	result, err := p.sequencer.Submit(ctx, &transaction.Request{
		FeePayer:     payer,
		Instructions: []solana.Instruction{create},
	})
	if rejected, ok := transaction.IsRejected(err); ok {
		log.WithError(err).Warn("token account creation rejected")
		return nil, &CreationRejectedError{Rejection: rejected}
	} else if err != nil {
		return nil, err
	}

	log.WithField("signature", result.Signature.String()).Info("created token account")
	metrics.RecordCount(ctx, "AccountProvisioner/created", 1)

	return p.awaitVisibility(ctx, address, owner, mint)
}

// awaitVisibility re-queries a freshly created account until the node we
// read from has caught up with the one that confirmed it.
func (p *Provisioner) awaitVisibility(ctx context.Context, address, owner, mint *common.Account) (*TokenAccount, error) {
	var account *TokenAccount
	_, err := retry.Retry(
		func() (err error) {
			account, err = p.get(ctx, address, owner, mint)
			return err
		},
		retry.RetriableErrors(ErrAccountNotFound),
		retry.Context(ctx),
		retry.Limit(uint(p.conf.visibilityAttemptLimit.Get(ctx))),
		retry.Backoff(
			backoff.BinaryExponential(p.conf.visibilityBackoffBaseDelay.Get(ctx)),
			p.conf.visibilityBackoffMaxDelay.Get(ctx),
		),
	)
	if err == ErrAccountNotFound {
		return nil, errors.Wrapf(ErrNetwork, "created account %s is not yet visible", address.PublicKey().ToBase58())
	}
	return account, err
}

func (p *Provisioner) get(ctx context.Context, address, owner, mint *common.Account) (*TokenAccount, error) {
	client := token.NewClient(p.client, mint.PublicKey().ToBytes())

	var state *token.Account
	_, err := retry.Retry(
		func() (err error) {
			state, err = client.GetAccount(address.PublicKey().ToBytes(), p.commitment(ctx))
			return err
		},
		retry.NonRetriableErrors(token.ErrAccountNotFound, token.ErrInvalidTokenAccount),
		retry.Context(ctx),
		retry.Limit(uint(p.conf.networkAttemptLimit.Get(ctx))),
		retry.BackoffWithJitter(backoff.BinaryExponential(p.conf.visibilityBackoffBaseDelay.Get(ctx)), p.conf.visibilityBackoffMaxDelay.Get(ctx), 0.1),
	)
	switch {
	case err == nil:
	case errors.Is(err, token.ErrAccountNotFound):
		return nil, ErrAccountNotFound
	case errors.Is(err, token.ErrInvalidTokenAccount):
		return nil, errors.Wrapf(ErrInvalidTokenAccount, "%s", address.PublicKey().ToBase58())
	case ctx.Err() != nil:
		return nil, errors.Wrapf(transaction.ErrTimeout, "error getting token account %s: %v", address.PublicKey().ToBase58(), ctx.Err())
	default:
		return nil, errors.Wrapf(ErrNetwork, "error getting token account %s: %v", address.PublicKey().ToBase58(), err)
	}

	if !bytes.Equal(state.Owner, owner.PublicKey().ToBytes()) {
		return nil, errors.Wrapf(ErrInvalidTokenAccount, "%s is not owned by %s", address.PublicKey().ToBase58(), owner.PublicKey().ToBase58())
	}

	return &TokenAccount{
		Address: address,
		Owner:   owner,
		Mint:    mint,
		Balance: state.Amount,
	}, nil
}

func (p *Provisioner) commitment(ctx context.Context) solana.Commitment {
	commitment, err := solana.CommitmentFromString(p.conf.commitment.Get(ctx))
	if err != nil {
		return solana.CommitmentConfirmed
	}
	return commitment
}
