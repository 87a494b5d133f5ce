package main

import (
	"context"
	"os"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/text/language"
	xrate "golang.org/x/time/rate"

	"github.com/code-payments/code-staking/pkg/app"
	"github.com/code-payments/code-staking/pkg/code/account"
	"github.com/code-payments/code-staking/pkg/code/common"
	"github.com/code-payments/code-staking/pkg/code/staking"
	"github.com/code-payments/code-staking/pkg/code/transaction"
	"github.com/code-payments/code-staking/pkg/lock/etcd"
	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/rate"
	"github.com/code-payments/code-staking/pkg/solana"
	"github.com/code-payments/code-staking/pkg/solana/memory"
)

const (
	simulatedRewardYield = 1_000
	simulatedLamports    = 10_000_000_000
)

// stakingClient runs a single pass through the staking lifecycle for one
// owner.
type stakingClient struct {
	log    *logrus.Entry
	config *config
	locale language.Tag

	owner        *common.Account
	feePayer     *common.Account
	orchestrator *staking.Orchestrator

	etcdClient      *v3.Client
	etcdLockManager *etcd.LockManager
}

func (c *stakingClient) Init(raw app.Config, _ *newrelic.Application) error {
	c.log = logrus.StandardLogger().WithField("type", "cmd/staking-client")

	config, err := decodeConfig(raw)
	if err != nil {
		return err
	}
	c.config = config

	c.locale, err = config.logLocale()
	if err != nil {
		return err
	}

	c.owner, err = config.loadOwner()
	if err != nil {
		return errors.Wrap(err, "error loading owner")
	}

	c.feePayer, err = config.loadFeePayer(c.owner)
	if err != nil {
		return errors.Wrap(err, "error loading fee payer")
	}

	stakingConfig, err := c.stakingConfig()
	if err != nil {
		return err
	}

	var client solana.Client
	var opts []staking.Option
	if config.Simulate {
		client = c.simulatedNetwork(stakingConfig)
	} else {
		client = solana.New(
			config.SolanaRPCEndpoint,
			solana.WithRateLimiter(rate.NewLocalRateLimiter(xrate.Limit(config.RPCRateLimit))),
		)

		environment, err := config.explorerEnvironment()
		if err != nil {
			return errors.Wrap(err, "error resolving explorer cluster")
		}
		opts = append(opts, staking.WithEnvironment(environment))
	}

	if endpoints := config.etcdEndpoints(); len(endpoints) > 0 {
		c.etcdClient, err = v3.New(v3.Config{
			Endpoints:   endpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return errors.Wrap(err, "error connecting to etcd")
		}

		hostname, _ := os.Hostname()
		c.etcdLockManager, err = etcd.NewLockManager(c.etcdClient, "/code-staking/locks/", config.EtcdLockTTL, hostname)
		if err != nil {
			return errors.Wrap(err, "error creating etcd lock manager")
		}
		opts = append(opts, staking.WithDistributedLocks(c.etcdLockManager))
	}

	sequencer := transaction.NewSequencer(client, transaction.WithEnvConfigs())
	provisioner := account.NewProvisioner(client, sequencer, account.WithEnvConfigs())

	c.orchestrator, err = staking.NewOrchestrator(client, sequencer, provisioner, stakingConfig, staking.WithEnvConfigs(), opts...)
	return err
}

func (c *stakingClient) Run(ctx context.Context) error {
	ctx, end := metrics.StartTransaction(ctx, "StakingClient/Run")
	defer end()

	log := c.log.WithField("owner", c.owner.PublicKey().ToBase58())

	session, err := c.orchestrator.OpenSession(ctx, c.owner, staking.WithFeePayer(c.feePayer))
	if err != nil {
		return c.classify(log, "open session", err)
	}
	log.WithField("state", session.State().String()).Info("session opened")

	if err := c.logBalances(ctx, log, session); err != nil {
		return err
	}

	if err := session.Initialize(ctx); err != nil {
		return c.classify(log, "initialize", err)
	}

	if err := session.Stake(ctx, c.config.StakeAmount); err != nil {
		return c.classify(log, "stake", err)
	}
	log.WithFields(c.amountFields(c.config.StakeAmount)).Info("staked")

	log.WithField("delay", c.config.RewardAccrualDelay).Info("waiting for rewards to accrue")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.config.RewardAccrualDelay):
	}

	rewards, err := session.ClaimRewards(ctx)
	if err != nil {
		return c.classify(log, "claim rewards", err)
	}
	log.WithField("reward_balance", c.formatQuarks(rewards)).Info("claimed rewards")

	if err := session.Unstake(ctx, c.config.UnstakeAmount); err != nil {
		return c.classify(log, "unstake", err)
	}
	log.WithFields(c.amountFields(c.config.UnstakeAmount)).Info("unstaked")

	return c.logBalances(ctx, log, session)
}

func (c *stakingClient) Stop() {
	if c.etcdLockManager != nil {
		c.etcdLockManager.Close()
	}
	if c.etcdClient != nil {
		if err := c.etcdClient.Close(); err != nil {
			c.log.WithError(err).Warn("failed to close etcd client")
		}
	}
}

func (c *stakingClient) stakingConfig() (*staking.Config, error) {
	config := &staking.Config{
		OperationTimeout:   c.config.OperationTimeout,
		MinFeePayerBalance: c.config.MinFeePayerBalance,
	}

	commitment, err := solana.CommitmentFromString(c.config.Commitment)
	if err != nil {
		return nil, err
	}
	config.Commitment = commitment

	for _, field := range []struct {
		value  string
		target **common.Account
	}{
		{c.config.StakingProgramID, &config.Program},
		{c.config.StakingMint, &config.StakingMint},
		{c.config.RewardMint, &config.RewardMint},
	} {
		if field.value == "" {
			if !c.config.Simulate {
				return nil, errors.New("STAKING_PROGRAM_ID, STAKING_MINT and REWARD_MINT are required")
			}

			// Simulated deployments are made up on the spot
			random, err := common.NewRandomAccount()
			if err != nil {
				return nil, err
			}
			*field.target = random
			continue
		}

		parsed, err := common.NewAccountFromPublicKeyString(field.value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid address %s", field.value)
		}
		*field.target = parsed
	}

	return config, config.Validate()
}

// simulatedNetwork deploys the staking program to an in-memory network and
// funds the owner so the full lifecycle can run offline.
func (c *stakingClient) simulatedNetwork(config *staking.Config) solana.Client {
	client := memory.NewClient(
		memory.WithStakingProgram(
			config.Program.PublicKey().ToBytes(),
			config.StakingMint.PublicKey().ToBytes(),
			config.RewardMint.PublicKey().ToBytes(),
			simulatedRewardYield,
		),
	)

	client.CreateMint(config.StakingMint.PublicKey().ToBytes())
	client.CreateMint(config.RewardMint.PublicKey().ToBytes())
	client.FundLamports(c.owner.PublicKey().ToBytes(), simulatedLamports)
	client.FundLamports(c.feePayer.PublicKey().ToBytes(), simulatedLamports)

	if _, err := client.CreateTokenAccount(
		c.owner.PublicKey().ToBytes(),
		config.StakingMint.PublicKey().ToBytes(),
		c.config.SimulatedStakingQuarks,
	); err != nil {
		c.log.WithError(err).Warn("failed to fund simulated staking token account")
	}

	c.log.WithFields(logrus.Fields{
		"program":      config.Program.PublicKey().ToBase58(),
		"staking_mint": config.StakingMint.PublicKey().ToBase58(),
		"reward_mint":  config.RewardMint.PublicKey().ToBase58(),
	}).Info("running against a simulated network")

	return client
}

func (c *stakingClient) logBalances(ctx context.Context, log *logrus.Entry, session *staking.Session) error {
	balances, err := session.QueryBalances(ctx)
	if err != nil {
		return c.classify(log, "query balances", err)
	}

	log.WithFields(logrus.Fields{
		"staking_balance": c.formatQuarks(balances.Staking),
		"reward_balance":  c.formatQuarks(balances.Reward),
	}).Info("balances")
	return nil
}

func (c *stakingClient) formatQuarks(quarks uint64) string {
	return common.FormatQuarks(c.locale, quarks, c.config.MintDecimals)
}

func (c *stakingClient) amountFields(quarks uint64) logrus.Fields {
	return logrus.Fields{
		"quarks": quarks,
		"tokens": c.formatQuarks(quarks),
	}
}

func (c *stakingClient) classify(log *logrus.Entry, operation string, err error) error {
	log = log.WithFields(logrus.Fields{
		"operation": operation,
		"retryable": transaction.IsRetryable(err),
	})

	if rejected, ok := transaction.IsRejected(err); ok {
		log = log.WithField("signature", rejected.Signature.String())
		if programErr, ok := staking.GetProgramError(err); ok {
			log = log.WithField("program_error", programErr.String())
		}
	}

	log.WithError(err).Error("staking operation failed")
	return errors.Wrap(err, operation)
}
