package staking

import (
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-staking/pkg/code/common"
	"github.com/code-payments/code-staking/pkg/config"
	"github.com/code-payments/code-staking/pkg/config/env"
	"github.com/code-payments/code-staking/pkg/config/memory"
	"github.com/code-payments/code-staking/pkg/config/wrapper"
	"github.com/code-payments/code-staking/pkg/solana"
)

// Config identifies the staking deployment an Orchestrator operates against.
type Config struct {
	Program     *common.Account
	StakingMint *common.Account
	RewardMint  *common.Account

	// OperationTimeout bounds each mutation end to end, including waiting on
	// locks, provisioning token accounts and confirmation. Zero disables it.
	OperationTimeout time.Duration

	// Commitment at which program state and balances are read. Defaults to
	// the sequencer's confirmation commitment when unset.
	Commitment solana.Commitment

	// MinFeePayerBalance, when non-zero, fails mutations that would leave the
	// fee payer below it with common.ErrFeePayerRequiresFunding.
	MinFeePayerBalance uint64
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidConfig, "config is nil")
	}

	for name, account := range map[string]*common.Account{
		"program":      c.Program,
		"staking mint": c.StakingMint,
		"reward mint":  c.RewardMint,
	} {
		if account == nil {
			return errors.Wrapf(ErrInvalidConfig, "%s is required", name)
		}
		if err := account.Validate(); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "invalid %s: %v", name, err)
		}
	}

	if c.StakingMint.Equals(c.RewardMint) {
		return errors.Wrap(ErrInvalidConfig, "staking and reward mints must differ")
	}

	if c.OperationTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, "operation timeout cannot be negative")
	}

	if c.Commitment.Commitment != "" {
		if _, err := solana.CommitmentFromString(c.Commitment.Commitment); err != nil {
			return errors.Wrap(ErrInvalidConfig, err.Error())
		}
	}

	return nil
}

func (c *Config) stakingConfig() *common.StakingConfig {
	return &common.StakingConfig{
		Program:     c.Program,
		StakingMint: c.StakingMint,
		RewardMint:  c.RewardMint,
	}
}

const (
	envConfigPrefix = "STAKING_ORCHESTRATOR_"

	NetworkAttemptLimitConfigEnvName = envConfigPrefix + "NETWORK_ATTEMPT_LIMIT"
	defaultNetworkAttemptLimit       = 5

	NetworkBackoffBaseDelayConfigEnvName = envConfigPrefix + "NETWORK_BACKOFF_BASE_DELAY"
	defaultNetworkBackoffBaseDelay       = 250 * time.Millisecond

	NetworkBackoffMaxDelayConfigEnvName = envConfigPrefix + "NETWORK_BACKOFF_MAX_DELAY"
	defaultNetworkBackoffMaxDelay       = 5 * time.Second

	DistributedLockRootConfigEnvName = envConfigPrefix + "DISTRIBUTED_LOCK_ROOT"
	defaultDistributedLockRoot       = "sessions"
)

type conf struct {
	networkAttemptLimit     config.Uint64
	networkBackoffBaseDelay config.Duration
	networkBackoffMaxDelay  config.Duration
	distributedLockRoot     config.String
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			networkAttemptLimit:     env.NewUint64Config(NetworkAttemptLimitConfigEnvName, defaultNetworkAttemptLimit),
			networkBackoffBaseDelay: env.NewDurationConfig(NetworkBackoffBaseDelayConfigEnvName, defaultNetworkBackoffBaseDelay),
			networkBackoffMaxDelay:  env.NewDurationConfig(NetworkBackoffMaxDelayConfigEnvName, defaultNetworkBackoffMaxDelay),
			distributedLockRoot:     env.NewStringConfig(DistributedLockRootConfigEnvName, defaultDistributedLockRoot),
		}
	}
}

type testOverrides struct {
	networkAttemptLimit uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	if overrides == nil {
		overrides = &testOverrides{}
	}

	networkAttemptLimit := overrides.networkAttemptLimit
	if networkAttemptLimit == 0 {
		networkAttemptLimit = defaultNetworkAttemptLimit
	}

	return func() *conf {
		return &conf{
			networkAttemptLimit:     wrapper.NewUint64Config(memory.NewConfig(networkAttemptLimit), defaultNetworkAttemptLimit),
			networkBackoffBaseDelay: wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultNetworkBackoffBaseDelay),
			networkBackoffMaxDelay:  wrapper.NewDurationConfig(memory.NewConfig(5*time.Millisecond), defaultNetworkBackoffMaxDelay),
			distributedLockRoot:     wrapper.NewStringConfig(memory.NewConfig(defaultDistributedLockRoot), defaultDistributedLockRoot),
		}
	}
}
