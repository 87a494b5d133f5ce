package transaction

import (
	"time"

	"github.com/code-payments/code-staking/pkg/config"
	"github.com/code-payments/code-staking/pkg/config/env"
	"github.com/code-payments/code-staking/pkg/config/memory"
	"github.com/code-payments/code-staking/pkg/config/wrapper"
)

const (
	envConfigPrefix = "TRANSACTION_SEQUENCER_"

	MaxFreshTokenAttemptsConfigEnvName = envConfigPrefix + "MAX_FRESH_TOKEN_ATTEMPTS"
	defaultMaxFreshTokenAttempts       = 3

	ConfirmationTimeoutConfigEnvName = envConfigPrefix + "CONFIRMATION_TIMEOUT"
	defaultConfirmationTimeout       = 30 * time.Second

	PollIntervalConfigEnvName = envConfigPrefix + "POLL_INTERVAL"
	defaultPollInterval       = 500 * time.Millisecond

	RebroadcastIntervalConfigEnvName = envConfigPrefix + "REBROADCAST_INTERVAL"
	defaultRebroadcastInterval       = 2 * time.Second

	NetworkAttemptLimitConfigEnvName = envConfigPrefix + "NETWORK_ATTEMPT_LIMIT"
	defaultNetworkAttemptLimit       = 5

	NetworkBackoffBaseDelayConfigEnvName = envConfigPrefix + "NETWORK_BACKOFF_BASE_DELAY"
	defaultNetworkBackoffBaseDelay       = 250 * time.Millisecond

	NetworkBackoffMaxDelayConfigEnvName = envConfigPrefix + "NETWORK_BACKOFF_MAX_DELAY"
	defaultNetworkBackoffMaxDelay       = 5 * time.Second

	CommitmentConfigEnvName = envConfigPrefix + "COMMITMENT"
	defaultCommitment       = "confirmed"

	ComputeUnitLimitConfigEnvName = envConfigPrefix + "COMPUTE_UNIT_LIMIT"
	defaultComputeUnitLimit       = 0

	ComputeUnitPriceConfigEnvName = envConfigPrefix + "COMPUTE_UNIT_PRICE"
	defaultComputeUnitPrice       = 0
)

type conf struct {
	maxFreshTokenAttempts   config.Uint64
	confirmationTimeout     config.Duration
	pollInterval            config.Duration
	rebroadcastInterval     config.Duration
	networkAttemptLimit     config.Uint64
	networkBackoffBaseDelay config.Duration
	networkBackoffMaxDelay  config.Duration
	commitment              config.String
	computeUnitLimit        config.Uint64
	computeUnitPrice        config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			maxFreshTokenAttempts:   env.NewUint64Config(MaxFreshTokenAttemptsConfigEnvName, defaultMaxFreshTokenAttempts),
			confirmationTimeout:     env.NewDurationConfig(ConfirmationTimeoutConfigEnvName, defaultConfirmationTimeout),
			pollInterval:            env.NewDurationConfig(PollIntervalConfigEnvName, defaultPollInterval),
			rebroadcastInterval:     env.NewDurationConfig(RebroadcastIntervalConfigEnvName, defaultRebroadcastInterval),
			networkAttemptLimit:     env.NewUint64Config(NetworkAttemptLimitConfigEnvName, defaultNetworkAttemptLimit),
			networkBackoffBaseDelay: env.NewDurationConfig(NetworkBackoffBaseDelayConfigEnvName, defaultNetworkBackoffBaseDelay),
			networkBackoffMaxDelay:  env.NewDurationConfig(NetworkBackoffMaxDelayConfigEnvName, defaultNetworkBackoffMaxDelay),
			commitment:              env.NewStringConfig(CommitmentConfigEnvName, defaultCommitment),
			computeUnitLimit:        env.NewUint64Config(ComputeUnitLimitConfigEnvName, defaultComputeUnitLimit),
			computeUnitPrice:        env.NewUint64Config(ComputeUnitPriceConfigEnvName, defaultComputeUnitPrice),
		}
	}
}

// TestOverrides tunes the sequencer for tests run against an in-memory
// network, where slots advance per poll rather than per wall clock second.
type TestOverrides struct {
	MaxFreshTokenAttempts uint64
	ConfirmationTimeout   time.Duration
	PollInterval          time.Duration
	RebroadcastInterval   time.Duration
	NetworkAttemptLimit   uint64
	ComputeUnitLimit      uint64
	ComputeUnitPrice      uint64
}

// WithTestOverrides returns a provider for tests in this and dependent
// packages. Zero values fall back to fast test defaults.
func WithTestOverrides(overrides *TestOverrides) ConfigProvider {
	return withManualTestOverrides(overrides)
}

func withManualTestOverrides(overrides *TestOverrides) ConfigProvider {
	if overrides == nil {
		overrides = &TestOverrides{}
	}

	maxFreshTokenAttempts := overrides.MaxFreshTokenAttempts
	if maxFreshTokenAttempts == 0 {
		maxFreshTokenAttempts = defaultMaxFreshTokenAttempts
	}

	confirmationTimeout := overrides.ConfirmationTimeout
	if confirmationTimeout == 0 {
		confirmationTimeout = 5 * time.Second
	}

	pollInterval := overrides.PollInterval
	if pollInterval == 0 {
		pollInterval = time.Millisecond
	}

	rebroadcastInterval := overrides.RebroadcastInterval
	if rebroadcastInterval == 0 {
		rebroadcastInterval = 5 * time.Millisecond
	}

	networkAttemptLimit := overrides.NetworkAttemptLimit
	if networkAttemptLimit == 0 {
		networkAttemptLimit = defaultNetworkAttemptLimit
	}

	return func() *conf {
		return &conf{
			maxFreshTokenAttempts:   wrapper.NewUint64Config(memory.NewConfig(maxFreshTokenAttempts), defaultMaxFreshTokenAttempts),
			confirmationTimeout:     wrapper.NewDurationConfig(memory.NewConfig(confirmationTimeout), defaultConfirmationTimeout),
			pollInterval:            wrapper.NewDurationConfig(memory.NewConfig(pollInterval), defaultPollInterval),
			rebroadcastInterval:     wrapper.NewDurationConfig(memory.NewConfig(rebroadcastInterval), defaultRebroadcastInterval),
			networkAttemptLimit:     wrapper.NewUint64Config(memory.NewConfig(networkAttemptLimit), defaultNetworkAttemptLimit),
			networkBackoffBaseDelay: wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultNetworkBackoffBaseDelay),
			networkBackoffMaxDelay:  wrapper.NewDurationConfig(memory.NewConfig(5*time.Millisecond), defaultNetworkBackoffMaxDelay),
			commitment:              wrapper.NewStringConfig(memory.NewConfig(defaultCommitment), defaultCommitment),
			computeUnitLimit:        wrapper.NewUint64Config(memory.NewConfig(overrides.ComputeUnitLimit), defaultComputeUnitLimit),
			computeUnitPrice:        wrapper.NewUint64Config(memory.NewConfig(overrides.ComputeUnitPrice), defaultComputeUnitPrice),
		}
	}
}
