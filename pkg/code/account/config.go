package account

import (
	"time"

	"github.com/code-payments/code-staking/pkg/config"
	"github.com/code-payments/code-staking/pkg/config/env"
	"github.com/code-payments/code-staking/pkg/config/memory"
	"github.com/code-payments/code-staking/pkg/config/wrapper"
)

const (
	envConfigPrefix = "ACCOUNT_PROVISIONER_"

	AllowOwnerOffCurveConfigEnvName = envConfigPrefix + "ALLOW_OWNER_OFF_CURVE"
	defaultAllowOwnerOffCurve       = false

	VisibilityAttemptLimitConfigEnvName = envConfigPrefix + "VISIBILITY_ATTEMPT_LIMIT"
	defaultVisibilityAttemptLimit       = 10

	VisibilityBackoffBaseDelayConfigEnvName = envConfigPrefix + "VISIBILITY_BACKOFF_BASE_DELAY"
	defaultVisibilityBackoffBaseDelay       = 100 * time.Millisecond

	VisibilityBackoffMaxDelayConfigEnvName = envConfigPrefix + "VISIBILITY_BACKOFF_MAX_DELAY"
	defaultVisibilityBackoffMaxDelay       = 2 * time.Second

	NetworkAttemptLimitConfigEnvName = envConfigPrefix + "NETWORK_ATTEMPT_LIMIT"
	defaultNetworkAttemptLimit       = 5

	CommitmentConfigEnvName = envConfigPrefix + "COMMITMENT"
	defaultCommitment       = "confirmed"
)

type conf struct {
	allowOwnerOffCurve         config.Bool
	visibilityAttemptLimit     config.Uint64
	visibilityBackoffBaseDelay config.Duration
	visibilityBackoffMaxDelay  config.Duration
	networkAttemptLimit        config.Uint64
	commitment                 config.String
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			allowOwnerOffCurve:         env.NewBoolConfig(AllowOwnerOffCurveConfigEnvName, defaultAllowOwnerOffCurve),
			visibilityAttemptLimit:     env.NewUint64Config(VisibilityAttemptLimitConfigEnvName, defaultVisibilityAttemptLimit),
			visibilityBackoffBaseDelay: env.NewDurationConfig(VisibilityBackoffBaseDelayConfigEnvName, defaultVisibilityBackoffBaseDelay),
			visibilityBackoffMaxDelay:  env.NewDurationConfig(VisibilityBackoffMaxDelayConfigEnvName, defaultVisibilityBackoffMaxDelay),
			networkAttemptLimit:        env.NewUint64Config(NetworkAttemptLimitConfigEnvName, defaultNetworkAttemptLimit),
			commitment:                 env.NewStringConfig(CommitmentConfigEnvName, defaultCommitment),
		}
	}
}

type TestOverrides struct {
	AllowOwnerOffCurve     bool
	VisibilityAttemptLimit uint64
}

// WithTestOverrides returns a provider with millisecond backoffs for tests in
// this and dependent packages.
func WithTestOverrides(overrides *TestOverrides) ConfigProvider {
	return withManualTestOverrides(overrides)
}

func withManualTestOverrides(overrides *TestOverrides) ConfigProvider {
	if overrides == nil {
		overrides = &TestOverrides{}
	}

	visibilityAttemptLimit := overrides.VisibilityAttemptLimit
	if visibilityAttemptLimit == 0 {
		visibilityAttemptLimit = defaultVisibilityAttemptLimit
	}

	return func() *conf {
		return &conf{
			allowOwnerOffCurve:         wrapper.NewBoolConfig(memory.NewConfig(overrides.AllowOwnerOffCurve), defaultAllowOwnerOffCurve),
			visibilityAttemptLimit:     wrapper.NewUint64Config(memory.NewConfig(visibilityAttemptLimit), defaultVisibilityAttemptLimit),
			visibilityBackoffBaseDelay: wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultVisibilityBackoffBaseDelay),
			visibilityBackoffMaxDelay:  wrapper.NewDurationConfig(memory.NewConfig(5*time.Millisecond), defaultVisibilityBackoffMaxDelay),
			networkAttemptLimit:        wrapper.NewUint64Config(memory.NewConfig(uint64(defaultNetworkAttemptLimit)), defaultNetworkAttemptLimit),
			commitment:                 wrapper.NewStringConfig(memory.NewConfig(defaultCommitment), defaultCommitment),
		}
	}
}
