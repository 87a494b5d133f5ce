package env

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/code-payments/code-staking/pkg/config"
)

func TestConfigDoesntExist(t *testing.T) {
	const env = "ENV_CONFIG_TEST_VAR"
	os.Setenv(env, "default")

	v, err := NewConfig(env).Get(context.Background())
	assert.Equal(t, []byte("default"), v)
	assert.Nil(t, err)

	os.Unsetenv(env)

	v, err = NewConfig(env).Get(context.Background())
	assert.Nil(t, v)
	assert.Equal(t, config.ErrNoValue, err)
}

func TestTypedConfigs(t *testing.T) {
	t.Setenv("STAKING_TEST_ATTEMPTS", "7")
	t.Setenv("STAKING_TEST_DELAY", "3s")
	t.Setenv("STAKING_TEST_ENABLED", "true")

	ctx := context.Background()
	assert.EqualValues(t, 7, NewUint64Config("staking_test_attempts", 1).Get(ctx))
	assert.Equal(t, 3*time.Second, NewDurationConfig("STAKING_TEST_DELAY", time.Second).Get(ctx))
	assert.True(t, NewBoolConfig("STAKING_TEST_ENABLED", false).Get(ctx))
	assert.Equal(t, "fallback", NewStringConfig("STAKING_TEST_UNSET", "fallback").Get(ctx))
}
