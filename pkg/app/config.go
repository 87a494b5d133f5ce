package app

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the application specific configuration.
// It is passed to the App.Init function, and is optional.
type Config map[string]interface{}

// BaseConfig contains the base configuration for the process, as well as the
// application itself.
type BaseConfig struct {
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is either json or text
	LogFormat string `mapstructure:"log_format"`

	AppName string `mapstructure:"app_name"`

	// ShutdownGracePeriod bounds how long the application has to wind down
	// once interrupted.
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`

	// Metrics configuration across many providers
	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	// Arbitrary configuration that the application can define / implement.
	//
	// Users should use mapstructure.Decode for AppConfig.
	AppConfig Config `mapstructure:"app"`
}

var defaultConfig = BaseConfig{
	LogLevel:  "info",
	LogFormat: "text",

	ShutdownGracePeriod: 30 * time.Second,
}

func init() {
	_ = viper.BindEnv("log_level", "LOG_LEVEL")
	_ = viper.BindEnv("log_format", "LOG_FORMAT")

	_ = viper.BindEnv("app_name", "APP_NAME")

	_ = viper.BindEnv("shutdown_grace_period", "SHUTDOWN_GRACE_PERIOD")

	_ = viper.BindEnv("new_relic_license_key", "NEW_RELIC_LICENSE_KEY")
}
