package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	metrics_util "github.com/code-payments/code-staking/pkg/metrics"
)

// App is a unit of work whose lifecycle is tied to the process. The app is
// initialized, run to completion (or until the process is interrupted), and
// then stopped.
type App interface {
	// Init initializes the application in a blocking fashion. When Init returns,
	// it is expected that the application is ready to Run.
	Init(config Config, metricsProvider *newrelic.Application) error

	// Run performs the application's work. The context is cancelled when the
	// process is interrupted, and carries the metrics provider, if any.
	Run(ctx context.Context) error

	// Stop stops the application, allowing for it to clean up any resources.
	// When Stop() returns, the process exits.
	//
	// Stop should be idempotent.
	Stop()
}

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")

	osSigCh = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(osSigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}

// Run loads configuration, sets up logging and metrics, and runs the app.
func Run(app App) error {
	flag.Parse()

	logger := logrus.StandardLogger().WithField("type", "app")

	config, err := loadConfig()
	if err != nil {
		return err
	}

	if len(config.AppName) == 0 {
		return errors.New("must specify an application name")
	}

	// todo: Better abstraction so we're not directly tied to NR
	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		nr, err := newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(config.AppName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			return errors.Wrap(err, "error connecting to new relic")
		}

		metricsProvider = nr
		defer nr.Shutdown(10 * time.Second)
	}

	configureLogger(config, metricsProvider)

	if err := app.Init(config.AppConfig, metricsProvider); err != nil {
		return errors.Wrap(err, "failed to initialize application")
	}
	defer app.Stop()

	ctx, cancel := context.WithCancel(metrics_util.NewContext(context.Background(), metricsProvider))
	defer cancel()

	doneCh := make(chan error, 1)
	go func() {
		doneCh <- app.Run(ctx)
	}()

	select {
	case err := <-doneCh:
		return err
	case <-osSigCh:
		logger.Info("interrupt received, shutting down")
		cancel()
	}

	select {
	case err := <-doneCh:
		return err
	case <-time.After(config.ShutdownGracePeriod):
		return errors.Errorf("failed to stop the application within %v", config.ShutdownGracePeriod)
	}
}

func loadConfig() (BaseConfig, error) {
	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has to search
	// for a default config file because one hasn't been explicitly set. That is,
	// if we explicitly set a config file, and it does not exist, viper will not
	// return a ConfigFileNotFoundError, so we do it ourselves.
	if _, err := os.Stat(*configPath); err == nil {
		viper.SetConfigFile(*configPath)
	} else if !os.IsNotExist(err) {
		return BaseConfig{}, errors.Wrap(err, "failed to check if config exists")
	}

	err := viper.ReadInConfig()
	_, isConfigNotFound := err.(viper.ConfigFileNotFoundError)
	if err != nil && !isConfigNotFound {
		return BaseConfig{}, errors.Wrap(err, "failed to load config")
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return config, nil
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application) {
	var formatter logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if strings.ToLower(config.LogFormat) == "json" {
		formatter = &logrus.JSONFormatter{}
	}

	if metricsProvider != nil {
		logrus.SetFormatter(metrics_util.NewCustomNewRelicLogFormatter(metricsProvider, formatter))
	} else {
		logrus.SetFormatter(formatter)
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stdout)
}
