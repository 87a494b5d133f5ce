package main

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/app"
)

func main() {
	if err := app.Run(&stakingClient{}); err != nil {
		logrus.StandardLogger().WithError(err).Error("staking client failed")
		os.Exit(1)
	}
}
