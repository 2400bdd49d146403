package main

import (
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-timelock/pkg/app"
)

func main() {
	if err := app.Run(&timelockApp{}); err != nil {
		logrus.WithError(err).Fatal("error running timelockd")
	}
}
