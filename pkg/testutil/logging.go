package testutil

import (
	"io"
	"os"
	"slices"

	"github.com/sirupsen/logrus"
)

// Importing testutil silences the standard logger unless tests run verbosely,
// in which case everything down to trace is shown.
func init() {
	logrus.SetLevel(logrus.TraceLevel)

	if !slices.Contains(os.Args, "-test.v=true") {
		logrus.SetOutput(io.Discard)
	}
}
