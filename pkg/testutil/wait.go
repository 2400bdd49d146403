package testutil

import (
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/retry"
	"github.com/code-payments/code-timelock/pkg/retry/backoff"
)

var errConditionNotMet = errors.New("condition not met")

// WaitFor polls condition every interval until it holds or timeout elapses.
func WaitFor(timeout, interval time.Duration, condition func() bool) error {
	if interval <= 0 || timeout < interval {
		return errors.Errorf("invalid wait: timeout %v, interval %v", timeout, interval)
	}

	_, err := retry.Retry(
		func() error {
			if condition() {
				return nil
			}
			return errConditionNotMet
		},
		retry.Limit(uint(timeout/interval)+1),
		retry.Backoff(backoff.Constant(interval), interval),
	)
	if err != nil {
		return errors.Wrapf(err, "waited %v", timeout)
	}
	return nil
}
