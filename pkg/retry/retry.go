// Package retry runs actions until they succeed or a strategy gives up.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/code-payments/code-timelock/pkg/retry/backoff"
)

// Action is a function to be performed in a retriable manner.
type Action func() error

// Strategy decides whether an action that failed on the given attempt should
// run again. Strategies may sleep before returning.
type Strategy func(attempts uint, err error) bool

// sleep is replaced in tests.
var sleep = time.Sleep

// Retry runs the action until it succeeds or one of the strategies declines
// another attempt, and returns the number of attempts made.
//
// Strategies run in order and stop at the first refusal, so strategies that
// sleep belong at the end.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	var attempts uint
	for {
		attempts++

		err := action()
		if err == nil || !allow(strategies, attempts, err) {
			return attempts, err
		}
	}
}

func allow(strategies []Strategy, attempts uint, err error) bool {
	for _, s := range strategies {
		if !s(attempts, err) {
			return false
		}
	}
	return true
}

// Limit stops after maxAttempts attempts, including the first.
func Limit(maxAttempts uint) Strategy {
	return func(attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// NonRetriableErrors stops on any error matching one of errs.
func NonRetriableErrors(errs ...error) Strategy {
	return func(_ uint, err error) bool {
		for _, target := range errs {
			if errors.Is(err, target) {
				return false
			}
		}
		return true
	}
}

// NotFatal stops when isFatal reports the error as one that cannot succeed on
// a later attempt.
func NotFatal(isFatal func(error) bool) Strategy {
	return func(_ uint, err error) bool {
		return !isFatal(err)
	}
}

// Cancellable stops once ctx is done. It should precede any backoff strategy.
func Cancellable(ctx context.Context) Strategy {
	return func(uint, error) bool {
		return ctx.Err() == nil
	}
}

// Backoff sleeps for the delay given by b, capped at maxDelay.
func Backoff(b backoff.Strategy, maxDelay time.Duration) Strategy {
	return BackoffWithJitter(b, maxDelay, 0)
}

// BackoffWithJitter is Backoff with the capped delay shifted by a uniformly
// random fraction in [-jitter, +jitter]. A capped delay of 100ms with a jitter
// of 0.1 sleeps between 90ms and 110ms.
func BackoffWithJitter(b backoff.Strategy, maxDelay time.Duration, jitter float64) Strategy {
	return func(attempts uint, _ error) bool {
		delay := min(b(attempts), maxDelay)
		if jitter > 0 {
			delay = time.Duration(float64(delay) * (1 + jitter*(2*rand.Float64()-1)))
		}

		sleep(delay)
		return true
	}
}
