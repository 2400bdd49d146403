// Package backoff provides delay schedules for retry.
package backoff

import (
	"math"
	"time"
)

// Strategy returns the delay after the given attempt. Attempts start at 1.
type Strategy func(attempts uint) time.Duration

// Constant always waits interval.
func Constant(interval time.Duration) Strategy {
	return func(uint) time.Duration {
		return interval
	}
}

// BinaryExponential doubles the delay after every attempt, starting at base.
// Delays that would overflow saturate at the maximum duration.
//
// Ex. BinaryExponential(2*time.Second) = 2s, 4s, 8s, 16s, ...
func BinaryExponential(base time.Duration) Strategy {
	return func(attempts uint) time.Duration {
		if attempts == 0 {
			return base
		}

		shift := attempts - 1
		if shift >= 63 || base > math.MaxInt64>>shift {
			return math.MaxInt64
		}
		return base << shift
	}
}
