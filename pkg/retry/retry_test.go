package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-timelock/pkg/retry/backoff"
)

var errTest = errors.New("test")

func TestRetry_Success(t *testing.T) {
	var calls int
	attempts, err := Retry(func() error {
		calls++
		if calls < 3 {
			return errTest
		}
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, attempts)
}

func TestRetry_StopsAtFirstRefusal(t *testing.T) {
	var evaluated []string
	record := func(name string, allow bool) Strategy {
		return func(uint, error) bool {
			evaluated = append(evaluated, name)
			return allow
		}
	}

	attempts, err := Retry(func() error { return errTest }, record("a", true), record("b", false), record("c", true))
	assert.Equal(t, errTest, err)
	assert.EqualValues(t, 1, attempts)
	assert.Equal(t, []string{"a", "b"}, evaluated)
}

func TestLimit(t *testing.T) {
	strategy := Limit(2)
	assert.True(t, strategy(1, errTest))
	assert.False(t, strategy(2, errTest))

	attempts, err := Retry(func() error { return errTest }, Limit(4))
	assert.Equal(t, errTest, err)
	assert.EqualValues(t, 4, attempts)
}

func TestNonRetriableErrors(t *testing.T) {
	other := errors.New("other")
	strategy := NonRetriableErrors(errTest, other)

	assert.False(t, strategy(1, errTest))
	assert.False(t, strategy(1, errors.Wrap(other, "wrapped")))
	assert.True(t, strategy(1, errors.New("unexpected")))
}

func TestNotFatal(t *testing.T) {
	strategy := NotFatal(func(err error) bool { return errors.Is(err, errTest) })

	assert.True(t, strategy(1, errors.New("transient")))
	assert.False(t, strategy(1, errors.Wrap(errTest, "wrapped")))
}

func TestCancellable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	strategy := Cancellable(ctx)
	assert.True(t, strategy(1, errTest))

	cancel()
	assert.False(t, strategy(2, errTest))

	attempts, err := Retry(func() error { return errTest }, Cancellable(ctx))
	assert.Error(t, err)
	assert.EqualValues(t, 1, attempts)
}

func TestBackoff(t *testing.T) {
	slept := recordSleeps(t)

	_, err := Retry(
		func() error { return errTest },
		Limit(5),
		Backoff(backoff.BinaryExponential(100*time.Millisecond), 300*time.Millisecond),
	)
	assert.Equal(t, errTest, err)

	// No sleep follows the final attempt.
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
		300 * time.Millisecond,
	}, *slept)
}

func TestBackoffWithJitter(t *testing.T) {
	slept := recordSleeps(t)

	delay := time.Millisecond
	strategy := BackoffWithJitter(backoff.Constant(time.Hour), delay, 0.1)

	var total time.Duration
	for i := 0; i < 10000; i++ {
		require.True(t, strategy(1, errTest))
	}
	for _, d := range *slept {
		assert.GreaterOrEqual(t, d, 9*delay/10)
		assert.LessOrEqual(t, d, 11*delay/10)
		total += d
	}

	mean := total / time.Duration(len(*slept))
	assert.InDelta(t, float64(delay), float64(mean), 0.01*float64(delay))
}

func TestBackoff_RealSleep(t *testing.T) {
	start := time.Now()
	attempts, err := Retry(
		func() error { return errTest },
		Limit(2),
		Backoff(backoff.Constant(200*time.Millisecond), time.Second),
	)
	assert.Equal(t, errTest, err)
	assert.EqualValues(t, 2, attempts)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func recordSleeps(t *testing.T) *[]time.Duration {
	var slept []time.Duration
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = time.Sleep })
	return &slept
}
