package wrapper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-timelock/pkg/config"
	"github.com/code-payments/code-timelock/pkg/config/memory"
)

// testTyped walks a wrapper through default, override, error, clear and
// shutdown transitions, using each of the provided sources as the override.
func testTyped[T any](t *testing.T, ctor func(config.Config, T) config.Typed[T], defaultValue, overridden T, sources ...any) {
	ctx := context.Background()

	for _, source := range sources {
		mock := memory.NewConfig(nil)
		typed := ctor(mock, defaultValue)

		assert.Equal(t, defaultValue, typed.Get(ctx))

		mock.SetValue(source)
		val, err := typed.GetSafe(ctx)
		require.NoError(t, err, "%T", source)
		assert.Equal(t, overridden, val)

		// The last good value survives a failing source.
		mock.SetError(errors.New("unavailable"))
		val, err = typed.GetSafe(ctx)
		assert.Error(t, err)
		assert.Equal(t, overridden, val)

		mock.SetError(nil)
		mock.SetValue(nil)
		assert.Equal(t, defaultValue, typed.Get(ctx))

		mock.SetValue(struct{}{})
		val, err = typed.GetSafe(ctx)
		assert.Equal(t, ErrUnsupportedConversion, err)
		assert.Equal(t, defaultValue, val)

		typed.Shutdown()
		_, err = mock.Get(ctx)
		assert.Equal(t, config.ErrShutdown, err)
	}
}

func TestBoolConfig(t *testing.T) {
	testTyped(t, NewBoolConfig, true, false, false, []byte("false"), "false")
}

func TestInt64Config(t *testing.T) {
	testTyped(t, NewInt64Config, 10, -42, int64(-42), -42, []byte("-42"))
}

func TestUint64Config(t *testing.T) {
	testTyped(t, NewUint64Config, 10, 8192, uint64(8192), 8192, uint(8192), "8192")
}

func TestStringConfig(t *testing.T) {
	testTyped(t, NewStringConfig, "default", "override", "override", []byte("override"))
}

func TestDurationConfig(t *testing.T) {
	testTyped(t, NewDurationConfig, time.Second, 30*time.Second, 30*time.Second, []byte("30s"))
}

func TestConversionErrors(t *testing.T) {
	ctx := context.Background()

	for name, typed := range map[string]interface {
		GetSafe(context.Context) (uint64, error)
	}{
		"negative":  NewUint64Config(memory.NewConfig(-1), 3),
		"malformed": NewUint64Config(memory.NewConfig("three"), 3),
	} {
		val, err := typed.GetSafe(ctx)
		assert.Error(t, err, name)
		assert.EqualValues(t, 3, val, name)
	}

	val, err := NewInt64Config(memory.NewConfig(uint64(1<<63)), 5).GetSafe(ctx)
	assert.Error(t, err)
	assert.EqualValues(t, 5, val)
}
