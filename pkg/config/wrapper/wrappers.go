// Package wrapper adapts a raw config.Config into typed configs with defaults.
package wrapper

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/config"
)

// ErrUnsupportedConversion is returned for source values of a type the
// wrapper cannot convert.
var ErrUnsupportedConversion = errors.New("config: unsupported source value type")

type typed[T any] struct {
	source       config.Config
	defaultValue T
	convert      func(any) (T, error)

	mu   sync.RWMutex
	last T
}

func newTyped[T any](source config.Config, defaultValue T, convert func(any) (T, error)) *typed[T] {
	return &typed[T]{
		source:       source,
		defaultValue: defaultValue,
		convert:      convert,
		last:         defaultValue,
	}
}

// GetSafe implements config.Typed.GetSafe
func (c *typed[T]) GetSafe(ctx context.Context) (T, error) {
	raw, err := c.source.Get(ctx)
	if err == config.ErrNoValue {
		return c.remember(c.defaultValue), nil
	} else if err != nil {
		return c.lastValue(), err
	}

	val, err := c.convert(raw)
	if err != nil {
		return c.lastValue(), err
	}
	return c.remember(val), nil
}

// Get implements config.Typed.Get
func (c *typed[T]) Get(ctx context.Context) T {
	val, _ := c.GetSafe(ctx)
	return val
}

// Shutdown implements config.Typed.Shutdown
func (c *typed[T]) Shutdown() {
	c.source.Shutdown()
}

func (c *typed[T]) remember(val T) T {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.last = val
	return val
}

func (c *typed[T]) lastValue() T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.last
}

// converter parses textual values, which is how env and file based sources
// deliver them, and passes anything else to native.
func converter[T any](parse func(string) (T, error), native func(any) (T, error)) func(any) (T, error) {
	return func(v any) (T, error) {
		switch v := v.(type) {
		case []byte:
			return parse(string(v))
		case string:
			return parse(v)
		default:
			return native(v)
		}
	}
}

func unsupported[T any](any) (T, error) {
	var zero T
	return zero, ErrUnsupportedConversion
}

func NewBoolConfig(source config.Config, defaultValue bool) config.Bool {
	return newTyped(source, defaultValue, converter(strconv.ParseBool, func(v any) (bool, error) {
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return unsupported[bool](v)
	}))
}

func NewInt64Config(source config.Config, defaultValue int64) config.Int64 {
	parse := func(s string) (int64, error) {
		return strconv.ParseInt(s, 10, 64)
	}

	return newTyped(source, defaultValue, converter(parse, func(v any) (int64, error) {
		switch v := v.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case uint64:
			if v > math.MaxInt64 {
				return 0, errors.Errorf("value %d overflows int64", v)
			}
			return int64(v), nil
		default:
			return unsupported[int64](v)
		}
	}))
}

func NewUint64Config(source config.Config, defaultValue uint64) config.Uint64 {
	parse := func(s string) (uint64, error) {
		return strconv.ParseUint(s, 10, 64)
	}

	return newTyped(source, defaultValue, converter(parse, func(v any) (uint64, error) {
		switch v := v.(type) {
		case uint64:
			return v, nil
		case uint:
			return uint64(v), nil
		case int:
			if v < 0 {
				return 0, errors.Errorf("negative value %d for uint64", v)
			}
			return uint64(v), nil
		default:
			return unsupported[uint64](v)
		}
	}))
}

func NewStringConfig(source config.Config, defaultValue string) config.String {
	identity := func(s string) (string, error) {
		return s, nil
	}
	return newTyped(source, defaultValue, converter(identity, unsupported[string]))
}

// NewDurationConfig parses textual values with time.ParseDuration.
func NewDurationConfig(source config.Config, defaultValue time.Duration) config.Duration {
	return newTyped(source, defaultValue, converter(time.ParseDuration, func(v any) (time.Duration, error) {
		if d, ok := v.(time.Duration); ok {
			return d, nil
		}
		return unsupported[time.Duration](v)
	}))
}
