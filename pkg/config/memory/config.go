// Package memory provides a mutable in-memory config.Config, used to pin
// values in code and to drive config changes from tests.
package memory

import (
	"context"
	"sync"

	"github.com/code-payments/code-timelock/pkg/config"
)

type Config struct {
	mu       sync.RWMutex
	value    any
	err      error
	shutdown bool
}

// NewConfig returns a Config holding value. A nil value means no value is set.
func NewConfig(value any) *Config {
	return &Config{value: value}
}

// Get implements config.Config.Get
func (c *Config) Get(_ context.Context) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.shutdown:
		return nil, config.ErrShutdown
	case c.err != nil:
		return nil, c.err
	case c.value == nil:
		return nil, config.ErrNoValue
	default:
		return c.value, nil
	}
}

// Shutdown implements config.Config.Shutdown
func (c *Config) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdown = true
}

// SetValue replaces the value. Setting nil clears it.
func (c *Config) SetValue(value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = value
}

// SetError makes Get fail with err until it is reset with a nil error.
func (c *Config) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.err = err
}
