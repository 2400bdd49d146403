// Package env provides configs read from environment variables.
package env

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/code-payments/code-timelock/pkg/config"
	"github.com/code-payments/code-timelock/pkg/config/wrapper"
)

type variable []byte

// NewConfig returns a config holding the upper-cased environment variable
// key, read once at construction. An empty variable holds no value.
func NewConfig(key string) config.Config {
	return variable(os.Getenv(strings.ToUpper(key)))
}

// Get implements config.Config.Get
func (v variable) Get(_ context.Context) (any, error) {
	if len(v) == 0 {
		return nil, config.ErrNoValue
	}
	return []byte(v), nil
}

// Shutdown implements config.Config.Shutdown
func (variable) Shutdown() {}

func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(key), defaultValue)
}

func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return wrapper.NewDurationConfig(NewConfig(key), defaultValue)
}
