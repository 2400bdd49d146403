// Package config provides dynamic configuration values. A Config yields raw
// values from some source, and Typed wraps one with conversion and a default.
package config

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNoValue  = errors.New("config: no value set")
	ErrShutdown = errors.New("config: shutdown")
)

// Config is a source of raw configuration values.
type Config interface {
	// Get returns the current value, or ErrNoValue if none is set.
	Get(ctx context.Context) (any, error)

	// Shutdown releases the resources of the source. Subsequent calls to Get
	// may return ErrShutdown.
	Shutdown()
}

// Typed converts the values of a Config to T.
type Typed[T any] interface {
	// Get returns the current value, ignoring errors.
	Get(ctx context.Context) T

	// GetSafe returns the current value, or the default when the source has
	// none. On error, the last successfully read value is returned alongside
	// it.
	GetSafe(ctx context.Context) (T, error)

	Shutdown()
}

type (
	Bool     = Typed[bool]
	Duration = Typed[time.Duration]
	Int64    = Typed[int64]
	Uint64   = Typed[uint64]
	String   = Typed[string]
)
