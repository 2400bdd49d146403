// Package lock defines named mutual exclusion that may span processes.
package lock

import (
	"context"
)

// Manager hands out lock handles by name. Two handles for the same name never
// hold the lock at once, whether or not they came from the same Manager.
type Manager interface {
	Create(ctx context.Context, name string) (DistributedLock, error)
}

// DistributedLock is a single handle to a named lock. A handle is acquired
// and released by one goroutine at a time.
type DistributedLock interface {
	// Acquire blocks until the lock is held or ctx is done.
	//
	// The returned channel is closed once the lock is no longer held: after
	// Unlock, when ctx is done, or when the implementation can no longer
	// guarantee exclusivity. Holders must stop relying on the lock at that
	// point.
	Acquire(ctx context.Context) (<-chan struct{}, error)

	// Unlock releases the lock if it is held. It is idempotent.
	Unlock(ctx context.Context) error

	IsLocked() bool
}
