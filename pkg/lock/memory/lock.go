// Package memory provides an in-process lock.Manager. Locks are exclusive
// across every handle created by the same Manager, including handles for the
// same name.
package memory

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-timelock/pkg/lock"
)

type semaphore struct {
	ch   chan struct{}
	refs int
}

type LockManager struct {
	log *logrus.Entry

	mu         sync.Mutex
	semaphores map[string]*semaphore
}

func NewLockManager() *LockManager {
	return &LockManager{
		log:        logrus.StandardLogger().WithField("type", "lock/memory"),
		semaphores: make(map[string]*semaphore),
	}
}

// Create implements lock.Manager.
func (lm *LockManager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	return &Lock{
		lm:   lm,
		name: name,
	}, nil
}

func (lm *LockManager) ref(name string) *semaphore {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	sem, ok := lm.semaphores[name]
	if !ok {
		sem = &semaphore{ch: make(chan struct{}, 1)}
		lm.semaphores[name] = sem
	}
	sem.refs++
	return sem
}

func (lm *LockManager) unref(name string, sem *semaphore) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	sem.refs--
	if sem.refs == 0 {
		delete(lm.semaphores, name)
	}
}

type Lock struct {
	lm   *LockManager
	name string

	mu     sync.Mutex
	sem    *semaphore
	lostCh chan struct{}
	stopCh chan struct{}
}

// Acquire implements lock.DistributedLock.
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sem != nil {
		return nil, errors.New("cannot call Acquire concurrently")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sem := l.lm.ref(l.name)
	select {
	case sem.ch <- struct{}{}:
	case <-ctx.Done():
		l.lm.unref(l.name, sem)
		return nil, ctx.Err()
	}

	l.sem = sem
	l.lostCh = make(chan struct{})
	l.stopCh = make(chan struct{})

	go func(stopCh chan struct{}) {
		select {
		case <-ctx.Done():
			l.lm.log.WithField("name", l.name).Trace("context done, releasing lock")
			l.release(stopCh)
		case <-stopCh:
		}
	}(l.stopCh)

	return l.lostCh, nil
}

// Unlock implements lock.DistributedLock.
func (l *Lock) Unlock(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.releaseLocked()
	return nil
}

// release releases the acquisition identified by stopCh, if it is still the
// current one.
func (l *Lock) release(stopCh chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopCh != stopCh {
		return
	}
	l.releaseLocked()
}

func (l *Lock) releaseLocked() {
	if l.sem == nil {
		return
	}

	<-l.sem.ch
	l.lm.unref(l.name, l.sem)

	close(l.stopCh)
	close(l.lostCh)
	l.sem = nil
	l.stopCh = nil
}

// IsLocked implements lock.DistributedLock.
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.sem != nil
}
