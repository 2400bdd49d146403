// Package etcd provides a lock.Manager backed by etcd elections, for banks
// that share an account store across processes.
//
// Every handle also takes an in-process lock for its name before campaigning,
// so handles created by the same LockManager exclude each other as well as
// handles held by other processes.
package etcd

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/code-payments/code-timelock/pkg/lock"
	"github.com/code-payments/code-timelock/pkg/lock/memory"
)

var ErrManagerClosed = errors.New("lock manager closed")

const (
	minLockTTL = time.Second

	// concurrency.WithTTL silently falls back to 60 seconds above this.
	maxLockTTL = time.Minute
)

type LockManager struct {
	log      *logrus.Entry
	sessions *sessionKeeper
	local    *memory.LockManager
	root     string
	value    string
}

// NewLockManager returns a LockManager whose locks live under root. The value
// is written to every lock key held by this manager, which identifies the
// holder to operators.
func NewLockManager(client *v3.Client, root string, ttl time.Duration, value string) (*LockManager, error) {
	if ttl < minLockTTL || ttl > maxLockTTL {
		return nil, errors.Errorf("invalid lock ttl: %v (must be [%v, %v])", ttl, minLockTTL, maxLockTTL)
	}

	log := logrus.StandardLogger().WithFields(logrus.Fields{
		"type": "lock/etcd",
		"root": root,
	})

	sessions, err := newSessionKeeper(log, client, int(ttl.Round(time.Second).Seconds()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create etcd session")
	}

	return &LockManager{
		log:      log,
		sessions: sessions,
		local:    memory.NewLockManager(),
		root:     root,
		value:    value,
	}, nil
}

// Create implements lock.Manager.
func (lm *LockManager) Create(ctx context.Context, name string) (lock.DistributedLock, error) {
	if lm.sessions.get() == nil {
		return nil, ErrManagerClosed
	}

	local, err := lm.local.Create(ctx, name)
	if err != nil {
		return nil, err
	}

	key := path.Join(lm.root, name)
	return &Lock{
		log:   lm.log.WithField("key", key),
		lm:    lm,
		key:   key,
		local: local,
	}, nil
}

// Close closes the lock manager. All locks held through it become unlocked.
func (lm *LockManager) Close() {
	lm.sessions.close()
}

type Lock struct {
	log   *logrus.Entry
	lm    *LockManager
	key   string
	local lock.DistributedLock

	mu       sync.Mutex
	election *concurrency.Election
}

// Acquire implements lock.DistributedLock.
func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election != nil {
		return nil, errors.New("cannot call Acquire concurrently")
	}

	session := l.lm.sessions.get()
	if session == nil {
		return nil, ErrManagerClosed
	}

	localLostCh, err := l.local.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	heldCtx, cancel := context.WithCancel(ctx)

	election := concurrency.NewElection(session, l.key)
	if err := election.Campaign(heldCtx, l.lm.value); err != nil {
		cancel()
		_ = l.local.Unlock(context.Background())
		return nil, errors.Wrap(err, "failed to initiate lock")
	}

	l.log.Trace("Lock acquired")
	l.election = election

	watchCh := session.Client().Watch(
		v3.WithRequireLeader(heldCtx),
		election.Key(),
		v3.WithRev(election.Rev()),
	)

	lostCh := make(chan struct{})
	go func() {
		defer cancel()
		defer l.release(election)

		// Holders hear about the loss before Resign, which can block on a
		// leaderless cluster.
		defer close(lostCh)

		l.watch(session, election, localLostCh, watchCh)
	}()

	return lostCh, nil
}

// watch returns once the election can no longer be trusted to be held.
func (l *Lock) watch(
	session *concurrency.Session,
	election *concurrency.Election,
	localLostCh <-chan struct{},
	watchCh v3.WatchChan,
) {
	for {
		select {
		case <-session.Done():
			l.log.Warn("Lock session ended, releasing lock")
			return

		case <-localLostCh:
			return

		case resp, ok := <-watchCh:
			if !ok {
				return
			}
			if err := resp.Err(); err != nil {
				l.log.WithError(err).Warn("Failure watching lock key")
				return
			}
			if lost(resp.Events, election.Rev()) {
				return
			}
		}
	}
}

// lost reports whether any event shows the key was deleted or recreated by
// another campaign.
func lost(events []*v3.Event, rev int64) bool {
	for _, event := range events {
		switch event.Type {
		case mvccpb.DELETE:
			return true
		case mvccpb.PUT:
			if event.Kv.CreateRevision != rev {
				return true
			}
		}
	}
	return false
}

// release resigns the election if it is still the one this handle holds, and
// drops the in-process lock either way.
func (l *Lock) release(election *concurrency.Election) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election == election {
		if err := election.Resign(context.Background()); err != nil {
			l.log.WithError(err).Warn("Failed to resign on lock cleanup")
		}
		l.election = nil
	}

	_ = l.local.Unlock(context.Background())
}

// Unlock implements lock.DistributedLock
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election == nil {
		return nil
	}

	err := l.election.Resign(ctx)
	l.election = nil

	if unlockErr := l.local.Unlock(ctx); err == nil {
		err = unlockErr
	}
	return err
}

// IsLocked implements lock.DistributedLock
func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.election != nil && l.election.Key() != ""
}
