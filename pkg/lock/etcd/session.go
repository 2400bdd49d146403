package etcd

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/code-payments/code-timelock/pkg/retry"
	"github.com/code-payments/code-timelock/pkg/retry/backoff"
)

// sessionKeeper owns the lease shared by every lock of a LockManager.
//
// A session keeps itself alive across leader changes, but it still expires
// when the cluster is leaderless for longer than the TTL. Locks held on the
// expired session observe it through Done(), and the keeper opens a fresh one
// for locks acquired afterwards.
type sessionKeeper struct {
	log    *logrus.Entry
	client *v3.Client
	ttl    int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	current *concurrency.Session
}

func newSessionKeeper(log *logrus.Entry, client *v3.Client, ttlSeconds int) (*sessionKeeper, error) {
	ctx, cancel := context.WithCancel(context.Background())

	k := &sessionKeeper{
		log:    log,
		client: client,
		ttl:    ttlSeconds,
		ctx:    ctx,
		cancel: cancel,
	}

	session, err := k.open()
	if err != nil {
		cancel()
		return nil, err
	}
	k.current = session

	go k.keep()

	return k, nil
}

// open grants a new lease. The session context is deliberately not tied to
// the keeper so that close() can still revoke the lease.
func (k *sessionKeeper) open() (*concurrency.Session, error) {
	return concurrency.NewSession(
		k.client,
		concurrency.WithTTL(k.ttl),
		concurrency.WithContext(v3.WithRequireLeader(context.Background())),
	)
}

// get returns the live session, or nil once the keeper has been closed.
func (k *sessionKeeper) get() *concurrency.Session {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.current
}

func (k *sessionKeeper) keep() {
	for {
		session := k.get()
		if session == nil {
			return
		}

		select {
		case <-k.ctx.Done():
			return
		case <-session.Done():
		}

		k.log.Info("Lock session expired, recreating")
		if err := k.replace(); err != nil {
			return
		}
	}
}

// replace opens sessions until one succeeds or the keeper is closed.
func (k *sessionKeeper) replace() error {
	_, err := retry.Retry(
		func() error {
			session, err := k.open()
			if err != nil {
				k.log.WithError(err).Warn("failed to recreate lock session")
				return err
			}

			k.mu.Lock()
			defer k.mu.Unlock()

			if k.current == nil {
				_ = session.Close()
				return ErrManagerClosed
			}

			k.current = session
			return nil
		},
		retry.NonRetriableErrors(ErrManagerClosed),
		retry.Cancellable(k.ctx),
		retry.BackoffWithJitter(backoff.Constant(time.Second), time.Second, 0.1),
	)
	return err
}

// close revokes the current lease. It is safe to call more than once.
func (k *sessionKeeper) close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.current == nil {
		return
	}

	k.cancel()
	if err := k.current.Close(); err != nil {
		k.log.WithError(err).Warn("failed to close lock session")
	}
	k.current = nil
}
