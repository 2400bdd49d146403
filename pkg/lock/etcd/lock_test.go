//go:build integration

package etcd

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/code-payments/code-timelock/pkg/etcdtest"
)

const testRoot = "/ledger/locks"

var testClient *v3.Client

func TestMain(m *testing.M) {
	log := logrus.StandardLogger()

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.WithError(err).Error("Error creating docker pool")
		os.Exit(1)
	}

	client, teardown, err := etcdtest.StartEtcd(pool)
	if err != nil {
		log.WithError(err).Error("Error starting etcd")
		os.Exit(1)
	}
	testClient = client

	code := m.Run()
	teardown()
	os.Exit(code)
}

func newTestManager(t *testing.T, holder string) *LockManager {
	lm, err := NewLockManager(testClient, testRoot, 10*time.Second, holder)
	require.NoError(t, err)
	t.Cleanup(lm.Close)
	return lm
}

func TestLock_AcquireWritesHolder(t *testing.T) {
	ctx := context.Background()
	lm := newTestManager(t, "bank-a")

	l, err := lm.Create(ctx, "holder")
	require.NoError(t, err)
	require.False(t, l.IsLocked())

	lostCh, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, l.IsLocked())

	resp, err := testClient.Get(ctx, testRoot+"/holder", v3.WithPrefix())
	require.NoError(t, err)
	require.Len(t, resp.Kvs, 1)
	require.Equal(t, "bank-a", string(resp.Kvs[0].Value))

	// Unlocking twice is harmless, and closes the lost channel once
	require.NoError(t, l.Unlock(ctx))
	require.NoError(t, l.Unlock(ctx))
	<-lostCh
	require.False(t, l.IsLocked())

	resp, err = testClient.Get(ctx, testRoot+"/holder", v3.WithPrefix())
	require.NoError(t, err)
	require.Empty(t, resp.Kvs)
}

func TestLock_ExclusiveAcrossManagers(t *testing.T) {
	ctx := context.Background()

	held, err := newTestManager(t, "bank-a").Create(ctx, "shared")
	require.NoError(t, err)
	waiting, err := newTestManager(t, "bank-b").Create(ctx, "shared")
	require.NoError(t, err)

	heldLost, err := held.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		_, err := waiting.Acquire(ctx)
		acquired <- err
	}()

	select {
	case <-acquired:
		require.FailNow(t, "lock acquired while held by another manager")
	case <-time.After(time.Second):
	}

	require.NoError(t, held.Unlock(ctx))
	<-heldLost

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		require.FailNow(t, "lock was not handed over")
	}
	require.NoError(t, waiting.Unlock(ctx))
}

func TestLock_ExclusiveWithinManager(t *testing.T) {
	ctx := context.Background()
	lm := newTestManager(t, "bank-a")

	first, err := lm.Create(ctx, "local")
	require.NoError(t, err)
	second, err := lm.Create(ctx, "local")
	require.NoError(t, err)

	_, err = first.Acquire(ctx)
	require.NoError(t, err)
	defer first.Unlock(ctx)

	timeoutCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	_, err = second.Acquire(timeoutCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLock_ReleasedOnCancel(t *testing.T) {
	lm := newTestManager(t, "bank-a")

	l, err := lm.Create(context.Background(), "cancel")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	lostCh, err := l.Acquire(ctx)
	require.NoError(t, err)

	cancel()
	<-lostCh
	require.False(t, l.IsLocked())

	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLock_ReleasedOnClose(t *testing.T) {
	ctx := context.Background()

	lm, err := NewLockManager(testClient, testRoot, 10*time.Second, "bank-a")
	require.NoError(t, err)

	l, err := lm.Create(ctx, "close")
	require.NoError(t, err)

	lostCh, err := l.Acquire(ctx)
	require.NoError(t, err)

	lm.Close()
	lm.Close()
	<-lostCh

	_, err = lm.Create(ctx, "close")
	require.ErrorIs(t, err, ErrManagerClosed)
	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, ErrManagerClosed)
}

func TestLock_LostWhenKeyDeleted(t *testing.T) {
	ctx := context.Background()
	lm := newTestManager(t, "bank-a")

	l, err := lm.Create(ctx, "deleted")
	require.NoError(t, err)

	lostCh, err := l.Acquire(ctx)
	require.NoError(t, err)

	_, err = testClient.Delete(ctx, testRoot+"/deleted", v3.WithPrefix())
	require.NoError(t, err)

	select {
	case <-lostCh:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "lock not lost after its key was deleted")
	}
}
