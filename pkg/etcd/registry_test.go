//go:build integration

package etcd

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/code-payments/code-timelock/pkg/etcdtest"
)

func TestRegistry(t *testing.T) {
	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	client, teardown, err := etcdtest.StartEtcd(pool)
	require.NoError(t, err)
	defer teardown()

	for _, tc := range []struct {
		name string
		f    func(t *testing.T, client *v3.Client)
	}{
		{name: "Membership", f: testMembership},
		{name: "Recreate", f: testRecreate},
		{name: "InvalidEntry", f: testInvalidEntry},
	} {
		t.Run(tc.name, func(t *testing.T) { tc.f(t, client) })
	}
}

func TestNewRegistry_Invalid(t *testing.T) {
	for _, ttl := range []time.Duration{0, 500 * time.Millisecond, 61 * time.Second} {
		_, err := NewRegistry(nil, "/timelock/nodes", newNode(), ttl)
		assert.Error(t, err, ttl)
	}

	_, err := NewRegistry(nil, "/timelock/nodes", &Node{}, 5*time.Second)
	assert.Error(t, err)
}

func testMembership(t *testing.T, client *v3.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prefix := "/" + uuid.NewString()

	first, err := NewRegistry(client, prefix, newNode(), 5*time.Second)
	require.NoError(t, err)
	defer first.Close()

	second, err := NewRegistry(client, prefix, newNode(), 5*time.Second)
	require.NoError(t, err)

	for _, r := range []*Registry{first, second} {
		require.NoError(t, r.WaitForNode(ctx, first.Self().ID, true))
		require.NoError(t, r.WaitForNode(ctx, second.Self().ID, true))
	}

	peers := first.Peers()
	require.Len(t, peers, 2)
	assert.True(t, peers[0].ID < peers[1].ID)
	for _, peer := range peers {
		switch peer.ID {
		case first.Self().ID:
			assert.Equal(t, first.Self().APIAddress, peer.APIAddress)
		case second.Self().ID:
			assert.Equal(t, second.Self().APIAddress, peer.APIAddress)
		default:
			t.Fatalf("unexpected peer %s", peer.ID)
		}
	}

	// Closing revokes the lease
	second.Close()
	second.Close()
	require.NoError(t, first.WaitForNode(ctx, second.Self().ID, false))
	assert.Len(t, first.Peers(), 1)

	assert.Equal(t, ErrRegistryClosed, second.WaitForNode(ctx, uuid.NewString(), true))
}

func testRecreate(t *testing.T, client *v3.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prefix := "/" + uuid.NewString()

	r, err := NewRegistry(client, prefix, newNode(), 5*time.Second)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.WaitForNode(ctx, r.Self().ID, true))

	key := prefix + "/" + r.Self().ID
	deleted, err := client.Delete(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted.Deleted)

	require.Eventually(t, func() bool {
		get, err := client.Get(ctx, key)
		if err != nil || len(get.Kvs) == 0 {
			return false
		}
		return get.Kvs[0].ModRevision > deleted.Header.Revision
	}, 10*time.Second, 50*time.Millisecond)

	require.NoError(t, r.WaitForNode(ctx, r.Self().ID, true))
}

func testInvalidEntry(t *testing.T, client *v3.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prefix := "/" + uuid.NewString()

	_, err := client.Put(ctx, prefix+"/garbage", "not json")
	require.NoError(t, err)

	r, err := NewRegistry(client, prefix, newNode(), 5*time.Second)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.WaitForNode(ctx, r.Self().ID, true))
	assert.Len(t, r.Peers(), 1)
}

func TestWaitForNode_Cancelled(t *testing.T) {
	r := &Registry{peers: make(map[string]*Node)}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	defer r.cancel()
	r.changed = newCond(r)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.Equal(t, context.DeadlineExceeded, r.WaitForNode(ctx, "missing", true))
	assert.NoError(t, r.WaitForNode(context.Background(), "missing", false))
}

func newNode() *Node {
	return &Node{
		ID:         uuid.NewString(),
		APIAddress: "localhost:8080",
		StartedAt:  time.Now().UTC().Truncate(time.Second),
	}
}
