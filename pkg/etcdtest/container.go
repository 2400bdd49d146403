// Package etcdtest starts throwaway etcd containers for integration tests.
package etcdtest

import (
	"context"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/pkg/errors"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/code-payments/code-timelock/pkg/testutil"
)

const (
	image = "quay.io/coreos/etcd"
	tag   = "v3.5.13"

	clientPort = "2379/tcp"
)

// StartEtcd runs a single node etcd and returns a client connected to it. The
// teardown func is always safe to call.
func StartEtcd(pool *dockertest.Pool) (*v3.Client, func(), error) {
	resource, teardown, err := testutil.RunContainer(pool, &dockertest.RunOptions{
		Repository: image,
		Tag:        tag,
		Env: []string{
			"ALLOW_NONE_AUTHENTICATION=true",
			"ETCD_LISTEN_CLIENT_URLS=http://0.0.0.0:2379",
			"ETCD_ADVERTISE_CLIENT_URLS=http://0.0.0.0:2379",
		},
	})
	if err != nil {
		return nil, teardown, err
	}

	client, err := v3.New(v3.Config{
		Endpoints:   []string{resource.GetHostPort(clientPort)},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, teardown, errors.Wrap(err, "failed to create etcd client")
	}

	// The client connects lazily, so a read is the only way to know the
	// member is serving.
	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		_, err := client.Get(ctx, "health")
		return err
	})
	if err != nil {
		client.Close()
		return nil, teardown, errors.Wrap(err, "etcd did not become ready")
	}

	return client, teardown, nil
}
