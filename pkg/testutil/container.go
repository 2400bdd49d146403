package testutil

import (
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// containerAutoKill bounds the lifetime of containers leaked by a test
// binary that exits without tearing down.
const containerAutoKill = 2 * time.Minute

// RunContainer starts a container that docker removes once it stops. The
// returned teardown purges it and is always safe to call.
func RunContainer(pool *dockertest.Pool, opts *dockertest.RunOptions) (*dockertest.Resource, func(), error) {
	resource, err := pool.RunWithOptions(opts, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, func() {}, errors.Wrapf(err, "failed to start %s:%s", opts.Repository, opts.Tag)
	}

	// Expire never fails.
	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	teardown := func() {
		if err := pool.Purge(resource); err != nil {
			logrus.StandardLogger().WithError(err).WithField("repository", opts.Repository).Warn("failed to purge container")
		}
	}
	return resource, teardown, nil
}
