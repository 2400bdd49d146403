package netutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveListenAddress(t *testing.T) {
	resolved, err := ResolveListenAddress("127.0.0.1:8085")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8085", resolved)

	resolved, err = ResolveListenAddress("127.0.0.1:0")
	require.NoError(t, err)

	host, port, err := net.SplitHostPort(resolved)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.NotEqual(t, "0", port)

	listener, err := net.Listen("tcp", resolved)
	require.NoError(t, err)
	require.NoError(t, listener.Close())

	_, err = ResolveListenAddress("no-port")
	assert.Error(t, err)
}

func TestAdvertiseAddress(t *testing.T) {
	for _, address := range []string{
		"127.0.0.1:8085",
		"timelockd.internal:8085",
		"[::1]:8085",
	} {
		advertised, err := AdvertiseAddress(address)
		require.NoError(t, err)
		assert.Equal(t, address, advertised)
	}

	_, err := AdvertiseAddress("8085")
	assert.Error(t, err)
}
