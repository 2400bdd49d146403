package netutil

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// GetAvailablePortForAddress returns an open port on the specified address
func GetAvailablePortForAddress(address string) (int32, error) {
	server, err := net.Listen("tcp", fmt.Sprintf("%s:0", address))
	if err != nil {
		return 0, err
	}
	defer server.Close()
	_, portString, err := net.SplitHostPort(server.Addr().String())
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portString)
	return int32(port), err
}

// ResolveListenAddress replaces a zero port with an open one, so the address
// can be advertised before the listener starts.
func ResolveListenAddress(listenAddress string) (string, error) {
	host, port, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return "", errors.Wrap(err, "invalid listen address")
	}

	if port != "0" {
		return listenAddress, nil
	}

	available, err := GetAvailablePortForAddress(host)
	if err != nil {
		return "", errors.Wrap(err, "error finding available port")
	}
	return net.JoinHostPort(host, strconv.Itoa(int(available))), nil
}
