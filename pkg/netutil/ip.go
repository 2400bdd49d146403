package netutil

import (
	"net"

	"github.com/pkg/errors"
)

// GetOutboundIP gets the locally preferred outbound IP address. No packets are
// sent; dialing UDP only resolves the route.
//
// From https://stackoverflow.com/questions/23558425/how-do-i-get-the-local-ip-address-in-go
func GetOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, errors.Wrap(err, "error resolving outbound route")
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP, nil
}

// AdvertiseAddress converts a listen address into one peers can dial. A
// wildcard or missing host is replaced with the outbound IP.
func AdvertiseAddress(listenAddress string) (string, error) {
	host, port, err := net.SplitHostPort(listenAddress)
	if err != nil {
		return "", errors.Wrap(err, "invalid listen address")
	}

	if ip := net.ParseIP(host); host != "" && (ip == nil || !ip.IsUnspecified()) {
		return listenAddress, nil
	}

	ip, err := GetOutboundIP()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ip.String(), port), nil
}
