package net

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

const maxPort = 65535

var ErrNoFreePort = errors.New("no free port")

// portFree reports whether host:port can currently be bound.
var portFree = func(host string, port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// FindOpenPort returns the first port >= base on host that nothing is listening on.
// Candidates are tried one at a time in increasing order.
// The result is only a hint: another process may take the port before the caller binds it.
func FindOpenPort(host string, base int) (int, error) {
	if base <= 0 || base > maxPort {
		return 0, fmt.Errorf("invalid base port %d", base)
	}
	for port := base; port <= maxPort; port++ {
		if portFree(host, port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w on %s at or above %d", ErrNoFreePort, host, base)
}

// EphemeralPort asks the kernel for an unused port on host.
// Like FindOpenPort, the port is released before returning, so it is only a hint.
func EphemeralPort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("%w on %s: %v", ErrNoFreePort, host, err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
