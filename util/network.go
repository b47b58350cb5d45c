package util

import (
	"fmt"
	"net"
	"strconv"
)

// LoopbackHost is the only address the relay and the daemon bind by default.
const LoopbackHost = "127.0.0.1"

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// LoopbackAddr returns "127.0.0.1:port".
func LoopbackAddr(port int) string {
	return FormatAddr(LoopbackHost, port)
}

// SplitHostPort parses "host:port" and validates the port number.
func SplitHostPort(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q in %q", p, addr)
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", addr)
	}
	return host, port, nil
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", LoopbackAddr(0))
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
