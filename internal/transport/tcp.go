package transport

import (
	"context"
	"net"
	"time"

	gmerr "gomyst/internal/errors"
)

// TCPDialer opens plain TCP connections.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, gmerr.Wrap("dial", address, err)
	}
	return conn, nil
}

// Close is a no-op.
func (d *TCPDialer) Close() error { return nil }
