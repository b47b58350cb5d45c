// Package tunnel provides an SSH gateway through which the relay can
// reach remote targets that are not directly routable from this host.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an encrypted channel through which TCP connections can be
// forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the tunnel.
	Close() error

	// IsAlive reports whether the gateway connection is still up.
	IsAlive() bool
}
