// Package transport opens the outbound leg of a relay session.  A
// Dialer decides how bytes reach the remote end: plain TCP, a
// direct-tcpip channel over an SSH gateway, or a WebSocket stream.
package transport

import (
	"context"
	"net"
	"strings"
)

// Dialer opens outbound connections for the relay.
type Dialer interface {
	// Dial connects to address.  For WebSocket dialers address is the
	// ws:// or wss:// URL.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases long-lived resources such as an SSH session.
	// Stateless dialers return nil.
	Close() error
}

// IsWebSocketURL reports whether remote names a WebSocket endpoint.
func IsWebSocketURL(remote string) bool {
	r := strings.ToLower(remote)
	return strings.HasPrefix(r, "ws://") || strings.HasPrefix(r, "wss://")
}
