// Package capability defines what the relay does with an accepted
// connection: forward it to a fixed remote, or speak SOCKS5 and
// forward it wherever the client asks.
package capability

import (
	"context"

	"gomyst/internal/session"
)

// Capability handles a single relay session.  Handle blocks until both
// directions are finished or ctx is cancelled, and always closes the
// session's inbound connection before returning.
type Capability interface {
	Handle(ctx context.Context, sess *session.Session) error
}
