package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"

	gmerr "gomyst/internal/errors"
)

// wsReadLimit caps a single inbound WebSocket message.
const wsReadLimit = 64 << 20

// WSDialer opens binary WebSocket streams and exposes them as net.Conn.
// The stream has no write half to close: EOF from the local side is not
// signalled to the peer, and the stream stays open until the peer
// finishes or the session is torn down.
type WSDialer struct {
	Timeout time.Duration
	Header  http.Header
}

// Dial performs the WebSocket handshake with the URL in address.  The
// network argument is ignored.
func (d *WSDialer) Dial(ctx context.Context, _, address string) (net.Conn, error) {
	dctx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	c, resp, err := websocket.Dial(dctx, address, &websocket.DialOptions{HTTPHeader: d.Header})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, gmerr.Wrap("websocket dial", address, err)
	}
	c.SetReadLimit(wsReadLimit)

	// The stream outlives the dial context; it ends when the relay
	// closes the returned conn.
	return websocket.NetConn(context.Background(), c, websocket.MessageBinary), nil
}

// Close is a no-op.
func (d *WSDialer) Close() error { return nil }
