package capability

import (
	"context"
	"io"
	"log"
	"net"
	"strings"
	"syscall"

	"github.com/things-go/go-socks5"
	"github.com/things-go/go-socks5/statute"

	gmerr "gomyst/internal/errors"
	"gomyst/internal/session"
	"gomyst/internal/transport"
	"gomyst/util"
)

// SOCKS runs a SOCKS5 (CONNECT only, no auth) handshake on each
// session and relays to the requested destination through Dialer.
type SOCKS struct {
	Dialer transport.Dialer
}

// Handle serves one SOCKS5 conversation on the session's connection.
func (s *SOCKS) Handle(ctx context.Context, sess *session.Session) error {
	defer sess.Inbound.Close()

	srv := socks5.NewServer(
		socks5.WithLogger(socks5.NewLogger(log.New(io.Discard, "", 0))),
		socks5.WithRule(&socks5.PermitCommand{EnableConnect: true}),
		socks5.WithConnectHandle(func(_ context.Context, w io.Writer, req *socks5.Request) error {
			return s.connect(ctx, sess, w, req)
		}),
	)
	err := srv.ServeConn(sess.Inbound)
	if err != nil && !util.IsHarmless(err) {
		sess.Logger.Debug("%s: socks: %v", sess.Tag(), err)
		return err
	}
	return nil
}

func (s *SOCKS) connect(ctx context.Context, sess *session.Session, w io.Writer, req *socks5.Request) error {
	dest := req.DestAddr.String()

	remote, err := s.Dialer.Dial(ctx, "tcp", dest)
	if err != nil {
		sess.Logger.Warn("%s: socks connect %s failed: %v", sess.Tag(), dest, err)
		sess.Metrics.DialFailed(err.Error())
		socks5.SendReply(w, replyCode(err), nil) //nolint:errcheck
		return err
	}
	defer remote.Close()

	if err := socks5.SendReply(w, statute.RepSuccess, remote.LocalAddr()); err != nil {
		return err
	}
	sess.Logger.Verbose("%s: %s -> %s (socks)", sess.Tag(), sess.Peer(), dest)

	inbound := &bufferedConn{Conn: sess.Inbound, r: req.Reader}
	stats, err := util.Pipe(ctx, inbound, remote)
	sess.Metrics.AddTraffic(stats.Up, stats.Down)
	if err != nil {
		sess.Metrics.RecordError(err.Error())
	}
	return err
}

func replyCode(err error) uint8 {
	switch {
	case gmerr.Is(err, syscall.ECONNREFUSED), strings.Contains(err.Error(), "refused"):
		return statute.RepConnectionRefused
	case gmerr.Is(err, syscall.ENETUNREACH):
		return statute.RepNetworkUnreachable
	default:
		return statute.RepHostUnreachable
	}
}

// bufferedConn reads through the SOCKS request's buffered reader so
// bytes the client sent right after the handshake are not lost.
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *bufferedConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}
