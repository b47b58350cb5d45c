package capability

import (
	"context"

	"gomyst/internal/session"
	"gomyst/internal/transport"
	"gomyst/util"
)

// Forward pipes every session to one fixed remote address.
type Forward struct {
	Remote string
	Dialer transport.Dialer
}

// Handle dials Remote and relays bytes in both directions.  A failed
// dial ends only this session.
func (f *Forward) Handle(ctx context.Context, sess *session.Session) error {
	defer sess.Inbound.Close()

	remote, err := f.Dialer.Dial(ctx, "tcp", f.Remote)
	if err != nil {
		sess.Logger.Warn("%s: connect %s failed: %v", sess.Tag(), f.Remote, err)
		sess.Metrics.DialFailed(err.Error())
		return err
	}
	defer remote.Close()
	sess.Logger.Verbose("%s: %s -> %s", sess.Tag(), sess.Peer(), f.Remote)

	stats, err := util.Pipe(ctx, sess.Inbound, remote)
	sess.Metrics.AddTraffic(stats.Up, stats.Down)
	if err != nil {
		sess.Metrics.RecordError(err.Error())
		sess.Logger.Debug("%s: relay error: %v", sess.Tag(), err)
		return err
	}
	sess.Logger.Debug("%s: done, %d bytes up, %d bytes down", sess.Tag(), stats.Up, stats.Down)
	return nil
}
