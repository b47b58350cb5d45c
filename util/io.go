package util

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultBufSize is the standard buffer size for network I/O (32 KiB).
const DefaultBufSize = 32 * 1024

// PipeStats counts the bytes moved by [Pipe] in each direction.
type PipeStats struct {
	Up   int64 // local → remote
	Down int64 // remote → local
}

// Pipe relays bytes between local and remote until both directions
// have finished.  When one side reaches EOF its peer's write half is
// closed, if it has one, so the other direction can drain.  An error
// on either leg, or ctx being cancelled, closes both connections.  Pipe does not close
// the connections on a clean finish; that is the caller's job.
func Pipe(ctx context.Context, local, remote net.Conn) (PipeStats, error) {
	var up, down atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			// Unblock whichever leg is still parked in Read.
			local.Close()
			remote.Close()
		case <-stop:
		}
	}()

	g.Go(func() error { return copyHalf(remote, local, &up) })
	g.Go(func() error { return copyHalf(local, remote, &down) })

	err := g.Wait()
	close(stop)

	stats := PipeStats{Up: up.Load(), Down: down.Load()}
	if IsHarmless(err) {
		return stats, nil
	}
	return stats, err
}

// copyHalf copies src into dst, then half-closes dst.  A dst without a
// write half (a WebSocket adapter) is left open: closing it would also
// cut the opposite direction, so it ends with that direction or ctx.
func copyHalf(dst, src net.Conn, counter *atomic.Int64) error {
	buf := GetBuf()
	defer PutBuf(buf)

	n, err := io.CopyBuffer(dst, src, *buf)
	counter.Add(n)

	if cw, ok := dst.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite() //nolint:errcheck
	}
	return err
}

// IsHarmless returns true for errors that are expected during shutdown.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return false
}
