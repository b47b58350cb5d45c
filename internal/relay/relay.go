// Package relay implements the local TCP tunnel relay: it listens on a
// loopback port and hands every accepted connection to a capability
// that carries it to the remote side.
package relay

import (
	"context"
	"net"
	"sync"
	"time"

	"gomyst/internal/capability"
	gmerr "gomyst/internal/errors"
	"gomyst/internal/metrics"
	"gomyst/internal/session"
	"gomyst/internal/transport"
	"gomyst/util"
)

// Config controls the relay's listener and shutdown behaviour.
type Config struct {
	// LocalPort is the loopback port to listen on; 0 picks one.
	LocalPort int

	// PollDelay is the pause between accept iterations.
	PollDelay time.Duration

	// GracePeriod bounds how long shutdown waits for active sessions
	// before closing them.  Zero closes them immediately.
	GracePeriod time.Duration
}

// Relay accepts local connections and runs one session per connection.
type Relay struct {
	cfg     Config
	dialer  transport.Dialer
	handler capability.Capability
	logger  *util.Logger
	metrics *metrics.Collector

	// ln and closed are guarded by mu.
	ln     net.Listener
	closed bool

	// sessCtx outlives Run's ctx so sessions can drain; cancelled on
	// forced shutdown.
	sessCtx    context.Context
	sessCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup
}

// New creates a relay.  dialer is closed when Run returns.
func New(cfg Config, dialer transport.Dialer, handler capability.Capability, logger *util.Logger, m *metrics.Collector) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		cfg:        cfg,
		dialer:     dialer,
		handler:    handler,
		logger:     logger.Named("relay"),
		metrics:    m,
		sessCtx:    ctx,
		sessCancel: cancel,
		sessions:   make(map[string]*session.Session),
	}
}

// Bind opens the listener on 127.0.0.1:LocalPort.  It is a no-op once
// the relay is bound.
func (r *Relay) Bind() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return gmerr.ErrRelayClosed
	}
	if r.ln != nil {
		return nil
	}
	addr := util.LoopbackAddr(r.cfg.LocalPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &gmerr.BindError{Addr: addr, Err: err}
	}
	r.ln = ln
	r.logger.Info("listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or nil before Bind.
func (r *Relay) Addr() net.Addr {
	if ln := r.listener(); ln != nil {
		return ln.Addr()
	}
	return nil
}

func (r *Relay) listener() net.Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ln
}

// Close releases a relay that will not be run: it closes the listener
// and the dialer.  Run after Close returns ErrRelayClosed.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ln := r.ln
	r.mu.Unlock()

	r.sessCancel()
	var err error
	if ln != nil {
		err = ln.Close()
	}
	if derr := r.dialer.Close(); err == nil {
		err = derr
	}
	return err
}

// Active returns the number of sessions currently being relayed.
func (r *Relay) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run accepts connections until ctx is cancelled, then shuts down.  It
// binds first if Bind has not been called.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Bind(); err != nil {
		return err
	}
	ln := r.listener()
	defer r.dialer.Close() //nolint:errcheck

	// Unblock Accept on cancellation.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	err := r.acceptLoop(ctx, ln)
	close(stop)
	ln.Close()

	r.shutdown()
	r.logger.Verbose("metrics %s", r.metrics.JSON())
	return err
}

func (r *Relay) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !gmerr.IsTemporary(err) {
				return gmerr.Wrap("accept", ln.Addr().String(), err)
			}
			r.logger.Warn("accept: %v", err)
			r.metrics.RecordError(err.Error())
		} else {
			r.spawn(conn)
		}

		if !r.pause(ctx) {
			return nil
		}
	}
}

// pause waits PollDelay; it returns false if ctx ended first.
func (r *Relay) pause(ctx context.Context) bool {
	if r.cfg.PollDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(r.cfg.PollDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Relay) spawn(conn net.Conn) {
	sess := session.New(conn, r.logger.Named("session"), r.metrics)

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()
	r.wg.Add(1)
	r.metrics.SessionOpened()
	sess.Logger.Debug("%s: accepted %s", sess.Tag(), sess.Peer())

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.sessions, sess.ID)
			r.mu.Unlock()
			r.metrics.SessionClosed()
			r.wg.Done()
		}()
		// Errors were logged and counted by the capability.
		r.handler.Handle(r.sessCtx, sess) //nolint:errcheck
	}()
}

// shutdown waits up to GracePeriod for sessions, then closes the rest.
func (r *Relay) shutdown() {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	if n := r.Active(); n > 0 && r.cfg.GracePeriod > 0 {
		r.logger.Info("waiting up to %s for %d session(s)", r.cfg.GracePeriod, n)
		t := time.NewTimer(r.cfg.GracePeriod)
		defer t.Stop()
		select {
		case <-done:
			r.sessCancel()
			return
		case <-t.C:
		}
	}

	r.sessCancel()
	r.mu.Lock()
	n := len(r.sessions)
	for _, s := range r.sessions {
		s.Inbound.Close()
	}
	r.mu.Unlock()
	if n > 0 {
		r.logger.Warn("closed %d session(s) still active at shutdown", n)
	}
	<-done
}
