// Package api is the node's JSON-over-HTTP control surface
// (Tequilapi).  Handlers translate requests into calls on a
// state.Engine and render the results; they hold no state of their own.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	gmerr "gomyst/internal/errors"
	"gomyst/internal/state"
	"gomyst/util"
)

// shutdownTimeout bounds how long Run waits for in-flight requests.
const shutdownTimeout = 5 * time.Second

// Server serves the control API for one Engine.
type Server struct {
	engine  *state.Engine
	logger  *util.Logger
	started time.Time
	pid     int
}

// NewServer creates a Server backed by engine.
func NewServer(engine *state.Engine, logger *util.Logger) *Server {
	return &Server{
		engine:  engine,
		logger:  logger.Named("api"),
		started: time.Now(),
		pid:     os.Getpid(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", s.healthcheck)
	mux.HandleFunc("GET /config", s.config)
	mux.HandleFunc("POST /terms", s.updateTerms)
	mux.HandleFunc("POST /identities-import", s.importIdentity)
	mux.HandleFunc("PUT /identities/current", s.currentIdentity)
	mux.HandleFunc("GET /identities/{id}", s.identity)
	mux.HandleFunc("GET /connection", s.connectionStatus)
	mux.HandleFunc("PUT /connection", s.createConnection)
	return s.logRequests(mux)
}

// Run listens on addr and serves until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &gmerr.BindError{Addr: addr, Err: err}
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("control API listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Verbose("control API stopped")
	return nil
}

// ── middleware ───────────────────────────────────────────────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("%s %s %d %s", r.Method, r.URL.RequestURI(), rec.status, time.Since(start).Round(time.Microsecond))
	})
}
