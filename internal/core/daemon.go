package core

import (
	"context"
	"net"

	"gomyst/internal/api"
	"gomyst/internal/state"
	"gomyst/util"
)

// DaemonMode runs the control API until ctx is cancelled.
type DaemonMode struct {
	Addr         string
	TermsVersion string
	Logger       *util.Logger

	// Listener, when set, is served instead of binding Addr.
	Listener net.Listener
}

// Run starts a fresh state engine and serves the control API on it.
func (m *DaemonMode) Run(ctx context.Context) error {
	engine := state.New(m.TermsVersion)
	srv := api.NewServer(engine, m.Logger)
	if m.Listener != nil {
		return srv.Serve(ctx, m.Listener)
	}
	return srv.Run(ctx, m.Addr)
}
