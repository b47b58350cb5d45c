package core

import (
	"context"

	"gomyst/internal/relay"
	"gomyst/util"
)

// ProxyMode runs a standalone tunnel relay.
type ProxyMode struct {
	Relay  *relay.Relay
	Logger *util.Logger
}

// Run binds the relay and serves until ctx is cancelled.
func (m *ProxyMode) Run(ctx context.Context) error {
	if err := m.Relay.Bind(); err != nil {
		return err
	}
	m.Logger.Verbose("relay ready, Ctrl-C to stop")
	return m.Relay.Run(ctx)
}
