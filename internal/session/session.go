// Package session represents one accepted local connection for the
// lifetime of its relay.
package session

import (
	"net"
	"time"

	"github.com/google/uuid"

	"gomyst/internal/metrics"
	"gomyst/util"
)

// Session binds an inbound connection to its identity, logger and
// the relay's counters.  Capabilities operate on sessions rather than
// raw connections.
type Session struct {
	ID      string
	Inbound net.Conn
	Started time.Time
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// New creates a Session with a fresh random ID.
func New(inbound net.Conn, logger *util.Logger, m *metrics.Collector) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Inbound: inbound,
		Started: time.Now(),
		Logger:  logger,
		Metrics: m,
	}
}

// Tag is the short form of the ID used in log lines.
func (s *Session) Tag() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}

// Peer returns the client's address.
func (s *Session) Peer() string {
	if s.Inbound == nil || s.Inbound.RemoteAddr() == nil {
		return "?"
	}
	return s.Inbound.RemoteAddr().String()
}
