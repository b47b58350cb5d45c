// Package metrics provides lightweight, lock-free counters for the
// relay's sessions and traffic.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one relay.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	bytesUp        atomic.Int64
	bytesDown      atomic.Int64
	dialFailures   atomic.Int64
	errorsTotal    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Sessions ─────────────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of sessions currently relaying.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── Traffic ──────────────────────────────────────────────────────────

// AddTraffic records bytes moved by a finished session.
func (c *Collector) AddTraffic(up, down int64) {
	if c == nil {
		return
	}
	c.bytesUp.Add(up)
	c.bytesDown.Add(down)
}

// BytesUp returns total bytes sent from local clients to remotes.
func (c *Collector) BytesUp() int64 {
	if c == nil {
		return 0
	}
	return c.bytesUp.Load()
}

// BytesDown returns total bytes sent from remotes to local clients.
func (c *Collector) BytesDown() int64 {
	if c == nil {
		return 0
	}
	return c.bytesDown.Load()
}

// ── Errors ───────────────────────────────────────────────────────────

// DialFailed records a session whose outbound leg never connected.
func (c *Collector) DialFailed(msg string) {
	if c == nil {
		return
	}
	c.dialFailures.Add(1)
	c.RecordError(msg)
}

// DialFailures returns how many outbound dials failed.
func (c *Collector) DialFailures() int64 {
	if c == nil {
		return 0
	}
	return c.dialFailures.Load()
}

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	BytesUp          int64  `json:"bytes_up"`
	BytesDown        int64  `json:"bytes_down"`
	DialFailures     int64  `json:"dial_failures"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		BytesUp:        c.bytesUp.Load(),
		BytesDown:      c.bytesDown.Load(),
		DialFailures:   c.dialFailures.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as a compact JSON string.
func (c *Collector) JSON() string {
	data, _ := json.Marshal(c.Snapshot())
	return string(data)
}
