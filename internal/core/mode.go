// Package core is the orchestration layer.  It composes the control
// API, the API client and the tunnel relay into the commands the
// binary offers, and provides a builder that selects the right one
// from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  capability  →  session  →  relay  →  core  →  cmd (CLI)
//	state  →  api  →  client  ↗
package core

import "context"

// Mode is one complete command: daemon, cli, connection up or proxy.
// Each mode owns its lifecycle and returns when its work is done or
// ctx is cancelled.
type Mode interface {
	Run(ctx context.Context) error
}
