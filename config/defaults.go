package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// Defaults shared by CLI flags and environment loading.

const (
	// TermsVersion is the terms-of-use version this build requires.
	TermsVersion = "0.0.53"

	// DefaultTequilapiAddress keeps the control API on loopback.
	DefaultTequilapiAddress = "127.0.0.1"

	// DefaultTequilapiPort is the control API port.
	DefaultTequilapiPort = 4050

	// DefaultProxyPort is the local relay port for `connection up`.
	DefaultProxyPort = 10000

	// DefaultServiceType is the service requested from providers.
	DefaultServiceType = "wireguard"

	// DefaultPollDelay is the pause between relay accept iterations.
	DefaultPollDelay = 50 * time.Millisecond

	// DefaultGracePeriod is how long relay shutdown waits for sessions.
	DefaultGracePeriod = 5 * time.Second

	// DefaultConnTimeout bounds outbound TCP, WebSocket and SSH dials.
	DefaultConnTimeout = 30 * time.Second

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultLogMaxSizeMB is the size at which --log-file rotates.
	DefaultLogMaxSizeMB = 10

	// DefaultLogMaxBackups is how many rotated log files are kept.
	DefaultLogMaxBackups = 3
)
