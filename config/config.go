// Package config defines the runtime configuration for myst and the
// parsers for the address-like arguments it accepts.
package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	gmerr "gomyst/internal/errors"
	"gomyst/util"
)

// Command selects what the process does.
type Command string

const (
	CmdDaemon       Command = "daemon"
	CmdCLI          Command = "cli"
	CmdConnectionUp Command = "connection up"
	CmdProxy        Command = "proxy"
)

// Config holds every tuneable for one invocation.
type Config struct {
	Command Command

	// ── Control API ──────────────────────────────────────────────────
	TequilapiAddress string
	TequilapiPort    int
	TermsVersion     string

	// ── cli / connection up ──────────────────────────────────────────
	AgreedTerms      bool
	ImportPassphrase string
	ImportKey        []string // raw key arguments of `identities import`
	Providers        string   // comma-separated
	ProxyPort        int
	ServiceType      string

	// ── Relay ────────────────────────────────────────────────────────
	Remote      string // host:port or ws(s):// URL
	SOCKS       bool
	PollDelay   time.Duration
	GracePeriod time.Duration
	ConnTimeout time.Duration

	// ── SSH gateway ──────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port]
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	LogFile string
	DryRun  bool
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		TequilapiAddress: DefaultTequilapiAddress,
		TequilapiPort:    DefaultTequilapiPort,
		TermsVersion:     TermsVersion,
		ProxyPort:        DefaultProxyPort,
		ServiceType:      DefaultServiceType,
		PollDelay:        DefaultPollDelay,
		GracePeriod:      DefaultGracePeriod,
		ConnTimeout:      DefaultConnTimeout,
	}
}

// APIAddr is the host:port the control API listens on.
func (c *Config) APIAddr() string {
	return util.FormatAddr(c.TequilapiAddress, c.TequilapiPort)
}

// BaseURL is the control API's HTTP root.
func (c *Config) BaseURL() string {
	return "http://" + c.APIAddr()
}

// ProviderList splits Providers on commas, dropping empty entries.
func (c *Config) ProviderList() []string {
	var out []string
	for _, p := range strings.Split(c.Providers, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ── Parsers ──────────────────────────────────────────────────────────

// ParsePort parses a TCP port.  Zero is accepted only when allowZero.
func ParsePort(s string, allowZero bool) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	lo := 1
	if allowZero {
		lo = 0
	}
	if p < lo || p > 65535 {
		return 0, fmt.Errorf("port %d out of range %d-65535", p, lo)
	}
	return p, nil
}

// RemoteKind says how a --remote value is reached.
type RemoteKind int

const (
	RemoteTCP RemoteKind = iota
	RemoteWebSocket
)

// ParseRemote checks a --remote value: either host:port or a ws:// or
// wss:// URL.
func ParseRemote(remote string) (RemoteKind, error) {
	lower := strings.ToLower(remote)
	if strings.HasPrefix(lower, "ws://") || strings.HasPrefix(lower, "wss://") {
		rest := remote[strings.Index(remote, "://")+3:]
		if rest == "" || strings.HasPrefix(rest, "/") {
			return 0, fmt.Errorf("websocket remote %q has no host", remote)
		}
		return RemoteWebSocket, nil
	}

	if _, _, err := util.SplitHostPort(remote); err != nil {
		return 0, fmt.Errorf("invalid remote: %w (expected host:port or ws://host/path)", err)
	}
	return RemoteTCP, nil
}

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec splits "admin@bastion.example.com:2222".  The port
// defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q, expected [user@]host[:port]", spec)
	}
	user, host, port = m[1], m[2], DefaultSSHPort
	if m[3] != "" {
		if port, err = ParsePort(m[3], false); err != nil {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &gmerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	c.TunnelEnabled = true
	c.TunnelUser, c.TunnelHost, c.TunnelPort = user, host, port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is consistent for Command.
func (c *Config) Validate() error {
	if c.TequilapiAddress == "" || net.ParseIP(c.TequilapiAddress) == nil {
		return &gmerr.ConfigError{
			Field:   "tequilapi.address",
			Value:   c.TequilapiAddress,
			Message: "must be an IP address",
			Hint:    "use 127.0.0.1 to keep the control API local",
		}
	}
	if c.TequilapiPort < 1 || c.TequilapiPort > 65535 {
		return &gmerr.ConfigError{Field: "tequilapi.port", Value: c.TequilapiPort, Message: "out of range 1-65535"}
	}
	if c.PollDelay < 0 {
		return &gmerr.ConfigError{Field: "poll-delay", Value: c.PollDelay, Message: "must not be negative"}
	}
	if c.GracePeriod < 0 {
		return &gmerr.ConfigError{Field: "grace", Value: c.GracePeriod, Message: "must not be negative"}
	}

	switch c.Command {
	case CmdCLI:
		if c.ImportPassphrase != "" && len(c.ImportKey) == 0 {
			return &gmerr.ConfigError{
				Field:   "key",
				Message: "identities import needs a keystore argument",
				Hint:    "myst cli identities import <passphrase> <keystore.json | key segments...>",
			}
		}

	case CmdConnectionUp:
		if len(c.ProviderList()) == 0 {
			return &gmerr.ConfigError{
				Field:   "providers",
				Message: "provider id is required",
				Hint:    "myst connection up 0xprovider1,0xprovider2",
			}
		}
		if c.ProxyPort < 1 || c.ProxyPort > 65535 {
			return &gmerr.ConfigError{Field: "proxy", Value: c.ProxyPort, Message: "out of range 1-65535"}
		}
		if c.Remote != "" {
			if _, err := ParseRemote(c.Remote); err != nil {
				return &gmerr.ConfigError{Field: "remote", Value: c.Remote, Message: err.Error()}
			}
		}

	case CmdProxy:
		if c.ProxyPort < 0 || c.ProxyPort > 65535 {
			return &gmerr.ConfigError{Field: "port", Value: c.ProxyPort, Message: "out of range 0-65535"}
		}
		if c.SOCKS == (c.Remote != "") {
			return &gmerr.ConfigError{
				Field:   "remote",
				Message: "exactly one of --remote or --socks is required",
				Hint:    "myst proxy --port 10000 --remote provider.example:443",
			}
		}
		if c.Remote != "" {
			kind, err := ParseRemote(c.Remote)
			if err != nil {
				return &gmerr.ConfigError{Field: "remote", Value: c.Remote, Message: err.Error()}
			}
			if kind == RemoteWebSocket && c.TunnelEnabled {
				return &gmerr.ConfigError{
					Field:   "tunnel",
					Value:   c.TunnelSpec,
					Message: "WebSocket remotes cannot be reached through an SSH gateway",
				}
			}
		}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &gmerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	return nil
}
