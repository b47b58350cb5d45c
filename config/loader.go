package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every supported environment variable.  Boolean
// values accept "1", "true", "yes" (case-insensitive).
const EnvPrefix = "MYST_"

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// variables override.  Call it before flag parsing so flags win.
func LoadFromEnv(cfg *Config) {
	if v := env("TEQUILAPI_ADDRESS"); v != "" {
		cfg.TequilapiAddress = v
	}
	if v := envInt("TEQUILAPI_PORT"); v > 0 {
		cfg.TequilapiPort = v
	}
	if v := envInt("PROXY_PORT"); v > 0 {
		cfg.ProxyPort = v
	}
	if v := env("SERVICE_TYPE"); v != "" {
		cfg.ServiceType = v
	}
	if envBool("AGREED_TERMS") {
		cfg.AgreedTerms = true
	}

	// Relay
	if v := env("REMOTE"); v != "" {
		cfg.Remote = v
	}
	if v, ok := envDuration("POLL_DELAY"); ok {
		cfg.PollDelay = v
	}
	if v, ok := envDuration("GRACE"); ok {
		cfg.GracePeriod = v
	}
	if v, ok := envDuration("TIMEOUT"); ok {
		cfg.ConnTimeout = v
	}

	// SSH gateway
	if v := env("TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := env("SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := env("KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := env("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func env(key string) string {
	return os.Getenv(EnvPrefix + key)
}

func envInt(key string) int {
	n, err := strconv.Atoi(env(key))
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(env(key))
	return v == "1" || v == "true" || v == "yes"
}

// envDuration accepts Go durations ("250ms") or bare seconds ("5").
func envDuration(key string) (time.Duration, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}
