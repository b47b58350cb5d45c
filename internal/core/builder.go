package core

import (
	"fmt"
	"io"
	"time"

	"gomyst/config"
	"gomyst/internal/capability"
	"gomyst/internal/client"
	"gomyst/internal/metrics"
	"gomyst/internal/relay"
	"gomyst/internal/retry"
	"gomyst/internal/transport"
	"gomyst/tunnel"
	"gomyst/util"
)

// Build constructs the Mode for cfg.Command.  cfg must already have
// passed Validate.  User-facing output goes to stdout.
func Build(cfg *config.Config, logger *util.Logger, stdout io.Writer) (Mode, error) {
	switch cfg.Command {
	case config.CmdDaemon:
		return &DaemonMode{
			Addr:         cfg.APIAddr(),
			TermsVersion: cfg.TermsVersion,
			Logger:       logger,
		}, nil

	case config.CmdCLI:
		return &CLIMode{
			Client:           client.New(cfg.BaseURL(), logger),
			TermsVersion:     cfg.TermsVersion,
			AgreeTerms:       cfg.AgreedTerms,
			ImportPassphrase: cfg.ImportPassphrase,
			ImportKey:        cfg.ImportKey,
			Wait:             nodeWait(logger),
			Stdout:           stdout,
			Logger:           logger,
		}, nil

	case config.CmdConnectionUp:
		m := &ConnectionUpMode{
			Client:       client.New(cfg.BaseURL(), logger),
			TermsVersion: cfg.TermsVersion,
			AgreeTerms:   cfg.AgreedTerms,
			Providers:    cfg.ProviderList(),
			ProxyPort:    cfg.ProxyPort,
			ServiceType:  cfg.ServiceType,
			Wait:         nodeWait(logger),
			Stdout:       stdout,
			Logger:       logger,
		}
		if cfg.Remote != "" {
			m.Relay = buildRelay(cfg, cfg.ProxyPort, logger)
		}
		return m, nil

	case config.CmdProxy:
		return &ProxyMode{
			Relay:  buildRelay(cfg, cfg.ProxyPort, logger),
			Logger: logger,
		}, nil
	}
	return nil, fmt.Errorf("unknown command %q", cfg.Command)
}

// ── shared helpers ───────────────────────────────────────────────────

// buildRelay wires a relay on port to the dialer and capability cfg
// asks for.
func buildRelay(cfg *config.Config, port int, logger *util.Logger) *relay.Relay {
	dialer := buildDialer(cfg, logger)
	return relay.New(relay.Config{
		LocalPort:   port,
		PollDelay:   cfg.PollDelay,
		GracePeriod: cfg.GracePeriod,
	}, dialer, buildCapability(cfg, dialer), logger, metrics.New())
}

// buildDialer creates the right transport.Dialer for the remote side.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if transport.IsWebSocketURL(cfg.Remote) {
		return &transport.WSDialer{Timeout: cfg.ConnTimeout}
	}

	if cfg.TunnelEnabled {
		d := transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnTimeout,
		}, logger)
		d.Retry = retry.DefaultBackoff()
		d.Retry.OnRetry = func(attempt int, wait time.Duration, err error) {
			logger.Warn("gateway %s attempt %d failed: %v (retrying in %s)",
				cfg.TunnelHost, attempt, err, wait.Round(time.Millisecond))
		}
		return d
	}

	return &transport.TCPDialer{Timeout: cfg.ConnTimeout}
}

// nodeWait rides out a node that was started just before the command.
func nodeWait(logger *util.Logger) *retry.Backoff {
	return &retry.Backoff{
		Initial:    200 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2,
		Attempts:   4,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			logger.Verbose("node not ready (attempt %d): %v", attempt, err)
		},
	}
}

// buildCapability selects the per-session behaviour.
func buildCapability(cfg *config.Config, dialer transport.Dialer) capability.Capability {
	if cfg.SOCKS {
		return &capability.SOCKS{Dialer: dialer}
	}
	return &capability.Forward{Remote: cfg.Remote, Dialer: dialer}
}
