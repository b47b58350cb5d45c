package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gomyst/internal/client"
	"gomyst/internal/relay"
	"gomyst/internal/retry"
	"gomyst/util"
)

// statusNotConnected is the only connection status from which a new
// connection may be created.
const statusNotConnected = "NotConnected"

// ConnectionUpMode walks the node through the checks that precede a
// connection and then creates it.  With a Relay it keeps serving the
// proxy port until ctx is cancelled.
type ConnectionUpMode struct {
	Client       *client.Client
	TermsVersion string
	AgreeTerms   bool
	Providers    []string
	ProxyPort    int
	ServiceType  string

	// Relay is optional.  It is bound before the connection is created
	// so a busy proxy port fails the command early.
	Relay *relay.Relay

	// Wait, if set, retries the initial healthcheck while the node
	// starts.
	Wait *retry.Backoff

	Stdout io.Writer
	Logger *util.Logger
}

// Run performs the connection flow.
func (m *ConnectionUpMode) Run(ctx context.Context) error {
	if m.Relay != nil {
		if err := m.Relay.Bind(); err != nil {
			return err
		}
	}

	if err := m.connect(ctx); err != nil {
		if m.Relay != nil {
			m.Relay.Close() //nolint:errcheck
		}
		return err
	}
	fmt.Fprintln(m.Stdout, "Connected")

	if m.Relay == nil {
		return nil
	}
	m.Logger.Info("relaying %s until interrupted", m.Relay.Addr())
	return m.Relay.Run(ctx)
}

func (m *ConnectionUpMode) connect(ctx context.Context) error {
	if err := nodeUp(ctx, m.Client, m.Wait); err != nil {
		return err
	}

	cfg, err := m.Client.FetchConfig(ctx)
	if err != nil {
		return err
	}
	if m.AgreeTerms {
		if err := m.Client.UpdateTerms(ctx, true, false, m.TermsVersion); err != nil {
			return fmt.Errorf("failed to agree to consumer terms: %w", err)
		}
		if cfg, err = m.Client.FetchConfig(ctx); err != nil {
			return err
		}
	}
	if err := ensureTerms(cfg, m.TermsVersion); err != nil {
		return err
	}

	status, err := m.Client.ConnectionStatus(ctx, m.ProxyPort)
	if err != nil {
		return fmt.Errorf("failed to get connection status: %w", err)
	}
	if status.Status != statusNotConnected {
		return fmt.Errorf("You can't create a new connection, you're in state '%s'", status.Status) //nolint:stylecheck
	}

	consumer, err := m.Client.CurrentIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain current identity: %w", err)
	}
	ident, err := m.Client.Identity(ctx, consumer)
	if err != nil {
		return fmt.Errorf("failed to fetch identity status: %w", err)
	}
	if strings.ToLower(ident.RegistrationStatus) != "registered" {
		return errors.New("Your identity is not registered, please execute `myst account register` first") //nolint:stylecheck
	}

	hermes, err := cfg.HermesID()
	if err != nil {
		return fmt.Errorf("failed to determine hermes id: %w", err)
	}

	providers := cleanProviders(m.Providers)
	if len(providers) == 0 {
		return errors.New("provider id is required")
	}

	m.Logger.Verbose("connecting %s via hermes %s to %v", consumer, hermes, providers)
	if _, err := m.Client.SmartConnectionCreate(ctx, consumer, hermes, m.ServiceType, providers, m.ProxyPort); err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

// ensureTerms fails unless the consumer terms of version want are agreed.
func ensureTerms(cfg *client.ConfigView, want string) error {
	if !cfg.Bool("terms.consumer-agreed") {
		return errors.New("you must agree with consumer terms of use in order to use this command")
	}
	got, _ := cfg.String("terms.version")
	if got != want {
		return fmt.Errorf("you've agreed to terms of use version %s, but version %s is required", got, want)
	}
	return nil
}

func cleanProviders(in []string) []string {
	var out []string
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
