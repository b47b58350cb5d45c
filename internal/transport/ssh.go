package transport

import (
	"context"
	"net"
	"sync"

	gmerr "gomyst/internal/errors"
	"gomyst/internal/retry"
	"gomyst/tunnel"
	"gomyst/util"
)

// SSHDialer routes connections through an SSH gateway.  The gateway is
// connected on the first Dial and reconnected on a later Dial if the
// connection has dropped in between.
type SSHDialer struct {
	config *tunnel.SSHConfig
	logger *util.Logger

	// Retry governs gateway connection attempts; nil means one try.
	// Authentication and handshake failures are never retried.
	Retry *retry.Backoff

	mu  sync.Mutex
	tun *tunnel.SSHTunnel
}

// NewSSHDialer creates a dialer for the gateway described by cfg.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{config: cfg, logger: logger}
}

func (d *SSHDialer) ensure(ctx context.Context) (*tunnel.SSHTunnel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tun != nil && d.tun.IsAlive() {
		return d.tun, nil
	}
	if d.tun != nil {
		d.logger.Warn("SSH gateway %s@%s went away, reconnecting", d.config.User, d.config.Host)
		d.tun.Close() //nolint:errcheck
	}

	tun := tunnel.NewSSHTunnel(d.config, d.logger)
	var err error
	if d.Retry == nil {
		err = tun.Connect(ctx)
	} else {
		err = d.Retry.Do(ctx, func(int) error {
			err := tun.Connect(ctx)
			var se *gmerr.SSHError
			if gmerr.As(err, &se) {
				return retry.Permanent(err)
			}
			return err
		})
	}
	if err != nil {
		return nil, err
	}
	d.tun = tun
	return tun, nil
}

// Dial connects to address through the gateway.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	tun, err := d.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return tun.Dial(ctx, network, address)
}

// Close tears down the gateway connection.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tun == nil {
		return nil
	}
	err := d.tun.Close()
	d.tun = nil
	return err
}
