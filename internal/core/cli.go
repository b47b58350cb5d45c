package core

import (
	"context"
	"fmt"
	"io"

	"gomyst/internal/client"
	"gomyst/internal/keystore"
	"gomyst/internal/retry"
	"gomyst/util"
)

// CLIMode performs the one-shot `cli` actions against a running node:
// accepting the terms of use and importing an identity.
type CLIMode struct {
	Client       *client.Client
	TermsVersion string
	AgreeTerms   bool

	// ImportKey holds the raw keystore arguments; empty skips the import.
	ImportPassphrase string
	ImportKey        []string

	// Wait, if set, retries the initial healthcheck while the node
	// starts.  Nil checks once.
	Wait *retry.Backoff

	Stdout io.Writer
	Logger *util.Logger
}

// Run checks the node is up, then applies the requested actions.
func (m *CLIMode) Run(ctx context.Context) error {
	if err := nodeUp(ctx, m.Client, m.Wait); err != nil {
		return err
	}

	if m.AgreeTerms {
		if err := m.Client.UpdateTerms(ctx, true, true, m.TermsVersion); err != nil {
			return fmt.Errorf("failed to agree to terms: %w", err)
		}
		fmt.Fprintln(m.Stdout, "Terms of use accepted.")
	}

	if len(m.ImportKey) == 0 {
		return nil
	}

	doc, err := keystore.Resolve(m.ImportKey)
	if err != nil {
		return fmt.Errorf("failed to parse identity key argument: %w", err)
	}
	m.Logger.Debug("importing keystore of %d bytes", len(doc))

	addr, err := m.Client.ImportIdentity(ctx, m.ImportPassphrase, doc)
	if err != nil {
		return fmt.Errorf("failed to import identity: %w", err)
	}
	fmt.Fprintf(m.Stdout, "Identity imported: %s\n", addr)
	return nil
}

// nodeUp checks the node once, or polls it under wait.
func nodeUp(ctx context.Context, c *client.Client, wait *retry.Backoff) error {
	if wait == nil {
		_, err := c.Healthcheck(ctx)
		return err
	}
	return c.WaitHealthy(ctx, wait)
}
