// Package client talks to a running node's control API over HTTP.  It
// is what the `cli` and `connection up` commands use.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gomyst/internal/api"
	gmerr "gomyst/internal/errors"
	"gomyst/internal/retry"
	"gomyst/util"
)

// Client is a Tequilapi client bound to one base URL.
type Client struct {
	base   string
	http   *http.Client
	logger *util.Logger
}

// New creates a client for baseURL, e.g. "http://127.0.0.1:4050".
func New(baseURL string, logger *util.Logger) *Client {
	return &Client{
		base:   baseURL,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger.Named("client"),
	}
}

// BaseURL returns the URL the client was created with.
func (c *Client) BaseURL() string { return c.base }

// Healthcheck fails unless the node answers /healthcheck with 2xx.
func (c *Client) Healthcheck(ctx context.Context) (*api.HealthcheckResponse, error) {
	var out api.HealthcheckResponse
	if err := c.do(ctx, http.MethodGet, "/healthcheck", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitHealthy polls Healthcheck under policy until it succeeds.
func (c *Client) WaitHealthy(ctx context.Context, policy *retry.Backoff) error {
	return policy.Do(ctx, func(attempt int) error {
		_, err := c.Healthcheck(ctx)
		if err != nil {
			c.logger.Debug("healthcheck attempt %d: %v", attempt, err)
		}
		return err
	})
}

// UpdateTerms records the terms agreement on the node.
func (c *Client) UpdateTerms(ctx context.Context, consumer, provider bool, version string) error {
	req := api.TermsRequest{
		AgreedConsumer: &consumer,
		AgreedProvider: &provider,
		AgreedVersion:  &version,
	}
	return c.do(ctx, http.MethodPost, "/terms", req, nil)
}

// FetchConfig returns the node's configuration as a lookup view.
func (c *Client) FetchConfig(ctx context.Context) (*ConfigView, error) {
	var wrapper struct {
		Data map[string]any `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/config", nil, &wrapper); err != nil {
		return nil, err
	}
	return NewConfigView(wrapper.Data), nil
}

// ImportIdentity uploads a keystore document and makes it the default
// identity.  It returns the identity's address.
func (c *Client) ImportIdentity(ctx context.Context, passphrase, keystoreJSON string) (string, error) {
	req := api.IdentityImportRequest{
		Data:              base64.StdEncoding.EncodeToString([]byte(keystoreJSON)),
		CurrentPassphrase: passphrase,
		SetDefault:        true,
	}
	var out api.IdentityRef
	if err := c.do(ctx, http.MethodPost, "/identities-import", req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CurrentIdentity asks the node to resolve its current identity.
func (c *Client) CurrentIdentity(ctx context.Context) (string, error) {
	var out api.IdentityRef
	if err := c.do(ctx, http.MethodPut, "/identities/current", api.IdentityCurrentRequest{}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Identity fetches one identity's registration record.
func (c *Client) Identity(ctx context.Context, address string) (*api.IdentityInfo, error) {
	var out api.IdentityInfo
	if err := c.do(ctx, http.MethodGet, "/identities/"+url.PathEscape(address), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConnectionStatus reports the connection on proxyPort.
func (c *Client) ConnectionStatus(ctx context.Context, proxyPort int) (*api.ConnectionInfo, error) {
	var out api.ConnectionInfo
	path := "/connection?id=" + strconv.Itoa(proxyPort)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SmartConnectionCreate asks the node to connect to the first usable
// provider in providers.
func (c *Client) SmartConnectionCreate(ctx context.Context, consumerID, hermesID, serviceType string, providers []string, proxyPort int) (*api.ConnectionInfo, error) {
	if providers == nil {
		providers = []string{}
	}
	req := api.ConnectionCreateRequest{
		ConsumerID:  consumerID,
		HermesID:    hermesID,
		ServiceType: serviceType,
		Filter:      api.ConnectionFilter{Providers: providers},
		ConnectOptions: &api.ConnectOptions{
			KillSwitch: false,
			DNS:        "auto",
			ProxyPort:  proxyPort,
		},
	}
	var out api.ConnectionInfo
	if err := c.do(ctx, http.MethodPut, "/connection", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── transport ────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s body: %w", path, err)
		}
		rd = bytes.NewReader(data)
	}

	u := c.base + path
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("%s %s", method, u)
	resp, err := c.http.Do(req)
	if err != nil {
		return gmerr.Wrap(method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &gmerr.HTTPStatusError{Method: method, URL: u, Status: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
