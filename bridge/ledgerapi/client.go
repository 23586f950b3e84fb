// Package ledgerapi is a client for the ledger node REST API: account
// sequence numbers, transaction submission and confirmation polling.
package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opendlt/actionlog/internal/endpoints"
	"github.com/opendlt/actionlog/internal/logz"
)

const (
	contentTypeJSON     = "application/json"
	contentTypeSignedTx = "application/x.aptos.signed_transaction+bcs"

	// maxErrorBody bounds how much of an error response is read
	maxErrorBody = 64 << 10
)

// Client represents a ledger node REST client
type Client struct {
	endpoints *endpoints.RoundRobin
	http      *http.Client
	config    *ClientConfig
	logger    *logz.Logger
}

// ClientConfig defines configuration for the node client
type ClientConfig struct {
	// Node base URLs, e.g. https://fullnode.testnet.aptoslabs.com
	Endpoints []string
	// HTTP client timeout per request
	Timeout time.Duration
	// Additional attempts on another endpoint after a transport failure
	MaxRetries int
	// Delay between failover attempts
	RetryDelay time.Duration
	// User agent string
	UserAgent string
	// Enable debug logging
	Debug bool
}

// DefaultClientConfig returns a default client configuration. Failover tries
// each endpoint once; backoff across attempts belongs to the caller.
func DefaultClientConfig(endpointURLs ...string) *ClientConfig {
	retries := len(endpointURLs) - 1
	if retries < 0 {
		retries = 0
	}
	return &ClientConfig{
		Endpoints:  endpointURLs,
		Timeout:    15 * time.Second,
		MaxRetries: retries,
		RetryDelay: 200 * time.Millisecond,
		UserAgent:  "actionlog/1.0",
	}
}

// NewClient creates a new node client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("client config cannot be nil")
	}

	epCfg := endpoints.DefaultConfig()
	epCfg.URLs = config.Endpoints
	epCfg.MaxFailures = 1
	rr, err := endpoints.NewRoundRobin(epCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoints: %w", err)
	}

	level := logz.INFO
	if config.Debug {
		level = logz.DEBUG
	}

	return &Client{
		endpoints: rr,
		http:      &http.Client{Timeout: config.Timeout},
		config:    config,
		logger:    logz.New(level, "ledgerapi"),
	}, nil
}

// Endpoints exposes the endpoint manager, e.g. to start background health checks
func (c *Client) Endpoints() *endpoints.RoundRobin {
	return c.endpoints
}

// GetEndpoint returns the endpoint the next request will use
func (c *Client) GetEndpoint() string {
	return c.endpoints.Next()
}

// executeWithRetry runs fn against successive endpoints while it fails with
// ErrNetworkUnavailable, up to MaxRetries additional attempts
func (c *Client) executeWithRetry(ctx context.Context, fn func(base string) error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		base := c.endpoints.Next()
		err := fn(base)
		if err == nil {
			c.endpoints.ReportSuccess(base)
			return nil
		}

		lastErr = err
		if !c.shouldRetry(ctx, err) {
			break
		}

		c.endpoints.ReportFailure(base)
		c.logger.Debug("Request to %s failed (attempt %d/%d): %v", base, attempt+1, c.config.MaxRetries+1, err)
	}

	return lastErr
}

// shouldRetry determines if an error should trigger failover
func (c *Client) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return IsRetryable(err)
}

// do performs one request and decodes a JSON response into out
func (c *Client) do(ctx context.Context, base, method, path string, body []byte, contentType string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", contentTypeJSON)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return unavailable(base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(base, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return unavailable(base, err)
		}
		return fmt.Errorf("failed to decode response from %s%s: %w", base, path, err)
	}
	return nil
}

func decodeAPIError(base string, resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Endpoint: base}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(data) > 0 {
		if err := json.Unmarshal(data, apiErr); err != nil {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	return apiErr
}

// Close releases idle connections and stops endpoint health checks
func (c *Client) Close() error {
	c.endpoints.Stop()
	c.http.CloseIdleConnections()
	return nil
}
