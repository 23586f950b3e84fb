// Package endpoints selects among ledger node REST endpoints, skipping ones
// that recently failed.
package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opendlt/actionlog/internal/logz"
)

// EndpointHealth tracks the health status of an endpoint
type EndpointHealth struct {
	URL          string
	Healthy      bool
	LastCheck    time.Time
	FailureCount int
	NextRetry    time.Time
	ResponseTime time.Duration
}

// Config holds configuration for the RoundRobin endpoint manager
type Config struct {
	URLs                []string
	HealthPath          string
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	MaxFailures         int
	BackoffDuration     time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		HealthPath:          "/v1",
		HealthCheckInterval: 30 * time.Second,
		HealthCheckTimeout:  5 * time.Second,
		MaxFailures:         3,
		BackoffDuration:     30 * time.Second,
	}
}

// RoundRobin manages round-robin selection of healthy endpoints
type RoundRobin struct {
	mu        sync.Mutex
	endpoints []*EndpointHealth
	current   int
	logger    *logz.Logger
	client    *http.Client

	healthPath          string
	healthCheckInterval time.Duration
	healthCheckTimeout  time.Duration
	maxFailures         int
	backoffDuration     time.Duration

	cancel context.CancelFunc
}

// NewRoundRobin creates a new round-robin endpoint manager over cfg.URLs
func NewRoundRobin(cfg *Config) (*RoundRobin, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	urls := FromStatic(cfg.URLs)
	if len(urls) == 0 {
		return nil, fmt.Errorf("no endpoints configured")
	}

	timeout := cfg.HealthCheckTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().HealthCheckTimeout
	}
	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = DefaultConfig().HealthPath
	}

	rr := &RoundRobin{
		logger:              logz.New(logz.INFO, "endpoints"),
		client:              &http.Client{Timeout: timeout},
		healthPath:          healthPath,
		healthCheckInterval: cfg.HealthCheckInterval,
		healthCheckTimeout:  timeout,
		maxFailures:         cfg.MaxFailures,
		backoffDuration:     cfg.BackoffDuration,
	}
	if rr.maxFailures < 1 {
		rr.maxFailures = 1
	}

	for _, u := range urls {
		rr.endpoints = append(rr.endpoints, &EndpointHealth{URL: u, Healthy: true})
	}

	return rr, nil
}

// Start runs periodic health checks until ctx ends or Stop is called
func (rr *RoundRobin) Start(ctx context.Context) {
	if rr.healthCheckInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	rr.mu.Lock()
	rr.cancel = cancel
	rr.mu.Unlock()

	go rr.healthCheckLoop(ctx)
}

// Stop shuts down background health checks
func (rr *RoundRobin) Stop() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if rr.cancel != nil {
		rr.cancel()
		rr.cancel = nil
	}
}

// Len returns the number of configured endpoints
func (rr *RoundRobin) Len() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return len(rr.endpoints)
}

// Next returns the next healthy endpoint in round-robin fashion. When every
// endpoint is backing off, the one with the fewest failures is returned.
func (rr *RoundRobin) Next() string {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	now := time.Now()
	for attempts := 0; attempts < len(rr.endpoints); attempts++ {
		endpoint := rr.endpoints[rr.current]
		rr.current = (rr.current + 1) % len(rr.endpoints)

		if endpoint.Healthy || now.After(endpoint.NextRetry) {
			return endpoint.URL
		}
	}

	best := rr.endpoints[0]
	for _, endpoint := range rr.endpoints[1:] {
		if endpoint.FailureCount < best.FailureCount {
			best = endpoint
		}
	}
	rr.logger.Warn("No healthy endpoints, using best available: %s", best.URL)
	return best.URL
}

// ReportFailure marks an endpoint as failed
func (rr *RoundRobin) ReportFailure(endpointURL string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	for _, endpoint := range rr.endpoints {
		if endpoint.URL == endpointURL {
			endpoint.FailureCount++
			endpoint.Healthy = false
			if endpoint.FailureCount >= rr.maxFailures {
				endpoint.NextRetry = time.Now().Add(rr.backoffDuration)
			}
			rr.logger.Debug("Endpoint %s marked as failed (failures: %d)", endpointURL, endpoint.FailureCount)
			return
		}
	}
}

// ReportSuccess clears the failure state of an endpoint
func (rr *RoundRobin) ReportSuccess(endpointURL string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	for _, endpoint := range rr.endpoints {
		if endpoint.URL == endpointURL {
			endpoint.Healthy = true
			endpoint.FailureCount = 0
			endpoint.NextRetry = time.Time{}
			return
		}
	}
}

// GetEndpoints returns a snapshot of all endpoints and their health status
func (rr *RoundRobin) GetEndpoints() []EndpointHealth {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	result := make([]EndpointHealth, len(rr.endpoints))
	for i, ep := range rr.endpoints {
		result[i] = *ep
	}
	return result
}

// healthCheckLoop periodically checks the health of all endpoints
func (rr *RoundRobin) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(rr.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rr.CheckAll(ctx)
		}
	}
}

// CheckAll performs one health check on every endpoint not backing off
func (rr *RoundRobin) CheckAll(ctx context.Context) {
	for _, snapshot := range rr.GetEndpoints() {
		if time.Now().Before(snapshot.NextRetry) {
			continue
		}

		healthy, responseTime := rr.checkEndpointHealth(ctx, snapshot.URL)

		rr.mu.Lock()
		for _, endpoint := range rr.endpoints {
			if endpoint.URL != snapshot.URL {
				continue
			}
			endpoint.LastCheck = time.Now()
			endpoint.ResponseTime = responseTime
			if healthy {
				endpoint.Healthy = true
				endpoint.FailureCount = 0
				endpoint.NextRetry = time.Time{}
			} else {
				endpoint.Healthy = false
				endpoint.FailureCount++
				if endpoint.FailureCount >= rr.maxFailures {
					endpoint.NextRetry = time.Now().Add(rr.backoffDuration)
				}
			}
		}
		rr.mu.Unlock()
	}
}

// checkEndpointHealth performs a health check on a single endpoint
func (rr *RoundRobin) checkEndpointHealth(ctx context.Context, endpointURL string) (bool, time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, rr.healthCheckTimeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL+rr.healthPath, nil)
	if err != nil {
		return false, time.Since(start)
	}

	resp, err := rr.client.Do(req)
	if err != nil {
		return false, time.Since(start)
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, time.Since(start)
}

// FromStatic returns the non-empty endpoints without trailing slashes
func FromStatic(endpoints []string) []string {
	var result []string
	for _, endpoint := range endpoints {
		endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
		if endpoint != "" {
			result = append(result, endpoint)
		}
	}
	return result
}
