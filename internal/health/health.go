package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/opendlt/actionlog/sequencer"
)

// HealthStatus represents the health status response
type HealthStatus struct {
	OK           bool      `json:"ok"`
	Account      string    `json:"account,omitempty"`
	QueueDepth   int       `json:"queue_depth"`
	NextSequence *uint64   `json:"next_sequence,omitempty"`
	Logged       uint64    `json:"logged"`
	Failed       uint64    `json:"failed"`
	SuccessRate  *float64  `json:"success_rate,omitempty"`
	LastHash     string    `json:"last_hash,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Node         string    `json:"node"`
	Timestamp    time.Time `json:"timestamp"`
	Uptime       string    `json:"uptime"`
}

// StatsSource reports orchestrator statistics
type StatsSource interface {
	Stats() *sequencer.Stats
}

// NodeChecker checks that the ledger node answers
type NodeChecker interface {
	IsHealthy(ctx context.Context) error
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	stats     StatsSource
	node      NodeChecker
	timeout   time.Duration
	startTime time.Time
}

// NewHealthChecker creates a new health checker. node may be nil, in which
// case the node is not checked.
func NewHealthChecker(stats StatsSource, node NodeChecker) *HealthChecker {
	return &HealthChecker{
		stats:     stats,
		node:      node,
		timeout:   3 * time.Second,
		startTime: time.Now(),
	}
}

// Handler returns an HTTP handler for /healthz endpoint
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, hc.GetStatus(r.Context()), func(s *HealthStatus) bool { return s.OK })
	}
}

// GetStatus returns the current health status
func (hc *HealthChecker) GetStatus(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Node:      "unchecked",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(hc.startTime).String(),
	}

	if hc.stats != nil {
		stats := hc.stats.Stats()
		status.OK = stats.Running
		status.Account = stats.Account
		status.QueueDepth = stats.QueueDepth
		status.Logged = stats.Logged
		status.Failed = stats.Failed
		status.LastHash = stats.LastHash
		status.LastError = stats.LastError
		if stats.SequenceKnown {
			next := stats.NextSequence
			status.NextSequence = &next
		}
		if total := stats.Logged + stats.Failed; total > 0 {
			rate := float64(stats.Logged) / float64(total)
			status.SuccessRate = &rate
		}
	}

	if hc.node != nil {
		ctx, cancel := context.WithTimeout(ctx, hc.timeout)
		defer cancel()
		if err := hc.node.IsHealthy(ctx); err != nil {
			status.OK = false
			status.Node = err.Error()
		} else {
			status.Node = "ok"
		}
	}

	return status
}

// ReadinessHandler returns a readiness check handler. The daemon is ready
// once the orchestrator runs and the node answers.
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := hc.GetStatus(r.Context())
		response := map[string]interface{}{
			"ready":     status.OK,
			"node":      status.Node,
			"timestamp": status.Timestamp.Format(time.RFC3339),
		}
		writeJSON(w, response, func(map[string]interface{}) bool { return status.OK })
	}
}

// LivenessHandler returns a liveness check handler
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Simple liveness check - if we can respond, we're alive
		response := map[string]interface{}{
			"alive":     true,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		writeJSON(w, response, func(map[string]interface{}) bool { return true })
	}
}

// Register mounts the health endpoints on mux
func (hc *HealthChecker) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", hc.Handler())
	mux.HandleFunc("/readyz", hc.ReadinessHandler())
	mux.HandleFunc("/livez", LivenessHandler())
}

func writeJSON[T any](w http.ResponseWriter, body T, ok func(T) bool) {
	w.Header().Set("Content-Type", "application/json")

	if ok(body) {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(body)
}
