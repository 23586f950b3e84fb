package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure reasons used as the "reason" label of ActionsFailed
const (
	ReasonNetwork     = "network_unavailable"
	ReasonSequence    = "sequence_mismatch"
	ReasonGas         = "insufficient_gas"
	ReasonExpired     = "expired"
	ReasonRejected    = "rejected"
	ReasonInvalid     = "invalid_parameters"
	ReasonSigning     = "signing"
	ReasonTimeout     = "confirmation_timeout"
	ReasonAccount     = "account_not_found"
	ReasonCanceled    = "canceled"
	ReasonUnsupported = "unsupported_argument"
	ReasonOther       = "other"
)

var (
	actionsLogged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "actionlog_actions_logged_total",
		Help: "Total number of actions confirmed on-chain",
	})

	actionsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "actionlog_actions_failed_total",
		Help: "Total number of actions that ended without confirmation, by reason",
	}, []string{"reason"})

	submissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "actionlog_submissions_total",
		Help: "Total number of signed transactions accepted by the node",
	})

	sequenceMismatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "actionlog_sequence_mismatches_total",
		Help: "Total number of submissions rejected for a stale or future sequence number",
	})

	networkRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "actionlog_network_retries_total",
		Help: "Total number of retries after a transient network failure",
	})

	staleSequenceReads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "actionlog_stale_sequence_reads_total",
		Help: "Total number of sequence reads lower than the locally confirmed expectation",
	})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "actionlog_queue_depth",
		Help: "Number of actions waiting for their turn",
	})

	lastSequence = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "actionlog_last_confirmed_sequence",
		Help: "Sequence number of the most recently confirmed transaction",
	})

	confirmationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "actionlog_confirmation_seconds",
		Help:    "Time from submission to a terminal status",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	rpcRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "actionlog_rpc_requests_total",
		Help: "Total number of JSON-RPC requests, by method and outcome",
	}, []string{"method", "outcome"})
)

func init() {
	prometheus.MustRegister(
		actionsLogged,
		actionsFailed,
		submissions,
		sequenceMismatches,
		networkRetries,
		staleSequenceReads,
		queueDepth,
		lastSequence,
		confirmationLatency,
		rpcRequests,
	)
}

// IncrementActionsLogged counts a confirmed action
func IncrementActionsLogged() {
	actionsLogged.Inc()
}

// IncrementActionsFailed counts an action that ended without confirmation
func IncrementActionsFailed(reason string) {
	actionsFailed.WithLabelValues(reason).Inc()
}

// IncrementSubmissions counts a transaction accepted by the node
func IncrementSubmissions() {
	submissions.Inc()
}

// IncrementSequenceMismatches counts a sequence number rejection
func IncrementSequenceMismatches() {
	sequenceMismatches.Inc()
}

// IncrementNetworkRetries counts a retry after a transient failure
func IncrementNetworkRetries() {
	networkRetries.Inc()
}

// IncrementStaleSequenceReads counts a lagging sequence read
func IncrementStaleSequenceReads() {
	staleSequenceReads.Inc()
}

// SetQueueDepth records the number of queued actions
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetLastSequence records the most recently confirmed sequence number
func SetLastSequence(seq uint64) {
	lastSequence.Set(float64(seq))
}

// ObserveConfirmation records submission-to-terminal latency
func ObserveConfirmation(d time.Duration) {
	confirmationLatency.Observe(d.Seconds())
}

// IncrementRPCRequests counts a JSON-RPC request
func IncrementRPCRequests(method string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	rpcRequests.WithLabelValues(method, outcome).Inc()
}

// PrometheusHandler returns the scrape handler for the default registry
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}
