package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "point"

// Operation results used as label values.
const (
	ResultOK                  = "ok"
	ResultInvalidAmount       = "invalid_amount"
	ResultAccountNotFound     = "account_not_found"
	ResultAccountExists       = "account_exists"
	ResultInsufficientBalance = "insufficient_balance"
	ResultLimitExceeded       = "limit_exceeded"
	ResultError               = "error"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Ledger
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	LockWaitDuration  prometheus.Histogram

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Relay
	RelayMessagesTotal *prometheus.CounterVec

	reg prometheus.Registerer
}

// New registers all collectors on reg. Use a fresh prometheus.NewRegistry()
// per instance in tests; registering twice on one registry panics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Point operations by kind and result",
			},
			[]string{"op", "result"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of point operations including lock wait",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		LockWaitDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for a user's lock",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RelayMessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_messages_total",
				Help:      "History events handled by the relay, by result",
			},
			[]string{"result"},
		),
		reg: reg,
	}
}

// ObserveLockEntries exposes the number of held user locks, read from fn at scrape time.
func (m *Metrics) ObserveLockEntries(fn func() int) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lock_entries",
			Help:      "User locks currently held",
		},
		func() float64 { return float64(fn()) },
	)
}

// RecordOperation counts one charge, use or open and its latency.
func (m *Metrics) RecordOperation(op, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, result).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *Metrics) RecordLockWait(took time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitDuration.Observe(took.Seconds())
}

// RecordHTTPRequest counts one request by route template.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(took.Seconds())
}

func (m *Metrics) RecordRelay(result string) {
	if m == nil {
		return
	}
	m.RelayMessagesTotal.WithLabelValues(result).Inc()
}
