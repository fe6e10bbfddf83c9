package obs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paycore.org/internal/engine"
)

// HTTP metrics and readiness gauge.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paycore_ready",
		Help: "Readiness state (1 when ready).",
	})
)

// Engine metrics.
var (
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paycore_transactions_total",
			Help: "Records applied, by record type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	suppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paycore_suppressed_errors_total",
			Help: "Records skipped by the error policy, by error kind.",
		},
		[]string{"kind"},
	)

	accountsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paycore_accounts",
		Help: "Accounts known to the registry.",
	})

	lockedAccountsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "paycore_locked_accounts",
		Help: "Accounts frozen by a chargeback.",
	})
)

func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
		transactionsTotal, suppressedTotal, accountsGauge, lockedAccountsGauge,
	)
	readyGauge.Set(0)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTransaction records the result of one applied record.
func ObserveTransaction(typ engine.RecordType, outcome engine.Outcome) {
	transactionsTotal.WithLabelValues(typ.String(), outcome.String()).Inc()
}

// ObserveSuppressed records a skipped record.
func ObserveSuppressed(err error) {
	switch {
	case errors.Is(err, engine.ErrInsufficientFunds):
		suppressedTotal.WithLabelValues("insufficient_funds").Inc()
	case errors.Is(err, engine.ErrNoTransactionFound):
		suppressedTotal.WithLabelValues("transaction_not_found").Inc()
	default:
		suppressedTotal.WithLabelValues("other").Inc()
	}
}

// SetRegistrySize refreshes the account gauges.
func SetRegistrySize(accounts, locked int) {
	accountsGauge.Set(float64(accounts))
	lockedAccountsGauge.Set(float64(locked))
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	switch path {
	case "/", "/metrics", "/healthz", "/readyz", "/v1/info", "/v1/stream":
		return path
	}
	if strings.HasPrefix(path, "/v1/accounts/") {
		rest := strings.TrimPrefix(path, "/v1/accounts/")
		if !strings.Contains(rest, "/") {
			return "/v1/accounts/:client"
		}
	}
	if strings.HasPrefix(path, "/v1/transactions") {
		return "/v1/transactions"
	}
	if strings.HasPrefix(path, "/v1/batches") {
		return "/v1/batches"
	}
	return path
}

func SetReady(state bool) {
	if state {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
