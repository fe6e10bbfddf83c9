package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"paycore.org/internal/audit"
	"paycore.org/internal/engine"
	"paycore.org/internal/obs"
	"paycore.org/internal/stream"
)

const serviceName = "paycore-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe performs a basic readiness check (for example, database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API implements the HTTP layer over a shared account registry.
type API struct {
	mux         *http.ServeMux
	readiness   readinessChecker
	version     string
	registry    *engine.Registry
	stream      *stream.Stream
	bodyMaxSize int64
	rateBurst   int
	ratePerSec  int
}

func New(r readinessChecker, version string, registry *engine.Registry, s *stream.Stream) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readiness:   r,
		version:     version,
		registry:    registry,
		stream:      s,
		bodyMaxSize: 8 << 20, // batch uploads are CSV bodies
		rateBurst:   400,
		ratePerSec:  200,
	}

	a.rateBurst = envInt("PAYCORE_RATE_LIMIT_BURST", a.rateBurst)
	a.ratePerSec = envInt("PAYCORE_RATE_LIMIT_RPS", a.ratePerSec)

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Account snapshots
	a.mux.HandleFunc("/v1/accounts", a.handleAccountsCollection)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)

	// Transaction ingestion
	a.mux.Handle("/v1/transactions", RequireRole("operator")(http.HandlerFunc(a.handleTransactions)))
	a.mux.Handle("/v1/batches", RequireRole("operator")(http.HandlerFunc(a.handleBatches)))

	// Streaming endpoint (SSE)
	a.mux.HandleFunc("/v1/stream", a.Stream)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	return a
}

// Handler returns the HTTP handler fully wrapped with middlewares.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.bodyMaxSize)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Recover(h)
	h = a.withAuth(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readiness.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     serviceName,
		"time":     time.Now().UTC().Format(time.RFC3339),
		"version":  a.version,
		"accounts": a.registry.Size(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, code, body)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func envInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return def
	}
	return val
}

func (a *API) audit(ctx context.Context, action string, fields map[string]any) {
	if err := audit.LogEvent(ctx, action, fields); err != nil {
		obs.LogRequest(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "audit_log_failed",
			"event": action,
			"error": err.Error(),
		})
	}
}
