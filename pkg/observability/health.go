package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const probeTimeout = 5 * time.Second

// ProbeFunc checks one dependency. Returning an error built with Degraded
// reports the dependency as degraded rather than unhealthy.
type ProbeFunc func(ctx context.Context) error

type degradedError struct{ msg string }

func (e degradedError) Error() string { return e.msg }

// Degraded marks a probe failure as non-fatal
func Degraded(format string, args ...interface{}) error {
	return degradedError{msg: fmt.Sprintf(format, args...)}
}

type probe struct {
	name     string
	required bool
	check    ProbeFunc
}

// HealthChecker serves liveness and readiness. Readiness fails only when a
// required probe fails; optional probes degrade the report.
type HealthChecker struct {
	version string

	mu     sync.RWMutex
	probes []probe
}

// NewHealthChecker creates a checker with a required Postgres probe and an
// optional Redis probe. Either dependency may be nil.
func NewHealthChecker(db *sql.DB, rdb *redis.Client, version string) *HealthChecker {
	h := &HealthChecker{version: version}
	if db != nil {
		h.AddProbe("postgres", true, postgresProbe(db))
	}
	if rdb != nil {
		h.AddProbe("redis", false, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return h
}

// AddProbe registers a dependency check
func (h *HealthChecker) AddProbe(name string, required bool, check ProbeFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, probe{name: name, required: required, check: check})
}

// HealthStatus is the readiness report
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the result of one probe
type DependencyStatus struct {
	Status    string  `json:"status"`
	Required  bool    `json:"required"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

// Check runs every probe concurrently
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	probes := append([]probe(nil), h.probes...)
	h.mu.RUnlock()

	results := make([]DependencyStatus, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		g.Go(func() error {
			results[i] = runProbe(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	if len(probes) > 0 {
		report.Dependencies = make(map[string]DependencyStatus, len(probes))
	}
	for i, p := range probes {
		res := results[i]
		report.Dependencies[p.name] = res
		report.Status = worse(report.Status, effectiveStatus(res))
	}
	return report
}

// effectiveStatus is the impact of a probe on the overall report
func effectiveStatus(res DependencyStatus) string {
	if res.Status == StatusUnhealthy && !res.Required {
		return StatusDegraded
	}
	return res.Status
}

func worse(a, b string) string {
	rank := map[string]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func runProbe(ctx context.Context, p probe) DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	err := p.check(ctx)
	res := DependencyStatus{
		Status:    StatusHealthy,
		Required:  p.required,
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
	}

	var degraded degradedError
	switch {
	case err == nil:
	case errors.As(err, &degraded):
		res.Status = StatusDegraded
		res.Message = degraded.msg
	default:
		res.Status = StatusUnhealthy
		res.Message = err.Error()
	}
	return res
}

// postgresProbe pings the database and checks the membership schema is
// installed. A saturated pool degrades.
func postgresProbe(db *sql.DB) ProbeFunc {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		var installed bool
		if err := db.QueryRowContext(ctx, "SELECT to_regclass('organization_members') IS NOT NULL").Scan(&installed); err != nil {
			return fmt.Errorf("schema check failed: %w", err)
		}
		if !installed {
			return errors.New("membership schema is not installed")
		}
		if stats := db.Stats(); stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			return Degraded("connection pool exhausted (%d in use)", stats.InUse)
		}
		return nil
	}
}

// Liveness always reports healthy while the process serves requests
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: time.Now().UTC(), Version: h.version})
}

// Readiness returns 503 when a required dependency is unhealthy
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	report := h.Check(r.Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, report)
}

// Probes lists the registered probe names
func (h *HealthChecker) Probes() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.probes))
	for _, p := range h.probes {
		names = append(names, p.name)
	}
	sort.Strings(names)
	return names
}

func writeHealth(w http.ResponseWriter, code int, report HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// RegisterRoutes registers the liveness and readiness probes
func (h *HealthChecker) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/readyz", h.Readiness).Methods(http.MethodGet)
}
