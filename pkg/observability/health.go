package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"
)

// Pinger is a dependency that can report its own health
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	db       *sql.DB
	redis    *redis.Client
	identity Pinger
	version  string
	timeout  time.Duration
}

// NewHealthChecker creates a new health checker. Any dependency may be nil.
func NewHealthChecker(db *sql.DB, redis *redis.Client, identity Pinger) *HealthChecker {
	return &HealthChecker{
		db:       db,
		redis:    redis,
		identity: identity,
		version:  "dev",
		timeout:  5 * time.Second,
	}
}

// SetVersion sets the version reported by Check
func (h *HealthChecker) SetVersion(version string) {
	h.version = version
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	LatencyMS int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness answers the liveness check (always returns 200 if server is running)
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness returns 503 when a required dependency is unhealthy
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

type dependencyCheck struct {
	name     string
	required bool
	check    func(ctx context.Context) DependencyStatus
}

// Check pings every configured dependency concurrently. The database and the
// identity provider are required; Redis only degrades the status.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	var checks []dependencyCheck
	if h.db != nil {
		checks = append(checks, dependencyCheck{"database", true, h.checkDatabase})
	}
	if h.redis != nil {
		checks = append(checks, dependencyCheck{"redis", false, h.checkRedis})
	}
	if h.identity != nil {
		checks = append(checks, dependencyCheck{"identity", true, h.checkIdentity})
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, c := range checks {
		c := c
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			result := c.check(checkCtx)

			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[c.name] = result
			switch {
			case result.Status == StatusUnhealthy && c.required:
				status.Status = StatusUnhealthy
			case result.Status != StatusHealthy && status.Status != StatusUnhealthy:
				status.Status = StatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()

	return status
}

func newDependencyStatus(start time.Time, err error) DependencyStatus {
	status := DependencyStatus{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Status = StatusUnhealthy
		status.Message = err.Error()
	}
	return status
}

func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	start := time.Now()
	if err := h.db.PingContext(ctx); err != nil {
		return newDependencyStatus(start, err)
	}

	var one int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		status := newDependencyStatus(start, err)
		status.Message = "query failed: " + err.Error()
		return status
	}

	status := newDependencyStatus(start, nil)
	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
		status.Status = StatusDegraded
		status.Message = "connection pool exhausted"
	}
	return status
}

func (h *HealthChecker) checkRedis(ctx context.Context) DependencyStatus {
	start := time.Now()
	return newDependencyStatus(start, h.redis.Ping(ctx).Err())
}

func (h *HealthChecker) checkIdentity(ctx context.Context) DependencyStatus {
	start := time.Now()
	return newDependencyStatus(start, h.identity.Ping(ctx))
}
