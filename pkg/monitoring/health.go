package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ComponentStatus is the readiness of one backing component or of the service
type ComponentStatus string

const (
	StatusUp       ComponentStatus = "up"
	StatusDegraded ComponentStatus = "degraded"
	StatusDown     ComponentStatus = "down"
)

// severity orders statuses so the report carries the worst one
var severity = map[ComponentStatus]int{StatusUp: 0, StatusDegraded: 1, StatusDown: 2}

// ComponentHealth is the result of checking one component
type ComponentHealth struct {
	Component string                 `json:"component"`
	Status    ComponentStatus        `json:"status"`
	Message   string                 `json:"message,omitempty"`
	LatencyMS int64                  `json:"latency_ms"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthReport is the body served on the health path
type HealthReport struct {
	Service    string            `json:"service"`
	Version    string            `json:"version"`
	Status     ComponentStatus   `json:"status"`
	CheckedAt  time.Time         `json:"checked_at"`
	Components []ComponentHealth `json:"components"`
}

// Check inspects one component
type Check func(ctx context.Context) ComponentHealth

type registeredCheck struct {
	component string
	check     Check
}

// Health runs the store checks registered at startup. Components are reported
// in registration order; registering a component again replaces its check.
type Health struct {
	service string
	version string
	timeout time.Duration

	mu     sync.RWMutex
	checks []registeredCheck
}

// NewHealth creates an empty health registry for the service
func NewHealth(service, version string) *Health {
	return &Health{service: service, version: version, timeout: 3 * time.Second}
}

// Register adds or replaces the check for component
func (h *Health) Register(component string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.checks {
		if h.checks[i].component == component {
			h.checks[i].check = check
			return
		}
	}
	h.checks = append(h.checks, registeredCheck{component: component, check: check})
}

// Report checks every component concurrently, each under its own deadline
func (h *Health) Report(ctx context.Context) *HealthReport {
	h.mu.RLock()
	checks := append([]registeredCheck(nil), h.checks...)
	h.mu.RUnlock()

	report := &HealthReport{
		Service:    h.service,
		Version:    h.version,
		Status:     StatusUp,
		CheckedAt:  time.Now().UTC(),
		Components: make([]ComponentHealth, len(checks)),
	}

	var wg sync.WaitGroup
	for i, p := range checks {
		wg.Add(1)
		go func(i int, p registeredCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			result := p.check(checkCtx)
			result.Component = p.component
			result.LatencyMS = time.Since(start).Milliseconds()
			report.Components[i] = result
		}(i, p)
	}
	wg.Wait()

	for _, c := range report.Components {
		if severity[c.Status] > severity[report.Status] {
			report.Status = c.Status
		}
	}
	return report
}

// Handler serves the report; only a down component turns the answer into 503
func (h *Health) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Report(r.Context())

		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(report)
	}
}

// StoreCheck reports whether the scheduling store answers a ping
func StoreCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("store unreachable: %v", err)}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// PoolCheck pings the PostgreSQL pool and exposes its usage. A pool with every
// connection in use is degraded since bookings will queue behind it.
func PoolCheck(db *sql.DB) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := db.PingContext(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("database unreachable: %v", err)}
		}

		stats := db.Stats()
		result := ComponentHealth{
			Status: StatusUp,
			Details: map[string]interface{}{
				"in_use":           stats.InUse,
				"idle":             stats.Idle,
				"max_open":         stats.MaxOpenConnections,
				"wait_count":       stats.WaitCount,
				"wait_duration_ms": stats.WaitDuration.Milliseconds(),
			},
		}
		if stats.MaxOpenConnections > 0 && stats.InUse >= stats.MaxOpenConnections {
			result.Status = StatusDegraded
			result.Message = "connection pool exhausted"
		}
		return result
	}
}

// BreakerCheck reports the circuit breaker guarding the hosted store. An open
// or half-open breaker sheds requests, so the service is degraded but alive.
func BreakerCheck(state func() string) Check {
	return func(ctx context.Context) ComponentHealth {
		current := state()
		result := ComponentHealth{
			Status:  StatusUp,
			Details: map[string]interface{}{"state": current},
		}
		if current != "closed" {
			result.Status = StatusDegraded
			result.Message = "circuit breaker " + current
		}
		return result
	}
}
