// Package health probes the service's dependencies and reports readiness.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"onboard/pkg/platform/httputil"
)

// Probe checks one dependency. It must respect ctx cancellation.
type Probe func(ctx context.Context) error

// DependencyStatus is the per-dependency entry in the health report.
type DependencyStatus struct {
	Status    string  `json:"status"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// Checker runs all registered probes concurrently under a shared timeout.
type Checker struct {
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	probes map[string]Probe
}

func NewChecker(timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		timeout: timeout,
		logger:  logger,
		probes:  make(map[string]Probe),
	}
}

// Register adds a named probe. Probes registered after the server starts are
// picked up on the next check.
func (c *Checker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Check runs every probe and reports per-dependency results. It returns true
// when all dependencies are healthy. Probe failures are reported, not
// returned: one slow dependency must not hide the status of the others.
func (c *Checker) Check(ctx context.Context) (map[string]DependencyStatus, bool) {
	c.mu.Lock()
	probes := make(map[string]Probe, len(c.probes))
	for name, probe := range c.probes {
		probes[name] = probe
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resultsMu sync.Mutex
	results := make(map[string]DependencyStatus, len(probes))
	healthy := true

	g, ctx := errgroup.WithContext(ctx)
	for name, probe := range probes {
		g.Go(func() error {
			start := time.Now()
			err := probe(ctx)
			status := DependencyStatus{
				Status:    "up",
				LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
			}
			if err != nil {
				status.Status = "down"
				status.Error = err.Error()
			}

			resultsMu.Lock()
			results[name] = status
			if err != nil {
				healthy = false
			}
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results, healthy
}

// Handler serves the readiness report. Unhealthy dependencies turn the
// response into a 503 so load balancers drain the instance.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, healthy := c.Check(r.Context())

		status := http.StatusOK
		overall := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
			c.logger.WarnContext(r.Context(), "health check degraded", "dependencies", results)
		}

		httputil.WriteJSON(w, status, map[string]any{
			"status":       overall,
			"dependencies": results,
		})
	}
}
