// Package health reports the state of a mining run's dependencies on the
// metrics server. Mirrors are registered as non-critical: their failure
// degrades the report but does not mark the run down.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes one component. It must not block past ctx.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Critical bool   `json:"critical"`
	Latency  string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registration struct {
	name     string
	check    Check
	critical bool
}

type Checker struct {
	mu     sync.RWMutex
	checks []registration
}

func NewChecker() *Checker {
	return &Checker{}
}

// Register adds a named check. Registering a name twice replaces it.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.checks {
		if c.checks[i].name == name {
			c.checks[i] = registration{name, check, critical}
			return
		}
	}
	c.checks = append(c.checks, registration{name, check, critical})
}

// Run executes every check concurrently. The report is down if any critical
// component is down, degraded if anything else is not up.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := append([]registration(nil), c.checks...)
	c.mu.RUnlock()

	results := make([]ComponentHealth, len(checks))
	var g errgroup.Group
	for i, reg := range checks {
		g.Go(func() error {
			start := time.Now()
			res := reg.check(ctx)
			res.Critical = reg.critical
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			results[i] = res
			return nil
		})
	}
	g.Wait()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	for i, reg := range checks {
		res := results[i]
		report.Components[reg.name] = res
		switch {
		case res.Status == StatusDown && res.Critical:
			report.Status = StatusDown
		case res.Status != StatusUp && report.Status == StatusUp:
			report.Status = StatusDegraded
		}
	}
	return report
}

// Names lists registered checks in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.checks))
	for i, reg := range c.checks {
		names[i] = reg.name
	}
	sort.Strings(names)
	return names
}

// Handler serves the report as JSON, with 503 when the run is down.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
