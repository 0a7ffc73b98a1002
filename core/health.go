package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HealthCheck 单项健康检查
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency int64  `json:"latency_ms"`
}

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthReport is the combined result of all checks.
type HealthReport struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
	// Failing lists the failed checks in name order.
	Failing []string `json:"failing,omitempty"`
}

// Healthy reports whether every check passed.
func (r HealthReport) Healthy() bool { return r.Status == "ok" }

// HealthMonitor runs named dependency checks concurrently, each bounded by
// timeout.
type HealthMonitor struct {
	timeout time.Duration
	mu      sync.RWMutex
	checks  map[string]CheckFunc
}

func NewHealthMonitor(timeout time.Duration) *HealthMonitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthMonitor{timeout: timeout, checks: map[string]CheckFunc{}}
}

// Register adds or replaces a named check.
func (m *HealthMonitor) Register(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// names returns the registered check names in sorted order. Callers hold mu.
func (m *HealthMonitor) names() []string {
	names := make([]string, 0, len(m.checks))
	for n := range m.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes all checks and aggregates them. The overall status is
// "ok" only when every check passed.
func (m *HealthMonitor) Run(ctx context.Context) HealthReport {
	m.mu.RLock()
	names := m.names()
	checks := make([]CheckFunc, len(names))
	for i, n := range names {
		checks[i] = m.checks[n]
	}
	m.mu.RUnlock()

	results := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check CheckFunc) {
			defer wg.Done()
			results[i] = m.runOne(ctx, check)
		}(i, check)
	}
	wg.Wait()

	report := HealthReport{Status: "ok", Checks: make(map[string]HealthCheck, len(names))}
	for i, name := range names {
		report.Checks[name] = results[i]
		if results[i].Status != "ok" {
			report.Status = "degraded"
			report.Failing = append(report.Failing, name)
		}
	}
	return report
}

func (m *HealthMonitor) runOne(ctx context.Context, check CheckFunc) HealthCheck {
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	err := check(cctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthCheck{Status: "error", Message: err.Error(), Latency: latency}
	}
	return HealthCheck{Status: "ok", Latency: latency}
}
