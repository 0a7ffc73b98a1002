package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"videoChat/core"
)

// ContextReporter reports the state of the active context.
type ContextReporter interface {
	Status(ctx context.Context) (core.ContextStatusResponse, error)
}

// CacheReporter exposes cache counters.
type CacheReporter interface {
	Metrics() core.CacheMetrics
}

// MonitoringHandlers 监控相关的HTTP处理器
type MonitoringHandlers struct {
	contexts ContextReporter
	backend  string
	health   *core.HealthMonitor
	cache    CacheReporter
	started  time.Time
}

// NewMonitoringHandlers builds the handlers. health and cache may be nil.
func NewMonitoringHandlers(contexts ContextReporter, backend string, health *core.HealthMonitor, cache CacheReporter) *MonitoringHandlers {
	return &MonitoringHandlers{contexts: contexts, backend: backend, health: health, cache: cache, started: time.Now()}
}

// ContextStatus handles GET /context.
func (h *MonitoringHandlers) ContextStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.contexts.Status(r.Context())
	if err != nil {
		core.WriteFailure(w, "Failed to read context status", err)
		return
	}
	core.WriteJSON(w, http.StatusOK, status)
}

// Ready handles GET /ready: 200 when every dependency check passes, 503
// otherwise.
func (h *MonitoringHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		core.WriteJSON(w, http.StatusOK, core.HealthReport{Status: "ok", Checks: map[string]core.HealthCheck{}})
		return
	}
	report := h.health.Run(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	core.WriteJSON(w, status, report)
}

// Stats handles GET /stats.
func (h *MonitoringHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := map[string]any{
		"store":          h.backend,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"memory": map[string]any{
			"alloc":       m.Alloc,
			"total_alloc": m.TotalAlloc,
			"sys":         m.Sys,
			"num_gc":      m.NumGC,
		},
		"runtime": map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"cpu_count":  runtime.NumCPU(),
			"go_version": runtime.Version(),
		},
	}
	if h.cache != nil {
		stats["metadata_cache"] = h.cache.Metrics()
	}
	core.WriteJSON(w, http.StatusOK, stats)
}
