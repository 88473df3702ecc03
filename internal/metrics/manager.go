package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// Manager handles all application metrics
type Manager struct {
	registry   *prometheus.Registry
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time
}

// NewManager creates a new metrics manager backed by its own registry
func NewManager() *Manager {
	registry := prometheus.NewRegistry()

	return &Manager{
		registry:   registry,
		prometheus: NewPrometheusMetrics(registry),
		logger:     utils.ComponentLogger("metrics"),
		startTime:  time.Now(),
	}
}

// GetPrometheusMetrics returns the Prometheus metrics instance. It is nil
// for a nil manager, which keeps call sites free of nil checks.
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	if m == nil {
		return nil
	}
	return m.prometheus
}

// Handler returns the HTTP handler exposing the registry
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// UpdateSystemMetrics updates system-level metrics like memory and goroutines
func (m *Manager) UpdateSystemMetrics() {
	if m == nil {
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.prometheus.UpdateMemoryUsage(memStats.Alloc)
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)
	m.logger.Debug("System metrics updated")
}
