package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

// ServerMetrics holds the Prometheus metrics exposed by the serving surface.
type ServerMetrics struct {
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	nodesTotal    *prometheus.CounterVec
	runsActive    prometheus.Gauge
	httpTotal     *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	configReloads *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewServerMetrics creates a metrics instance with its own registry.
func NewServerMetrics() *ServerMetrics {
	registry := prometheus.NewRegistry()

	m := &ServerMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigflow_runs_total",
				Help: "Total number of pipeline runs by pipeline and terminal status",
			},
			[]string{"pipeline_id", "status"},
		),

		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigflow_run_duration_seconds",
				Help:    "Pipeline run wall-clock duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pipeline_id"},
		),

		nodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigflow_nodes_total",
				Help: "Total number of node executions by status",
			},
			[]string{"pipeline_id", "status"},
		),

		runsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigflow_runs_active",
				Help: "Number of currently executing pipeline runs",
			},
		),

		httpTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigflow_http_requests_total",
				Help: "Total HTTP requests by path and status code",
			},
			[]string{"path", "code"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigflow_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigflow_config_reloads_total",
				Help: "Configuration reloads by result",
			},
			[]string{"result"},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.nodesTotal,
		m.runsActive,
		m.httpTotal,
		m.httpDuration,
		m.configReloads,
	)

	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunStarted increments the active-run gauge.
func (m *ServerMetrics) RunStarted() {
	m.runsActive.Inc()
}

// RunFinished records a finished run and its node counts.
func (m *ServerMetrics) RunFinished(pipelineID string, status domain.RunStatus, duration time.Duration, nodeStatuses map[domain.NodeStatus]int) {
	m.runsActive.Dec()
	m.runsTotal.WithLabelValues(pipelineID, string(status)).Inc()
	m.runDuration.WithLabelValues(pipelineID).Observe(duration.Seconds())
	for nodeStatus, count := range nodeStatuses {
		m.nodesTotal.WithLabelValues(pipelineID, string(nodeStatus)).Add(float64(count))
	}
}

// HTTPRequest records one served HTTP request.
func (m *ServerMetrics) HTTPRequest(path, code string, duration time.Duration) {
	m.httpTotal.WithLabelValues(path, code).Inc()
	m.httpDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// ConfigReload records the outcome of a configuration reload.
func (m *ServerMetrics) ConfigReload(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	m.configReloads.WithLabelValues(result).Inc()
}
