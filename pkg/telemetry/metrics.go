package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	nodeExecutionCounter metric.Int64Counter
	nodeRetryCounter     metric.Int64Counter
	nodeSkipCounter      metric.Int64Counter
	nodeLatencyHistogram metric.Float64Histogram
	runCounter           metric.Int64Counter
	runLatencyHistogram  metric.Float64Histogram
)

// NodeMetrics captures the fields needed to record node execution telemetry.
type NodeMetrics struct {
	PipelineID string
	SignalID   string
	NodeID     string
	Category   domain.NodeCategory
	Plugin     string
	Status     domain.NodeStatus
	Duration   time.Duration
	Attempts   int
}

// RunMetrics captures the fields needed to record whole-run telemetry.
type RunMetrics struct {
	PipelineID string
	SignalID   string
	Status     domain.RunStatus
	Duration   time.Duration
	Executed   int
	Failed     int
	Skipped    int
}

// RecordNodeMetrics emits counters and histograms describing node execution behaviour.
func RecordNodeMetrics(ctx context.Context, metrics NodeMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("pipeline.id", metrics.PipelineID),
		attribute.String("node.id", metrics.NodeID),
		attribute.String("node.category", string(metrics.Category)),
		attribute.String("node.plugin", metrics.Plugin),
		attribute.String("node.status", string(metrics.Status)),
	}

	nodeExecutionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if metrics.Duration > 0 {
		nodeLatencyHistogram.Record(ctx, float64(metrics.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if metrics.Attempts > 1 {
		nodeRetryCounter.Add(ctx, int64(metrics.Attempts-1), metric.WithAttributes(attrs...))
	}

	if metrics.Status == domain.NodeSkipped {
		nodeSkipCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRunMetrics emits the aggregate counters for one finished run.
func RecordRunMetrics(ctx context.Context, metrics RunMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("pipeline.id", metrics.PipelineID),
		attribute.String("run.status", string(metrics.Status)),
	}

	runCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if metrics.Duration > 0 {
		runLatencyHistogram.Record(ctx, float64(metrics.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("sigflow.pipeline")

		nodeExecutionCounter, metricsInitErr = meter.Int64Counter(
			"sigflow.node.executions_total",
			metric.WithDescription("Pipeline node executions partitioned by status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		nodeRetryCounter, metricsInitErr = meter.Int64Counter(
			"sigflow.node.retries_total",
			metric.WithDescription("Retry attempts performed by pipeline nodes"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		nodeSkipCounter, metricsInitErr = meter.Int64Counter(
			"sigflow.node.skips_total",
			metric.WithDescription("Nodes skipped due to cancellation or failed prerequisites"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		nodeLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"sigflow.node.duration_ms",
			metric.WithDescription("Observed node execution latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		runCounter, metricsInitErr = meter.Int64Counter(
			"sigflow.run.total",
			metric.WithDescription("Pipeline runs partitioned by terminal status"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		runLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"sigflow.run.duration_ms",
			metric.WithDescription("Observed whole-run wall-clock latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
