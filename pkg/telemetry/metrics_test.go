package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

func setupMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		ResetMetricsForTest()
	})

	ResetMetricsForTest()
	return reader
}

func readMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}
	return metrics
}

func TestRecordNodeMetrics(t *testing.T) {
	reader := setupMeter(t)

	RecordNodeMetrics(context.Background(), NodeMetrics{
		PipelineID: "pipeline-123",
		SignalID:   "sig-abc",
		NodeID:     "rsi_14",
		Category:   domain.CategoryEnrichment,
		Plugin:     "rsi",
		Status:     domain.NodeCompleted,
		Duration:   150 * time.Millisecond,
		Attempts:   3,
	})

	metrics := readMetrics(t, reader)

	sumExec, ok := metrics["sigflow.node.executions_total"]
	if !ok {
		t.Fatal("missing executions metric")
	}
	execData, ok := sumExec.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("unexpected data type for executions metric")
	}
	if len(execData.DataPoints) != 1 || execData.DataPoints[0].Value != 1 {
		t.Fatalf("expected single execution datapoint of 1, got %+v", execData.DataPoints)
	}
	if value, ok := execData.DataPoints[0].Attributes.Value(attribute.Key("node.plugin")); !ok || value.AsString() != "rsi" {
		t.Fatalf("expected node.plugin attribute rsi, got %v", value)
	}
	if value, ok := execData.DataPoints[0].Attributes.Value(attribute.Key("node.status")); !ok || value.AsString() != "completed" {
		t.Fatalf("expected node.status attribute completed, got %v", value)
	}

	sumRetry, ok := metrics["sigflow.node.retries_total"]
	if !ok {
		t.Fatal("missing retries metric")
	}
	retryData := sumRetry.Data.(metricdata.Sum[int64])
	// Attempts=3 means 2 retries beyond the first attempt.
	if retryData.DataPoints[0].Value != 2 {
		t.Fatalf("expected retry count 2, got %d", retryData.DataPoints[0].Value)
	}

	hist, ok := metrics["sigflow.node.duration_ms"]
	if !ok {
		t.Fatal("missing duration metric")
	}
	histData := hist.Data.(metricdata.Histogram[float64])
	if histData.DataPoints[0].Count != 1 {
		t.Fatalf("expected histogram count 1, got %d", histData.DataPoints[0].Count)
	}
	if histData.DataPoints[0].Sum != 150 {
		t.Fatalf("expected histogram sum 150, got %v", histData.DataPoints[0].Sum)
	}
}

func TestRecordNodeMetricsSkipCounter(t *testing.T) {
	reader := setupMeter(t)

	RecordNodeMetrics(context.Background(), NodeMetrics{
		PipelineID: "pipeline-123",
		NodeID:     "score",
		Category:   domain.CategoryEnrichment,
		Plugin:     "score",
		Status:     domain.NodeSkipped,
	})

	metrics := readMetrics(t, reader)

	sumSkip, ok := metrics["sigflow.node.skips_total"]
	if !ok {
		t.Fatal("missing skips metric")
	}
	skipData := sumSkip.Data.(metricdata.Sum[int64])
	if skipData.DataPoints[0].Value != 1 {
		t.Fatalf("expected skip count 1, got %d", skipData.DataPoints[0].Value)
	}

	if _, present := metrics["sigflow.node.duration_ms"]; present {
		t.Fatal("zero-duration skip must not record latency")
	}
}

func TestRecordRunMetrics(t *testing.T) {
	reader := setupMeter(t)

	RecordRunMetrics(context.Background(), RunMetrics{
		PipelineID: "pipeline-123",
		SignalID:   "sig-abc",
		Status:     domain.RunCompleted,
		Duration:   400 * time.Millisecond,
		Executed:   5,
		Failed:     1,
		Skipped:    2,
	})

	metrics := readMetrics(t, reader)

	runTotal, ok := metrics["sigflow.run.total"]
	if !ok {
		t.Fatal("missing run counter")
	}
	runData := runTotal.Data.(metricdata.Sum[int64])
	if runData.DataPoints[0].Value != 1 {
		t.Fatalf("expected run count 1, got %d", runData.DataPoints[0].Value)
	}
	if value, ok := runData.DataPoints[0].Attributes.Value(attribute.Key("run.status")); !ok || value.AsString() != "completed" {
		t.Fatalf("expected run.status completed, got %v", value)
	}

	hist, ok := metrics["sigflow.run.duration_ms"]
	if !ok {
		t.Fatal("missing run latency metric")
	}
	histData := hist.Data.(metricdata.Histogram[float64])
	if histData.DataPoints[0].Sum != 400 {
		t.Fatalf("expected latency sum 400, got %v", histData.DataPoints[0].Sum)
	}
}
