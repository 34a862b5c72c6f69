package ingress

import (
	"context"
	"testing"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

func TestExtractPricesCoercions(t *testing.T) {
	cases := []struct {
		name string
		raw  any
		want []float64
	}{
		{"float64 slice", []float64{1.5, 2.5}, []float64{1.5, 2.5}},
		{"any slice of floats", []any{1.5, 2.5}, []float64{1.5, 2.5}},
		{"any slice of ints", []any{1, 2}, []float64{1, 2}},
		{"any slice of int64", []any{int64(3), int64(4)}, []float64{3, 4}},
		{"mixed numerics", []any{1, 2.5, int64(3)}, []float64{1, 2.5, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractPrices(tc.raw)
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("length mismatch: got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("element %d: got %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestExtractPricesRejectsBadSeries(t *testing.T) {
	cases := []struct {
		name string
		raw  any
	}{
		{"nil", nil},
		{"string element", []any{1.0, "two"}},
		{"scalar", 42.0},
		{"map", map[string]any{"p": 1.0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ExtractPrices(tc.raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMarketDataExecute(t *testing.T) {
	plugin := NewMarketData()
	state := domain.NewPipelineState("sig-1", map[string]any{
		"prices": []any{100.0, 101.5, 99.8},
		"symbol": "AAPL",
	})

	out, err := plugin.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	raw, ok := out.Output(domain.PluginMarketData)
	if !ok {
		t.Fatal("market data output missing")
	}
	payload := raw.(map[string]any)
	prices := payload["prices"].([]float64)
	if len(prices) != 3 || prices[0] != 100.0 {
		t.Fatalf("unexpected prices: %v", prices)
	}
	if payload["symbol"] != "AAPL" {
		t.Fatalf("symbol not carried: %v", payload)
	}
	if _, present := payload["as_of"]; !present {
		t.Fatal("as_of timestamp missing")
	}
}

func TestMarketDataRejectsEmptySeries(t *testing.T) {
	plugin := NewMarketData()

	state := domain.NewPipelineState("sig-2", map[string]any{"prices": []any{}})
	if _, err := plugin.Execute(context.Background(), state); err == nil {
		t.Fatal("expected error for empty series")
	}

	state = domain.NewPipelineState("sig-3", map[string]any{})
	if _, err := plugin.Execute(context.Background(), state); err == nil {
		t.Fatal("expected error for missing series")
	}
}

func TestSignalIngressExecute(t *testing.T) {
	plugin := NewSignalIngress()
	state := domain.NewPipelineState("sig-4", map[string]any{"symbol": "AAPL", "side": "buy"})

	out, err := plugin.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	raw, ok := out.Output(domain.PluginSignalIngress)
	if !ok {
		t.Fatal("signal ingress output missing")
	}
	payload := raw.(map[string]any)
	if payload["signal_id"] != "sig-4" {
		t.Fatalf("unexpected signal id: %v", payload)
	}
	if payload["field_count"] != 2 {
		t.Fatalf("unexpected field count: %v", payload["field_count"])
	}
}

func TestSignalIngressValidation(t *testing.T) {
	plugin := NewSignalIngress()

	if _, err := plugin.Execute(context.Background(),
		domain.NewPipelineState("", map[string]any{"x": 1})); err == nil {
		t.Fatal("expected error for missing signal id")
	}
	if _, err := plugin.Execute(context.Background(),
		domain.NewPipelineState("sig-5", nil)); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
