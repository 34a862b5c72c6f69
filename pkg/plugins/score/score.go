// Package score provides the composite-score aggregation plugin. It is the
// canonical DependencyExpander: it must run after every other enabled node.
package score

import (
	"context"
	"fmt"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

// Score folds the indicator outputs into a single signal score in [-1, 1].
// Indicators that did not run simply contribute nothing; the score reports
// which components it saw.
type Score struct{}

// NewScore constructs the aggregation plugin.
func NewScore() *Score { return &Score{} }

func (p *Score) ID() string                    { return "score" }
func (p *Score) Category() domain.NodeCategory { return domain.CategoryEnrichment }
func (p *Score) PluginName() string            { return "score" }
func (p *Score) Parallel() bool                { return false }
func (p *Score) Dependencies() []string        { return nil }

// ExpandDependencies orders the score after every other enabled node.
func (p *Score) ExpandDependencies(enabledIDs []string) []string {
	deps := make([]string, 0, len(enabledIDs))
	for _, id := range enabledIDs {
		if id == p.ID() {
			continue
		}
		deps = append(deps, id)
	}
	return deps
}

func (p *Score) Execute(_ context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	var total, weight float64
	var components []string

	if rsi, ok := indicatorValue(state, "rsi", "value"); ok {
		// RSI 50 is neutral; map [0,100] onto [1,-1] (oversold is bullish).
		total += (50.0 - rsi) / 50.0
		weight++
		components = append(components, "rsi")
	}

	if rate, ok := indicatorValue(state, "momentum", "rate"); ok {
		total += clamp(rate*10.0, -1.0, 1.0)
		weight++
		components = append(components, "momentum")
	}

	if sma, ok := indicatorValue(state, "sma", "value"); ok && sma != 0 {
		if last, ok := lastPrice(state); ok {
			total += clamp((last-sma)/sma*10.0, -1.0, 1.0)
			weight++
			components = append(components, "sma")
		}
	}

	if weight == 0 {
		return nil, fmt.Errorf("score: no indicator outputs available")
	}

	state.SetOutput(p.ID(), map[string]any{
		"value":      total / weight,
		"components": components,
	})
	return state, nil
}

func indicatorValue(state *domain.PipelineState, nodeID, field string) (float64, bool) {
	out, ok := state.Output(nodeID)
	if !ok {
		return 0, false
	}
	payload, ok := out.(map[string]any)
	if !ok {
		return 0, false
	}
	value, ok := payload[field].(float64)
	return value, ok
}

func lastPrice(state *domain.PipelineState) (float64, bool) {
	out, ok := state.Output(domain.PluginMarketData)
	if !ok {
		return 0, false
	}
	payload, ok := out.(map[string]any)
	if !ok {
		return 0, false
	}
	prices, ok := payload["prices"].([]float64)
	if !ok || len(prices) == 0 {
		return 0, false
	}
	return prices[len(prices)-1], true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
