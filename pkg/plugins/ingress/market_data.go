// Package ingress provides the signal-source plugins: the independent
// market-data source and the signal intake stage.
package ingress

import (
	"context"
	"fmt"
	"time"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

// MarketData is the independent-source plugin. It never declares
// dependencies; the graph builder rejects configurations that try to give it
// any.
type MarketData struct{}

// NewMarketData constructs the market-data source plugin.
func NewMarketData() *MarketData { return &MarketData{} }

func (p *MarketData) ID() string                    { return domain.PluginMarketData }
func (p *MarketData) Category() domain.NodeCategory { return domain.CategoryIngress }
func (p *MarketData) PluginName() string            { return domain.PluginMarketData }
func (p *MarketData) Parallel() bool                { return true }
func (p *MarketData) Dependencies() []string        { return nil }

// Execute normalizes the raw price series into the node output. The series
// arrives in the raw payload under "prices"; symbols without one fail the node.
func (p *MarketData) Execute(_ context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	prices, err := ExtractPrices(state.Raw["prices"])
	if err != nil {
		return nil, fmt.Errorf("market data: %w", err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("market data: empty price series for signal %q", state.SignalID)
	}

	out := map[string]any{
		"prices": prices,
		"as_of":  time.Now().UTC(),
	}
	if symbol, ok := state.Raw["symbol"].(string); ok {
		out["symbol"] = symbol
	}
	state.SetOutput(domain.PluginMarketData, out)
	return state, nil
}

// ExtractPrices coerces a decoded price series into []float64. JSON and YAML
// decoders hand back []any with float64, int or json.Number-like values.
func ExtractPrices(raw any) ([]float64, error) {
	switch series := raw.(type) {
	case nil:
		return nil, fmt.Errorf("no price series present")
	case []float64:
		return append([]float64(nil), series...), nil
	case []any:
		prices := make([]float64, 0, len(series))
		for i, v := range series {
			switch n := v.(type) {
			case float64:
				prices = append(prices, n)
			case int:
				prices = append(prices, float64(n))
			case int64:
				prices = append(prices, float64(n))
			default:
				return nil, fmt.Errorf("price series element %d has type %T", i, v)
			}
		}
		return prices, nil
	default:
		return nil, fmt.Errorf("price series has type %T", raw)
	}
}
