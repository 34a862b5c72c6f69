package indicators

import (
	"context"
	"fmt"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

const defaultSMAWindow = 20

// SMA computes a simple moving average over the tail of the price series.
type SMA struct {
	window int
}

// NewSMA constructs the plugin; window <= 0 selects the default of 20.
func NewSMA(window int) *SMA {
	if window <= 0 {
		window = defaultSMAWindow
	}
	return &SMA{window: window}
}

func (p *SMA) ID() string                    { return "sma" }
func (p *SMA) Category() domain.NodeCategory { return domain.CategoryEnrichment }
func (p *SMA) PluginName() string            { return "sma" }
func (p *SMA) Parallel() bool                { return true }
func (p *SMA) Dependencies() []string        { return []string{domain.PluginMarketData} }

func (p *SMA) Execute(_ context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	prices, err := marketPrices(state)
	if err != nil {
		return nil, fmt.Errorf("sma: %w", err)
	}

	window := p.window
	if len(prices) < window {
		window = len(prices)
	}
	if window == 0 {
		return nil, fmt.Errorf("sma: empty price series")
	}

	var sum float64
	for _, price := range prices[len(prices)-window:] {
		sum += price
	}

	state.SetOutput(p.ID(), map[string]any{
		"value":  sum / float64(window),
		"window": window,
	})
	return state, nil
}
