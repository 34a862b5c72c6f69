package indicators

import (
	"context"
	"fmt"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

const defaultMomentumLookback = 10

// Momentum computes the absolute and relative price change over a lookback
// window.
type Momentum struct {
	lookback int
}

// NewMomentum constructs the plugin; lookback <= 0 selects the default of 10.
func NewMomentum(lookback int) *Momentum {
	if lookback <= 0 {
		lookback = defaultMomentumLookback
	}
	return &Momentum{lookback: lookback}
}

func (p *Momentum) ID() string                    { return "momentum" }
func (p *Momentum) Category() domain.NodeCategory { return domain.CategoryEnrichment }
func (p *Momentum) PluginName() string            { return "momentum" }
func (p *Momentum) Parallel() bool                { return true }
func (p *Momentum) Dependencies() []string        { return []string{domain.PluginMarketData} }

func (p *Momentum) Execute(_ context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	prices, err := marketPrices(state)
	if err != nil {
		return nil, fmt.Errorf("momentum: %w", err)
	}
	if len(prices) < 2 {
		return nil, fmt.Errorf("momentum: need at least 2 prices, got %d", len(prices))
	}

	lookback := p.lookback
	if len(prices)-1 < lookback {
		lookback = len(prices) - 1
	}

	latest := prices[len(prices)-1]
	reference := prices[len(prices)-1-lookback]
	change := latest - reference

	out := map[string]any{
		"change":   change,
		"lookback": lookback,
	}
	if reference != 0 {
		out["rate"] = change / reference
	}

	state.SetOutput(p.ID(), out)
	return state, nil
}
