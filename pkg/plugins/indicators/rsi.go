package indicators

import (
	"context"
	"fmt"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

const defaultRSIPeriod = 14

// RSI computes the relative strength index over the price series using
// Wilder's smoothing.
type RSI struct {
	period int
}

// NewRSI constructs the plugin; period <= 0 selects the default of 14.
func NewRSI(period int) *RSI {
	if period <= 0 {
		period = defaultRSIPeriod
	}
	return &RSI{period: period}
}

func (p *RSI) ID() string                    { return "rsi" }
func (p *RSI) Category() domain.NodeCategory { return domain.CategoryEnrichment }
func (p *RSI) PluginName() string            { return "rsi" }
func (p *RSI) Parallel() bool                { return true }
func (p *RSI) Dependencies() []string        { return []string{domain.PluginMarketData} }

func (p *RSI) Execute(_ context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	prices, err := marketPrices(state)
	if err != nil {
		return nil, fmt.Errorf("rsi: %w", err)
	}
	if len(prices) < 2 {
		return nil, fmt.Errorf("rsi: need at least 2 prices, got %d", len(prices))
	}

	period := p.period
	if len(prices)-1 < period {
		period = len(prices) - 1
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	value := 100.0
	if avgLoss > 0 {
		rs := avgGain / avgLoss
		value = 100.0 - 100.0/(1.0+rs)
	}

	state.SetOutput(p.ID(), map[string]any{
		"value":  value,
		"period": period,
	})
	return state, nil
}
