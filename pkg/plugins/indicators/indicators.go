// Package indicators provides technical-indicator enrichment plugins. Every
// plugin here is parallel-safe: each reads the market-data output and writes
// only its own output key.
package indicators

import (
	"fmt"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/plugins/ingress"
)

// marketPrices pulls the normalized price series from the market-data output.
func marketPrices(state *domain.PipelineState) ([]float64, error) {
	out, ok := state.Output(domain.PluginMarketData)
	if !ok {
		return nil, fmt.Errorf("market data output not present")
	}
	payload, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("market data output has type %T", out)
	}
	return ingress.ExtractPrices(payload["prices"])
}
