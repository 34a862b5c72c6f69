package main

import (
	"github.com/sigflowai/sigflow-oss/pkg/engine/runtime"
	"github.com/sigflowai/sigflow-oss/pkg/plugins/indicators"
	"github.com/sigflowai/sigflow-oss/pkg/plugins/ingress"
	"github.com/sigflowai/sigflow-oss/pkg/plugins/score"
)

// builtinPlugins returns the default plugin set with default tuning. The CLI
// never wires the policy gate; admission control is a serving-surface concern.
func builtinPlugins() []runtime.Plugin {
	return []runtime.Plugin{
		ingress.NewMarketData(),
		ingress.NewSignalIngress(),
		indicators.NewSMA(0),
		indicators.NewRSI(0),
		indicators.NewMomentum(0),
		score.NewScore(),
	}
}
