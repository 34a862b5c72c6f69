package main

import (
	"github.com/sigflowai/sigflow-oss/pkg/engine/runtime"
	"github.com/sigflowai/sigflow-oss/pkg/plugins/gate"
	"github.com/sigflowai/sigflow-oss/pkg/plugins/indicators"
	"github.com/sigflowai/sigflow-oss/pkg/plugins/ingress"
	"github.com/sigflowai/sigflow-oss/pkg/plugins/score"
	"github.com/sigflowai/sigflow-oss/pkg/policy"
)

// builtinPlugins returns the default plugin set with default tuning.
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

func newGatePlugin(engine *policy.Engine) runtime.Plugin {
	return gate.NewGate(engine, "default", "1")
}
