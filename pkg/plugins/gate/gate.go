// Package gate provides the policy-admission plugin. It evaluates the signal
// against the configured Rego policy; a block decision fails the node, a flag
// decision passes with review metadata in the node output.
package gate

import (
	"context"
	"fmt"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/policy"
)

// Gate wraps a policy filter as a pipeline plugin.
type Gate struct {
	filter     policy.Filter
	pipelineID string
	generation string
}

// NewGate constructs the admission plugin. The generation string ties cached
// decisions to a policy revision; bump it on policy reload.
func NewGate(filter policy.Filter, pipelineID, generation string) *Gate {
	return &Gate{filter: filter, pipelineID: pipelineID, generation: generation}
}

func (p *Gate) ID() string                    { return "gate" }
func (p *Gate) Category() domain.NodeCategory { return domain.CategoryEnrichment }
func (p *Gate) PluginName() string            { return "gate" }
func (p *Gate) Parallel() bool                { return false }
func (p *Gate) Dependencies() []string        { return []string{domain.PluginSignalIngress} }

func (p *Gate) Execute(ctx context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	if p.filter == nil {
		return nil, fmt.Errorf("gate: no policy filter configured")
	}

	decision, err := p.filter.Evaluate(ctx, policy.Input{
		SignalID:   state.SignalID,
		PipelineID: p.pipelineID,
		NodeID:     p.ID(),
		Generation: p.generation,
		Attributes: state.Raw,
	})
	if err != nil {
		return nil, fmt.Errorf("gate: policy evaluation: %w", err)
	}

	if decision.Action == policy.ActionBlock {
		return nil, fmt.Errorf("gate: signal %q blocked by policy: %s", state.SignalID, decision.Reason)
	}

	out := map[string]any{
		"action": string(decision.Action),
	}
	if decision.Reason != "" {
		out["reason"] = decision.Reason
	}
	if len(decision.Metadata) > 0 {
		out["metadata"] = decision.Metadata
	}
	state.SetOutput(p.ID(), out)
	return state, nil
}
