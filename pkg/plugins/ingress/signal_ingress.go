package ingress

import (
	"context"
	"fmt"
	"time"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

// SignalIngress is the signal-intake plugin. It validates the inbound signal
// and stamps intake metadata; enrichment stages depend on it rather than on
// the raw payload.
type SignalIngress struct{}

// NewSignalIngress constructs the signal-intake plugin.
func NewSignalIngress() *SignalIngress { return &SignalIngress{} }

func (p *SignalIngress) ID() string                    { return domain.PluginSignalIngress }
func (p *SignalIngress) Category() domain.NodeCategory { return domain.CategoryIngress }
func (p *SignalIngress) PluginName() string            { return domain.PluginSignalIngress }
func (p *SignalIngress) Parallel() bool                { return true }
func (p *SignalIngress) Dependencies() []string        { return nil }

func (p *SignalIngress) Execute(_ context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
	if state.SignalID == "" {
		return nil, fmt.Errorf("signal ingress: missing signal id")
	}
	if len(state.Raw) == 0 {
		return nil, fmt.Errorf("signal ingress: signal %q has no payload", state.SignalID)
	}

	state.SetOutput(domain.PluginSignalIngress, map[string]any{
		"signal_id":   state.SignalID,
		"received_at": time.Now().UTC(),
		"field_count": len(state.Raw),
	})
	return state, nil
}
