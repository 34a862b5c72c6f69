package policy

import (
	"context"
	"errors"
)

// Action defines the outcome of a policy evaluation.
type Action string

const (
	// ActionAllow admits the signal unchanged.
	ActionAllow Action = "allow"
	// ActionFlag admits the signal but attaches review metadata.
	ActionFlag Action = "flag"
	// ActionBlock rejects the signal.
	ActionBlock Action = "block"
)

// Decision captures the result of one policy evaluation.
type Decision struct {
	Action   Action
	Reason   string
	Metadata map[string]string
	Outputs  map[string]any
}

// Input provides context for evaluating a signal against admission policy.
type Input struct {
	SignalID     string
	PipelineID   string
	NodeID       string
	Generation   string
	Attributes   map[string]any
	Entrypoint   string
	DisableCache bool
}

// Filter evaluates a policy decision for a given input.
type Filter interface {
	Evaluate(ctx context.Context, input Input) (Decision, error)
}

// Chain composes multiple filters, short-circuiting on terminal decisions.
type Chain struct {
	filters []Filter
}

// NewChain constructs a filter chain.
func NewChain(filters ...Filter) Chain {
	return Chain{filters: append([]Filter(nil), filters...)}
}

// Evaluate executes the chain until a flag or block decision is produced.
// An empty chain allows everything.
func (c Chain) Evaluate(ctx context.Context, input Input) (Decision, error) {
	for _, filter := range c.filters {
		decision, err := filter.Evaluate(ctx, input)
		if err != nil {
			return Decision{}, err
		}
		if decision.Metadata == nil {
			decision.Metadata = map[string]string{}
		}
		if decision.Outputs == nil {
			decision.Outputs = map[string]any{}
		}
		switch decision.Action {
		case ActionAllow:
			// continue evaluating subsequent filters
		case ActionFlag, ActionBlock:
			return decision, nil
		default:
			return Decision{}, errors.New("unknown policy action")
		}
	}
	return Decision{Action: ActionAllow, Metadata: map[string]string{}}, nil
}
