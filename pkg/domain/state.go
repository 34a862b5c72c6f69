package domain

import (
	"fmt"
	"time"
)

// TraceEntry records one node invocation inside the shared state metadata.
// Entries are appended in invocation-completion order.
type TraceEntry struct {
	NodeID    string        `json:"node_id"`
	Category  NodeCategory  `json:"category"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at,omitzero"`
	Duration  time.Duration `json:"duration"`
	Status    NodeStatus    `json:"status"`
	Error     string        `json:"error,omitempty"`
}

// StateMeta carries run-scoped bookkeeping inside the shared state.
type StateMeta struct {
	StartedAt time.Time    `json:"started_at"`
	Trace     []TraceEntry `json:"trace"`
}

// PipelineState is the shared state object threaded through node invocations.
// Ownership transfers serially: the executor owns merging node outputs back,
// so plugins never mutate a state another node is reading.
type PipelineState struct {
	SignalID string         `json:"signal_id"`
	Raw      map[string]any `json:"raw"`
	Outputs  map[string]any `json:"outputs"`
	Analyst  map[string]any `json:"analyst"`
	Meta     StateMeta      `json:"meta"`
}

// NewPipelineState constructs a state for one run over the given raw input.
func NewPipelineState(signalID string, raw map[string]any) *PipelineState {
	return &PipelineState{
		SignalID: signalID,
		Raw:      raw,
		Outputs:  make(map[string]any),
		Meta:     StateMeta{StartedAt: time.Now()},
	}
}

// Output returns the stored output of a prior node.
func (s *PipelineState) Output(nodeID string) (any, bool) {
	if s.Outputs == nil {
		return nil, false
	}
	v, ok := s.Outputs[nodeID]
	return v, ok
}

// SetOutput records a node's output under its id.
func (s *PipelineState) SetOutput(nodeID string, out any) {
	if s.Outputs == nil {
		s.Outputs = make(map[string]any)
	}
	s.Outputs[nodeID] = out
}

// Clone returns a copy whose maps and trace are independent of the receiver.
// Values stored inside Raw/Outputs are shared; plugins must treat prior
// outputs as read-only.
func (s *PipelineState) Clone() *PipelineState {
	if s == nil {
		return nil
	}
	out := &PipelineState{
		SignalID: s.SignalID,
		Raw:      copyMap(s.Raw),
		Outputs:  copyMap(s.Outputs),
		Analyst:  copyMap(s.Analyst),
		Meta: StateMeta{
			StartedAt: s.Meta.StartedAt,
			Trace:     make([]TraceEntry, len(s.Meta.Trace)),
		},
	}
	copy(out.Meta.Trace, s.Meta.Trace)
	return out
}

// ValidateTrace checks the trace invariants and returns one warning string per
// violation: start times must be chronologically non-decreasing, a running
// entry must not carry an end time, and a completed entry should carry one.
// Violations are correctness warnings, not fatal.
func (s *PipelineState) ValidateTrace() []string {
	var warnings []string
	var prev time.Time
	for i, entry := range s.Meta.Trace {
		if i > 0 && entry.StartedAt.Before(prev) {
			warnings = append(warnings, fmt.Sprintf(
				"trace entry %d (%s) starts before its predecessor", i, entry.NodeID))
		}
		prev = entry.StartedAt
		switch entry.Status {
		case NodeRunning:
			if !entry.EndedAt.IsZero() {
				warnings = append(warnings, fmt.Sprintf(
					"trace entry %d (%s) is running but has an end time", i, entry.NodeID))
			}
		case NodeCompleted:
			if entry.EndedAt.IsZero() {
				warnings = append(warnings, fmt.Sprintf(
					"trace entry %d (%s) completed without an end time", i, entry.NodeID))
			}
		}
	}
	return warnings
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
