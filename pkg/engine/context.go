package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/graph"
)

// NodeResult is the per-node outcome recorded in an execution context.
type NodeResult struct {
	NodeID    string            `json:"node_id"`
	Status    domain.NodeStatus `json:"status"`
	Attempts  int               `json:"attempts"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at"`
	Duration  time.Duration     `json:"duration"`
	Error     string            `json:"error,omitempty"`
}

// ExecutionContext tracks one run of one graph. All mutation goes through its
// methods; the executor's worker goroutines share a single context per run.
type ExecutionContext struct {
	ID      string
	Graph   *graph.Graph
	Options Options

	mu             sync.Mutex
	status         domain.RunStatus
	startedAt      time.Time
	endedAt        time.Time
	state          *domain.PipelineState
	results        map[string]*NodeResult
	executed       map[string]struct{}
	executing      map[string]struct{}
	failed         map[string]struct{}
	skipped        map[string]struct{}
	errors         []string
	warnings       []string
	parallelLevels int
	expiresAt      time.Time

	cancelOnce   sync.Once
	cancelCh     chan struct{}
	cancelReason string
}

func newExecutionContext(g *graph.Graph, state *domain.PipelineState, opts Options) *ExecutionContext {
	return &ExecutionContext{
		ID:        uuid.NewString(),
		Graph:     g,
		Options:   opts,
		status:    domain.RunPending,
		state:     state,
		results:   make(map[string]*NodeResult, len(g.Nodes)),
		executed:  make(map[string]struct{}, len(g.Nodes)),
		executing: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
		skipped:   make(map[string]struct{}),
		cancelCh:  make(chan struct{}),
	}
}

// Cancel requests cooperative cancellation. The first call wins; the recorded
// reason is surfaced on every subsequently skipped node.
func (ec *ExecutionContext) Cancel(reason string) {
	ec.cancelOnce.Do(func() {
		ec.mu.Lock()
		ec.cancelReason = reason
		ec.mu.Unlock()
		close(ec.cancelCh)
	})
}

// Done returns a channel closed when cancellation has been requested.
func (ec *ExecutionContext) Done() <-chan struct{} {
	return ec.cancelCh
}

// Cancelled reports whether cancellation has been requested.
func (ec *ExecutionContext) Cancelled() bool {
	select {
	case <-ec.cancelCh:
		return true
	default:
		return false
	}
}

// Status returns the current run status.
func (ec *ExecutionContext) Status() domain.RunStatus {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.status
}

func (ec *ExecutionContext) reasonLocked() string {
	if ec.cancelReason == "" {
		return "cancelled"
	}
	return ec.cancelReason
}

func (ec *ExecutionContext) start() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.status = domain.RunRunning
	ec.startedAt = time.Now()
	if ec.state != nil && ec.state.Meta.StartedAt.IsZero() {
		ec.state.Meta.StartedAt = ec.startedAt
	}
}

func (ec *ExecutionContext) finish(status domain.RunStatus) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.status.Terminal() {
		return
	}
	ec.status = status
	ec.endedAt = time.Now()
}

// hasExecuted reports whether the node already settled (completed or failed).
func (ec *ExecutionContext) hasExecuted(id string) bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	_, ok := ec.executed[id]
	return ok
}

// failedDependencies returns the node's known prerequisites that failed or
// were skipped, in the order they appear in the dependency list.
func (ec *ExecutionContext) failedDependencies(id string) []string {
	deps := ec.Graph.DirectDependencies(id)
	ec.mu.Lock()
	defer ec.mu.Unlock()
	var blocked []string
	for _, dep := range deps {
		if _, bad := ec.failed[dep]; bad {
			blocked = append(blocked, dep)
			continue
		}
		if _, bad := ec.skipped[dep]; bad {
			blocked = append(blocked, dep)
		}
	}
	return blocked
}

func (ec *ExecutionContext) markExecuting(id string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.executing[id] = struct{}{}
}

// baseState clones the current shared state for handing to a plugin.
func (ec *ExecutionContext) baseState() *domain.PipelineState {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.state.Clone()
}

// completeNode merges the node's output back into the shared state and
// appends its trace entry. Called once per node, in settle order.
func (ec *ExecutionContext) completeNode(node *graph.Node, out *domain.PipelineState, attempts int, started time.Time) {
	ended := time.Now()
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if out != nil {
		for k, v := range out.Outputs {
			ec.state.SetOutput(k, v)
		}
	}
	delete(ec.executing, node.ID)
	ec.executed[node.ID] = struct{}{}
	ec.results[node.ID] = &NodeResult{
		NodeID:    node.ID,
		Status:    domain.NodeCompleted,
		Attempts:  attempts,
		StartedAt: started,
		EndedAt:   ended,
		Duration:  ended.Sub(started),
	}
	ec.state.Meta.Trace = append(ec.state.Meta.Trace, domain.TraceEntry{
		NodeID:    node.ID,
		Category:  node.Category,
		StartedAt: started,
		EndedAt:   ended,
		Duration:  ended.Sub(started),
		Status:    domain.NodeCompleted,
	})
}

// failNode records a node failure after all attempts were exhausted.
func (ec *ExecutionContext) failNode(node *graph.Node, failure error, attempts int, started time.Time) {
	ended := time.Now()
	msg := fmt.Sprintf("node %q failed after %d attempt(s): %v", node.ID, attempts, failure)

	ec.mu.Lock()
	defer ec.mu.Unlock()
	delete(ec.executing, node.ID)
	ec.executed[node.ID] = struct{}{}
	ec.failed[node.ID] = struct{}{}
	ec.results[node.ID] = &NodeResult{
		NodeID:    node.ID,
		Status:    domain.NodeFailed,
		Attempts:  attempts,
		StartedAt: started,
		EndedAt:   ended,
		Duration:  ended.Sub(started),
		Error:     failure.Error(),
	}
	ec.state.Meta.Trace = append(ec.state.Meta.Trace, domain.TraceEntry{
		NodeID:    node.ID,
		Category:  node.Category,
		StartedAt: started,
		EndedAt:   ended,
		Duration:  ended.Sub(started),
		Status:    domain.NodeFailed,
		Error:     failure.Error(),
	})
	if node.Optional {
		ec.warnings = append(ec.warnings, msg)
	} else {
		ec.errors = append(ec.errors, msg)
	}
}

// skipNode records a node that never ran. Dependency-related skips carry one
// error string per blocking prerequisite; cancellation skips are not errors.
func (ec *ExecutionContext) skipNode(node *graph.Node, reason string, errs []string) {
	now := time.Now()
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if _, done := ec.executed[node.ID]; done {
		return
	}
	if _, done := ec.skipped[node.ID]; done {
		return
	}
	ec.skipped[node.ID] = struct{}{}
	ec.results[node.ID] = &NodeResult{
		NodeID:    node.ID,
		Status:    domain.NodeSkipped,
		StartedAt: now,
		EndedAt:   now,
		Error:     reason,
	}
	ec.state.Meta.Trace = append(ec.state.Meta.Trace, domain.TraceEntry{
		NodeID:    node.ID,
		Category:  node.Category,
		StartedAt: now,
		EndedAt:   now,
		Status:    domain.NodeSkipped,
		Error:     reason,
	})
	ec.errors = append(ec.errors, errs...)
}

func (ec *ExecutionContext) addError(msg string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.errors = append(ec.errors, msg)
}

func (ec *ExecutionContext) noteParallelLevel() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.parallelLevels++
}

func (ec *ExecutionContext) hasErrors() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.errors) > 0
}

// hasFailedNodes reports whether any node ended in the failed set, optional
// nodes included.
func (ec *ExecutionContext) hasFailedNodes() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.failed) > 0
}
