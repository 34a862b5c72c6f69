package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sigflowai/sigflow-oss/internal/governance"
	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/graph"
	"github.com/sigflowai/sigflow-oss/pkg/registry"
	"github.com/sigflowai/sigflow-oss/pkg/telemetry"
)

const defaultRunRetention = 5 * time.Minute

// Config configures an Executor.
type Config struct {
	Registry *registry.Registry
	Logger   *slog.Logger
	// Retention bounds how long finished run contexts stay queryable.
	Retention time.Duration
}

// Executor runs validated graphs level by level. It keeps finished runs
// around briefly so callers can fetch metrics after the fact.
type Executor struct {
	registry  *registry.Registry
	logger    *slog.Logger
	tracer    trace.Tracer
	retention time.Duration

	mu   sync.Mutex
	runs map[string]*ExecutionContext
}

// NewExecutor creates an executor over the given plugin registry.
func NewExecutor(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = defaultRunRetention
	}
	return &Executor{
		registry:  cfg.Registry,
		logger:    logger.With("component", "executor"),
		tracer:    otel.Tracer("sigflow.pipeline"),
		retention: retention,
		runs:      make(map[string]*ExecutionContext),
	}
}

// errAbort escalates a non-optional node failure when continue-on-error is
// disabled. It aborts the whole run.
type errAbort struct {
	nodeID string
	cause  error
}

func (e *errAbort) Error() string {
	return fmt.Sprintf("execution aborted: node %q failed: %v", e.nodeID, e.cause)
}

func (e *errAbort) Unwrap() error { return domain.ErrExecutionAborted }

// errCancelled signals that an in-flight invocation was abandoned because the
// run was cancelled. The plugin goroutine is left to finish; its result is
// discarded.
var errCancelled = errors.New("invocation abandoned: run cancelled")

// Run executes the graph against the given initial state and blocks until the
// run reaches a terminal status. The returned Result is always non-nil when
// the run started; Run errors only on invalid input.
func (e *Executor) Run(ctx context.Context, g *graph.Graph, state *domain.PipelineState, opts Options) (*Result, error) {
	if g == nil || len(g.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes to execute", domain.ErrGraphInvalid)
	}
	if state == nil {
		return nil, fmt.Errorf("%w: nil initial state", domain.ErrGraphInvalid)
	}
	opts = opts.withDefaults()

	levels, err := graph.ExecutionLevels(g)
	if err != nil {
		return nil, err
	}

	ec := newExecutionContext(g, state, opts)
	e.storeRun(ec)

	cancel := func() {}
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("pipeline.id", g.PipelineID),
			attribute.String("execution.id", ec.ID),
			attribute.String("signal.id", state.SignalID),
			attribute.Int("pipeline.levels", len(levels)),
			attribute.Int("pipeline.nodes", len(g.Nodes)),
		))
	defer span.End()

	ec.start()
	e.logger.Info("run started",
		"execution_id", ec.ID,
		"pipeline_id", g.PipelineID,
		"signal_id", state.SignalID,
		"levels", len(levels),
		"nodes", len(g.Nodes),
		"mode", string(opts.Mode))

	runErr := e.runLevels(ctx, ec, levels)
	result := e.finalize(ctx, ec, span, runErr)
	return result, nil
}

// Cancel requests cooperative cancellation of a live run.
func (e *Executor) Cancel(executionID, reason string) error {
	e.mu.Lock()
	ec, ok := e.runs[executionID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, executionID)
	}
	if ec.Status().Terminal() {
		return fmt.Errorf("%w: run %s already %s", domain.ErrRunCancelled, executionID, ec.Status())
	}
	e.logger.Info("cancellation requested", "execution_id", executionID, "reason", reason)
	ec.Cancel(reason)
	return nil
}

// ActiveRuns returns the execution ids of runs that have not yet reached a
// terminal status.
func (e *Executor) ActiveRuns() []string {
	e.mu.Lock()
	contexts := make([]*ExecutionContext, 0, len(e.runs))
	for _, ec := range e.runs {
		contexts = append(contexts, ec)
	}
	e.mu.Unlock()

	var ids []string
	for _, ec := range contexts {
		if !ec.Status().Terminal() {
			ids = append(ids, ec.ID)
		}
	}
	return ids
}

// Metrics returns a snapshot of a live or recently finished run.
func (e *Executor) Metrics(executionID string) (Metrics, error) {
	e.mu.Lock()
	ec, ok := e.runs[executionID]
	e.mu.Unlock()
	if !ok {
		return Metrics{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, executionID)
	}
	return ec.snapshotMetrics(false), nil
}

func (e *Executor) storeRun(ec *ExecutionContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	for id, run := range e.runs {
		if !run.expiresAt.IsZero() && now.After(run.expiresAt) {
			delete(e.runs, id)
		}
	}
	e.runs[ec.ID] = ec
}

func (e *Executor) expireRun(ec *ExecutionContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ec.expiresAt = time.Now().Add(e.retention)
}

// runLevels walks the levels in order. Within a level the nodes either run
// sequentially or fan out per the eligibility rules. A returned error aborts
// the run; a fail-fast stop returns nil after ceasing to schedule.
func (e *Executor) runLevels(ctx context.Context, ec *ExecutionContext, levels [][]string) error {
	for levelIdx, ids := range levels {
		nodes := make([]*graph.Node, 0, len(ids))
		for _, id := range ids {
			if ec.hasExecuted(id) {
				continue
			}
			nodes = append(nodes, ec.Graph.Nodes[id])
		}
		if len(nodes) == 0 {
			continue
		}
		if len(nodes) > 1 {
			ec.noteParallelLevel()
		}

		var stop bool
		var err error
		if e.levelConcurrent(ec.Options, nodes) {
			stop, err = e.runLevelConcurrent(ctx, ec, levelIdx, nodes)
		} else {
			stop, err = e.runLevelSequential(ctx, ec, levelIdx, nodes)
		}
		if err != nil {
			return err
		}
		if stop {
			e.logger.Warn("fail-fast engaged, remaining levels not scheduled",
				"execution_id", ec.ID, "level", levelIdx)
			return nil
		}
	}
	return nil
}

// levelConcurrent decides whether a level may fan out: more than one node,
// mode not sequential, concurrency cap not 1, and every node opted in.
func (e *Executor) levelConcurrent(opts Options, nodes []*graph.Node) bool {
	if opts.Mode == ModeSequential || len(nodes) < 2 || opts.MaxConcurrent == 1 {
		return false
	}
	for _, node := range nodes {
		if !node.Plugin.Parallel() {
			return false
		}
	}
	return true
}

func (e *Executor) runLevelSequential(ctx context.Context, ec *ExecutionContext, level int, nodes []*graph.Node) (stop bool, err error) {
	for _, node := range nodes {
		failed, nodeErr := e.runNode(ctx, ec, node, nil)
		if nodeErr != nil {
			return false, nodeErr
		}
		if failed && ec.Options.FailFast {
			e.logger.Warn("fail-fast engaged mid-level",
				"execution_id", ec.ID, "level", level)
			return true, nil
		}
	}
	return false, nil
}

// runLevelConcurrent fans the level out in chunks bounded by MaxConcurrent.
// Every node in a chunk receives a clone of the state as it stood when the
// level started; outputs merge back as nodes settle.
func (e *Executor) runLevelConcurrent(ctx context.Context, ec *ExecutionContext, level int, nodes []*graph.Node) (stop bool, err error) {
	base := ec.baseState()

	for _, batch := range chunkNodes(nodes, ec.Options.MaxConcurrent) {
		type outcome struct {
			failed bool
			err    error
		}
		outcomes := make(chan outcome, len(batch))

		for _, node := range batch {
			go func(n *graph.Node) {
				failed, nodeErr := e.runNode(ctx, ec, n, base)
				outcomes <- outcome{failed: failed, err: nodeErr}
			}(node)
		}

		var anyFailed bool
		var firstErr error
		for range batch {
			o := <-outcomes
			if o.err != nil && firstErr == nil {
				firstErr = o.err
			}
			if o.failed {
				anyFailed = true
			}
		}
		if firstErr != nil {
			return false, firstErr
		}
		if anyFailed && ec.Options.FailFast {
			e.logger.Warn("fail-fast engaged mid-level",
				"execution_id", ec.ID, "level", level)
			return true, nil
		}
	}
	return false, nil
}

// chunkNodes splits a level into batches of at most size nodes. size<=0 means
// one unbounded batch.
func chunkNodes(nodes []*graph.Node, size int) [][]*graph.Node {
	if size <= 0 || len(nodes) <= size {
		return [][]*graph.Node{nodes}
	}
	var chunks [][]*graph.Node
	for start := 0; start < len(nodes); start += size {
		end := start + size
		if end > len(nodes) {
			end = len(nodes)
		}
		chunks = append(chunks, nodes[start:end])
	}
	return chunks
}

// runNode drives one node through skip checks and the attempt loop. The
// returned failed flag reports a recorded node failure; the returned error is
// fatal to the whole run (abort escalation or run timeout).
func (e *Executor) runNode(ctx context.Context, ec *ExecutionContext, node *graph.Node, base *domain.PipelineState) (failed bool, fatal error) {
	if ec.hasExecuted(node.ID) {
		return false, nil
	}
	if ec.Cancelled() {
		e.skipForCancellation(ctx, ec, node)
		return false, nil
	}

	if blocked := ec.failedDependencies(node.ID); len(blocked) > 0 {
		errs := make([]string, 0, len(blocked))
		for _, dep := range blocked {
			errs = append(errs, fmt.Sprintf("node %q skipped: prerequisite %q did not complete", node.ID, dep))
		}
		reason := fmt.Sprintf("prerequisite(s) did not complete: %v", blocked)
		ec.skipNode(node, reason, errs)
		e.recordSkipMetrics(ctx, ec, node)
		e.logger.Warn("node skipped", "execution_id", ec.ID, "node_id", node.ID, "reason", reason)
		return false, nil
	}
	if dangling := danglingDependencies(ec.Graph, node); len(dangling) > 0 {
		reason := fmt.Sprintf("unresolvable prerequisite(s): %v", dangling)
		ec.skipNode(node, reason, []string{fmt.Sprintf("node %q skipped: %s", node.ID, reason)})
		e.recordSkipMetrics(ctx, ec, node)
		e.logger.Warn("node skipped", "execution_id", ec.ID, "node_id", node.ID, "reason", reason)
		return false, nil
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.node",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.plugin", node.Role()),
			attribute.String("node.category", string(node.Category)),
		))
	defer span.End()

	ec.markExecuting(node.ID)
	started := time.Now()
	policy := governance.NewRetryPolicy(governance.RetryConfig{
		MaxRetries: ec.Options.MaxRetries,
		Delay:      ec.Options.RetryDelay,
		Multiplier: 1.0,
	})
	maxAttempts := policy.Attempts()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ec.Cancelled() {
			e.skipForCancellation(ctx, ec, node)
			return false, nil
		}
		if ec.Options.Verbose {
			e.logger.Debug("node attempt",
				"execution_id", ec.ID, "node_id", node.ID, "attempt", attempt, "max_attempts", maxAttempts)
		}

		out, invokeErr := e.invoke(ctx, ec, node, base)
		if invokeErr == nil {
			ec.completeNode(node, out, attempt, started)
			span.SetAttributes(attribute.Int("node.attempts", attempt))
			telemetry.RecordNodeMetrics(ctx, telemetry.NodeMetrics{
				PipelineID: ec.Graph.PipelineID,
				SignalID:   signalID(ec),
				NodeID:     node.ID,
				Category:   node.Category,
				Plugin:     node.Role(),
				Status:     domain.NodeCompleted,
				Duration:   time.Since(started),
				Attempts:   attempt,
			})
			e.logger.Info("node completed",
				"execution_id", ec.ID, "node_id", node.ID, "attempt", attempt,
				"duration_ms", time.Since(started).Milliseconds())
			return false, nil
		}

		if errors.Is(invokeErr, errCancelled) {
			e.skipForCancellation(ctx, ec, node)
			return false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
			return false, fmt.Errorf("%w: node %q interrupted: %v", domain.ErrRunTimeout, node.ID, ctxErr)
		}

		lastErr = invokeErr
		e.logger.Warn("node attempt failed",
			"execution_id", ec.ID, "node_id", node.ID, "attempt", attempt,
			"max_attempts", maxAttempts, "error", invokeErr)

		if attempt < maxAttempts {
			if waitErr := policy.Wait(ctx, ec.Done(), attempt-1); waitErr != nil {
				if ec.Cancelled() {
					e.skipForCancellation(ctx, ec, node)
					return false, nil
				}
				span.SetStatus(codes.Error, waitErr.Error())
				return false, fmt.Errorf("%w: node %q interrupted between attempts: %v",
					domain.ErrRunTimeout, node.ID, waitErr)
			}
		}
	}

	if maxAttempts > 1 {
		lastErr = fmt.Errorf("%w: %v", governance.ErrMaxRetriesExceeded, lastErr)
	}
	ec.failNode(node, lastErr, maxAttempts, started)
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, lastErr.Error())
	telemetry.RecordNodeMetrics(ctx, telemetry.NodeMetrics{
		PipelineID: ec.Graph.PipelineID,
		SignalID:   signalID(ec),
		NodeID:     node.ID,
		Category:   node.Category,
		Plugin:     node.Role(),
		Status:     domain.NodeFailed,
		Duration:   time.Since(started),
		Attempts:   maxAttempts,
	})
	e.logger.Error("node failed",
		"execution_id", ec.ID, "node_id", node.ID,
		"attempts", maxAttempts, "optional", node.Optional, "error", lastErr)

	if !node.Optional && !ec.Options.ContinueOnError {
		return true, &errAbort{nodeID: node.ID, cause: lastErr}
	}
	return !node.Optional, nil
}

// invoke runs the plugin in its own goroutine and races it against run
// cancellation and the context deadline. A state returned after abandonment
// is discarded, never merged.
func (e *Executor) invoke(ctx context.Context, ec *ExecutionContext, node *graph.Node, base *domain.PipelineState) (*domain.PipelineState, error) {
	input := base
	if input == nil {
		input = ec.baseState()
	} else {
		input = input.Clone()
	}

	type invocation struct {
		state *domain.PipelineState
		err   error
	}
	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: fmt.Errorf("plugin panicked: %v", r)}
			}
		}()
		out, err := node.Plugin.Execute(ctx, input)
		done <- invocation{state: out, err: err}
	}()

	select {
	case inv := <-done:
		return inv.state, inv.err
	case <-ec.Done():
		return nil, errCancelled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) skipForCancellation(ctx context.Context, ec *ExecutionContext, node *graph.Node) {
	ec.mu.Lock()
	reason := fmt.Sprintf("run cancelled: %s", ec.reasonLocked())
	ec.mu.Unlock()
	ec.skipNode(node, reason, nil)
	e.recordSkipMetrics(ctx, ec, node)
}

func (e *Executor) recordSkipMetrics(ctx context.Context, ec *ExecutionContext, node *graph.Node) {
	telemetry.RecordNodeMetrics(ctx, telemetry.NodeMetrics{
		PipelineID: ec.Graph.PipelineID,
		SignalID:   signalID(ec),
		NodeID:     node.ID,
		Category:   node.Category,
		Plugin:     node.Role(),
		Status:     domain.NodeSkipped,
	})
}

// danglingDependencies returns declared prerequisites that reference no node
// in the graph. Such a node can never become ready and is skipped.
func danglingDependencies(g *graph.Graph, node *graph.Node) []string {
	seen := make(map[string]struct{}, len(node.Dependencies))
	var dangling []string
	for _, dep := range node.Dependencies {
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		if _, known := g.Nodes[dep]; !known {
			dangling = append(dangling, dep)
		}
	}
	return dangling
}

func signalID(ec *ExecutionContext) string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.state == nil {
		return ""
	}
	return ec.state.SignalID
}

// finalize settles the run status, emits run telemetry and builds the Result.
func (e *Executor) finalize(ctx context.Context, ec *ExecutionContext, span trace.Span, runErr error) *Result {
	var status domain.RunStatus
	switch {
	case runErr != nil:
		ec.addError(runErr.Error())
		status = domain.RunFailed
	case ec.Cancelled():
		status = domain.RunCancelled
	case ec.hasErrors() || ec.hasFailedNodes():
		status = domain.RunFailed
	default:
		status = domain.RunCompleted
	}
	ec.finish(status)
	e.expireRun(ec)

	ec.mu.Lock()
	for _, warning := range ec.state.ValidateTrace() {
		ec.warnings = append(ec.warnings, warning)
	}
	state := ec.state
	errs := append([]string(nil), ec.errors...)
	warnings := append([]string(nil), ec.warnings...)
	ec.mu.Unlock()

	metrics := ec.snapshotMetrics(ec.Options.SampleMemory)

	span.SetAttributes(
		attribute.String("run.status", string(status)),
		attribute.Int("run.nodes_executed", metrics.NodesExecuted),
		attribute.Int("run.nodes_failed", metrics.NodesFailed),
		attribute.Int("run.nodes_skipped", metrics.NodesSkipped),
	)
	if status != domain.RunCompleted {
		span.SetStatus(codes.Error, string(status))
	}

	telemetry.RecordRunMetrics(ctx, telemetry.RunMetrics{
		PipelineID: ec.Graph.PipelineID,
		SignalID:   state.SignalID,
		Status:     status,
		Duration:   metrics.WallClock,
		Executed:   metrics.NodesExecuted,
		Failed:     metrics.NodesFailed,
		Skipped:    metrics.NodesSkipped,
	})

	e.logger.Info("run finished",
		"execution_id", ec.ID,
		"pipeline_id", ec.Graph.PipelineID,
		"status", string(status),
		"executed", metrics.NodesExecuted,
		"failed", metrics.NodesFailed,
		"skipped", metrics.NodesSkipped,
		"duration_ms", metrics.WallClock.Milliseconds())

	return &Result{
		ExecutionID: ec.ID,
		Success:     status == domain.RunCompleted,
		Status:      status,
		State:       state,
		Metrics:     metrics,
		Errors:      errs,
		Warnings:    warnings,
	}
}
