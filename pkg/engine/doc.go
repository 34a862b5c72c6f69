// Package engine implements level-ordered execution of validated pipeline graphs.
//
// Architecture:
//
// executor.go - Core execution engine (Executor, per-level scheduling, retry loop)
// context.go  - Per-run ExecutionContext (status, result sets, cancellation)
// options.go  - Execution policy (mode, concurrency cap, retries, fail-fast)
// metrics.go  - Run metrics snapshot and result types
//
// The engine never inspects what a plugin computes; it only orchestrates when
// and whether a plugin runs. Plugins are resolved ahead of time by the graph
// builder; the executor treats the graph and registry as read-only once a run
// starts.
package engine
