package engine

import "time"

// ExecutionMode selects how eligible levels are scheduled.
type ExecutionMode string

const (
	// ModeSequential runs every node one at a time regardless of eligibility.
	ModeSequential ExecutionMode = "sequential"
	// ModeParallel and ModeAdaptive both fan out eligible levels; adaptive is
	// the default and lets the eligibility rules decide per level.
	ModeParallel ExecutionMode = "parallel"
	ModeAdaptive ExecutionMode = "adaptive"
)

// Options configure one run. The zero value is not useful; start from
// DefaultOptions and override.
type Options struct {
	// Timeout bounds the whole run. 0 means no timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries per node; a node is attempted
	// MaxRetries+1 times.
	MaxRetries int
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
	// ContinueOnError keeps the run going when a non-optional node fails.
	ContinueOnError bool
	// FailFast stops scheduling new nodes as soon as any node fails.
	FailFast bool
	// Mode selects sequential or fan-out scheduling.
	Mode ExecutionMode
	// MaxConcurrent caps in-flight nodes within a level. 0 means unlimited;
	// 1 disables concurrency. The cap is hard: chunks are awaited together.
	MaxConcurrent int
	// SampleMemory records a process heap sample in the run metrics.
	SampleMemory bool
	// Verbose enables per-attempt debug logging.
	Verbose bool
}

// DefaultOptions returns the executor defaults: adaptive mode, no retries,
// continue-on-error enabled, no timeout.
func DefaultOptions() Options {
	return Options{
		RetryDelay:      100 * time.Millisecond,
		ContinueOnError: true,
		Mode:            ModeAdaptive,
	}
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeAdaptive
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 100 * time.Millisecond
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	return o
}
