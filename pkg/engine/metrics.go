package engine

import (
	goruntime "runtime"
	"time"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

// Metrics is a point-in-time snapshot of one run's counters.
type Metrics struct {
	ExecutionID    string                `json:"execution_id"`
	PipelineID     string                `json:"pipeline_id"`
	Status         domain.RunStatus      `json:"status"`
	NodesExecuted  int                   `json:"nodes_executed"`
	NodesSucceeded int                   `json:"nodes_succeeded"`
	NodesFailed    int                   `json:"nodes_failed"`
	NodesSkipped   int                   `json:"nodes_skipped"`
	NodeResults    map[string]NodeResult `json:"node_results"`
	WallClock      time.Duration         `json:"wall_clock"`
	ParallelLevels int                   `json:"parallel_levels"`
	HeapAllocBytes uint64                `json:"heap_alloc_bytes,omitempty"`
}

// Result is the terminal outcome of one run.
type Result struct {
	ExecutionID string                `json:"execution_id"`
	Success     bool                  `json:"success"`
	Status      domain.RunStatus      `json:"status"`
	State       *domain.PipelineState `json:"state"`
	Metrics     Metrics               `json:"metrics"`
	Errors      []string              `json:"errors,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
}

// snapshotMetrics builds a Metrics view under the context lock. Wall clock for
// a live run is measured against now.
func (ec *ExecutionContext) snapshotMetrics(sampleMemory bool) Metrics {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	m := Metrics{
		ExecutionID:    ec.ID,
		PipelineID:     ec.Graph.PipelineID,
		Status:         ec.status,
		NodesExecuted:  len(ec.executed),
		NodesFailed:    len(ec.failed),
		NodesSkipped:   len(ec.skipped),
		NodeResults:    make(map[string]NodeResult, len(ec.results)),
		ParallelLevels: ec.parallelLevels,
	}
	m.NodesSucceeded = m.NodesExecuted - m.NodesFailed
	for id, r := range ec.results {
		m.NodeResults[id] = *r
	}
	switch {
	case !ec.endedAt.IsZero():
		m.WallClock = ec.endedAt.Sub(ec.startedAt)
	case !ec.startedAt.IsZero():
		m.WallClock = time.Since(ec.startedAt)
	}
	if sampleMemory {
		var ms goruntime.MemStats
		goruntime.ReadMemStats(&ms)
		m.HeapAllocBytes = ms.HeapAlloc
	}
	return m
}
