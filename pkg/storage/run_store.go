// Package storage provides persistence for finished pipeline runs. The only
// implementation is in-memory and bounded; the serving surface reads from it
// to answer run lookups after the executor's own retention lapses.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
)

// RunRecord is the stored summary of one finished run.
type RunRecord struct {
	ExecutionID string              `json:"execution_id"`
	PipelineID  string              `json:"pipeline_id"`
	SignalID    string              `json:"signal_id"`
	Status      domain.RunStatus    `json:"status"`
	StartedAt   time.Time           `json:"started_at"`
	EndedAt     time.Time           `json:"ended_at"`
	Duration    time.Duration       `json:"duration"`
	Executed    int                 `json:"executed"`
	Failed      int                 `json:"failed"`
	Skipped     int                 `json:"skipped"`
	Outputs     map[string]any      `json:"outputs,omitempty"`
	Trace       []domain.TraceEntry `json:"trace,omitempty"`
	Errors      []string            `json:"errors,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
}

// RunStore persists finished runs.
type RunStore interface {
	SaveRun(ctx context.Context, record RunRecord) error
	GetRun(ctx context.Context, executionID string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// MemoryRunStore is a bounded in-memory RunStore. When full, the oldest run
// is evicted on insert.
type MemoryRunStore struct {
	mu      sync.RWMutex
	max     int
	order   []string
	records map[string]RunRecord
}

const defaultRunCapacity = 256

// NewMemoryRunStore creates a store holding at most capacity runs; capacity
// <= 0 selects the default of 256.
func NewMemoryRunStore(capacity int) *MemoryRunStore {
	if capacity <= 0 {
		capacity = defaultRunCapacity
	}
	return &MemoryRunStore{
		max:     capacity,
		records: make(map[string]RunRecord, capacity),
	}
}

// SaveRun stores a finished run, evicting the oldest if at capacity.
func (s *MemoryRunStore) SaveRun(_ context.Context, record RunRecord) error {
	if record.ExecutionID == "" {
		return fmt.Errorf("run record missing execution id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ExecutionID]; !exists {
		if len(s.order) >= s.max {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.records, oldest)
		}
		s.order = append(s.order, record.ExecutionID)
	}
	s.records[record.ExecutionID] = record
	return nil
}

// GetRun retrieves a stored run.
func (s *MemoryRunStore) GetRun(_ context.Context, executionID string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[executionID]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", domain.ErrRunNotFound, executionID)
	}
	return record, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *MemoryRunStore) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	records := make([]RunRecord, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(records) < limit; i-- {
		records = append(records, s.records[s.order[i]])
	}
	return records, nil
}

// Close is a no-op for the memory store.
func (s *MemoryRunStore) Close() error {
	return nil
}
