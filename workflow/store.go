package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrRunNotFound is returned by CheckpointStore.Load for unknown ids.
var ErrRunNotFound = errors.New("workflow run not found")

// CheckpointStore persists run progress. Checkpoint must be durable before
// it returns; the engine never starts the next group earlier.
type CheckpointStore interface {
	Begin(ctx context.Context, run *Execution) error
	Checkpoint(ctx context.Context, run *Execution) error
	Complete(ctx context.Context, run *Execution) error
	Load(ctx context.Context, executionID string) (*Execution, error)
}

// DeadLetterSink receives runs that exhausted their retries.
type DeadLetterSink interface {
	Record(ctx context.Context, dl DeadLetter) error
	List(ctx context.Context, workflowID string, limit int) ([]DeadLetter, error)
}

// MemoryStore keeps runs and dead letters in memory.
type MemoryStore struct {
	mu          sync.RWMutex
	runs        map[string]*Execution
	checkpoints map[string]int
	deadLetters []DeadLetter
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]*Execution),
		checkpoints: make(map[string]int),
	}
}

func (s *MemoryStore) save(run *Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()
}

// Begin implements CheckpointStore.
func (s *MemoryStore) Begin(_ context.Context, run *Execution) error {
	s.save(run)
	return nil
}

// Checkpoint implements CheckpointStore.
func (s *MemoryStore) Checkpoint(_ context.Context, run *Execution) error {
	s.mu.Lock()
	s.checkpoints[run.ID]++
	s.mu.Unlock()
	s.save(run)
	return nil
}

// Complete implements CheckpointStore.
func (s *MemoryStore) Complete(_ context.Context, run *Execution) error {
	s.save(run)
	return nil
}

// Load implements CheckpointStore.
func (s *MemoryStore) Load(_ context.Context, executionID string) (*Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[executionID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run.Clone(), nil
}

// Checkpoints returns how many checkpoints a run has written.
func (s *MemoryStore) Checkpoints(executionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[executionID]
}

// Record implements DeadLetterSink.
func (s *MemoryStore) Record(_ context.Context, dl DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dl.Input = cloneMap(dl.Input)
	s.deadLetters = append(s.deadLetters, dl)
	return nil
}

// List implements DeadLetterSink, newest first. Empty workflowID lists all.
func (s *MemoryStore) List(_ context.Context, workflowID string, limit int) ([]DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DeadLetter
	for _, dl := range s.deadLetters {
		if workflowID == "" || dl.WorkflowID == workflowID {
			dl.Input = cloneMap(dl.Input)
			out = append(out, dl)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
