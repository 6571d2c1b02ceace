package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/types"
)

// Executor starts workflow runs. *Engine implements it.
type Executor interface {
	Execute(ctx context.Context, workflowID string, input map[string]any, actorID string) (*Execution, error)
}

// Schedule fires a workflow on a fixed interval.
type Schedule struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflowId"`
	Every      time.Duration  `json:"every"`
	Input      map[string]any `json:"input,omitempty"`
	Enabled    bool           `json:"enabled"`
	LastRun    *time.Time     `json:"lastRun,omitempty"`
	NextRun    time.Time      `json:"nextRun"`
	LastStatus string         `json:"lastStatus,omitempty"`
}

// Trigger runs due schedules as the system actor.
type Trigger struct {
	mu        sync.Mutex
	executor  Executor
	schedules map[string]*Schedule
	tick      time.Duration
	now       func() time.Time
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewTrigger creates a trigger that checks for due schedules every tick.
func NewTrigger(executor Executor, tick time.Duration, logger *zap.Logger) *Trigger {
	if tick <= 0 {
		tick = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		executor:  executor,
		schedules: make(map[string]*Schedule),
		tick:      tick,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "workflow_trigger")),
	}
}

// Schedule adds an enabled interval schedule and returns it.
func (t *Trigger) Schedule(workflowID string, every time.Duration, input map[string]any) (Schedule, error) {
	if workflowID == "" {
		return Schedule{}, types.NewError(types.ErrInvalidInput, "workflow id is required")
	}
	if every <= 0 {
		return Schedule{}, types.NewError(types.ErrInvalidInput, "schedule interval must be positive")
	}
	s := &Schedule{
		ID:         "sched-" + uuid.NewString(),
		WorkflowID: workflowID,
		Every:      every,
		Input:      cloneMap(input),
		Enabled:    true,
		NextRun:    t.now().Add(every),
	}
	t.mu.Lock()
	t.schedules[s.ID] = s
	t.mu.Unlock()
	t.logger.Info("workflow scheduled",
		zap.String("schedule_id", s.ID),
		zap.String("workflow_id", workflowID),
		zap.Duration("every", every),
	)
	return *s, nil
}

// Unschedule removes a schedule and reports whether it existed.
func (t *Trigger) Unschedule(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.schedules[id]
	delete(t.schedules, id)
	return ok
}

// SetEnabled pauses or resumes a schedule.
func (t *Trigger) SetEnabled(id string, enabled bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.schedules[id]
	if ok {
		s.Enabled = enabled
	}
	return ok
}

// List returns all schedules ordered by next run time.
func (t *Trigger) List() []Schedule {
	t.mu.Lock()
	out := make([]Schedule, 0, len(t.schedules))
	for _, s := range t.schedules {
		cp := *s
		cp.Input = cloneMap(s.Input)
		out = append(out, cp)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out
}

// Run fires due schedules until ctx ends, then waits for in-flight runs.
func (t *Trigger) Run(ctx context.Context) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()
	defer t.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Fire(ctx)
		}
	}
}

// Fire starts every due schedule once and returns how many were started.
func (t *Trigger) Fire(ctx context.Context) int {
	now := t.now()
	var due []Schedule

	t.mu.Lock()
	for _, s := range t.schedules {
		if !s.Enabled || s.NextRun.After(now) {
			continue
		}
		last := now
		s.LastRun = &last
		s.NextRun = now.Add(s.Every)
		cp := *s
		cp.Input = cloneMap(s.Input)
		due = append(due, cp)
	}
	t.mu.Unlock()

	for _, s := range due {
		t.wg.Add(1)
		go func(s Schedule) {
			defer t.wg.Done()
			t.fire(ctx, s)
		}(s)
	}
	return len(due)
}

func (t *Trigger) fire(ctx context.Context, s Schedule) {
	status := ""
	run, err := t.executor.Execute(ctx, s.WorkflowID, s.Input, "")
	if err != nil {
		status = string(types.GetErrorCode(err))
		t.logger.Warn("scheduled workflow rejected",
			zap.String("schedule_id", s.ID),
			zap.String("workflow_id", s.WorkflowID),
			zap.Error(err),
		)
	} else {
		status = string(run.Status)
		t.logger.Debug("scheduled workflow finished",
			zap.String("schedule_id", s.ID),
			zap.String("execution_id", run.ID),
			zap.String("status", status),
		)
	}

	t.mu.Lock()
	if cur, ok := t.schedules[s.ID]; ok {
		cur.LastStatus = status
	}
	t.mu.Unlock()
}

// Wait blocks until runs started by Fire have finished.
func (t *Trigger) Wait() { t.wg.Wait() }
