package workflow

import (
	"context"
	"sort"
	"sync"
)

// StepContext carries what a step handler may read.
type StepContext struct {
	ExecutionID string
	WorkflowID  string
	ActorID     string
	Step        Step
	// Input is the step input after placeholder resolution.
	Input map[string]any
	// Vars is the workflow input overlaid with the output accumulated so far.
	Vars map[string]any
	// Attempt counts from 1.
	Attempt int
}

// Handler performs one step and returns its output.
type Handler func(ctx context.Context, sc StepContext) (map[string]any, error)

// HandlerTable maps step kinds and custom handler names to handlers.
type HandlerTable struct {
	mu     sync.RWMutex
	kinds  map[StepType]Handler
	custom map[string]Handler
}

// NewHandlerTable creates an empty table.
func NewHandlerTable() *HandlerTable {
	return &HandlerTable{
		kinds:  make(map[StepType]Handler),
		custom: make(map[string]Handler),
	}
}

// RegisterKind binds a handler to a built-in step type.
func (t *HandlerTable) RegisterKind(kind StepType, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kinds[kind] = h
}

// RegisterCustom binds a handler to a CUSTOM handler name.
func (t *HandlerTable) RegisterCustom(name string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.custom[name] = h
}

// Kind returns the handler for a step type.
func (t *HandlerTable) Kind(kind StepType) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.kinds[kind]
	return h, ok
}

// Custom returns the handler registered under name.
func (t *HandlerTable) Custom(name string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.custom[name]
	return h, ok
}

// CustomNames lists registered custom handler names.
func (t *HandlerTable) CustomNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.custom))
	for n := range t.custom {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolve finds the handler a step dispatches to.
func (t *HandlerTable) resolve(s Step) (Handler, bool) {
	if s.Type == StepCustom {
		return t.Custom(s.HandlerName())
	}
	return t.Kind(s.Type)
}
