package workflow

import (
	"sort"
	"sync"

	"github.com/BaSui01/flowengine/types"
	"go.uber.org/zap"
)

// Registry holds the known workflow definitions by id.
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]*Definition
	listeners []func(workflowID string)
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		defs:   make(map[string]*Definition),
		logger: logger.With(zap.String("component", "workflow_registry")),
	}
}

// OnChange registers fn to run after a definition is registered or removed.
func (r *Registry) OnChange(fn func(workflowID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Register validates def and stores a copy, replacing any definition with
// the same id.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	cp := def.Clone()

	r.mu.Lock()
	_, replaced := r.defs[cp.ID]
	r.defs[cp.ID] = cp
	listeners := append([]func(string){}, r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(cp.ID)
	}
	r.logger.Info("workflow registered",
		zap.String("workflow_id", cp.ID),
		zap.Int("steps", len(cp.Steps)),
		zap.Bool("replaced", replaced),
	)
	return nil
}

// MustRegister registers def and panics on a structural error.
func (r *Registry) MustRegister(def *Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns a copy of the definition or WORKFLOW_NOT_FOUND.
func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	def, ok := r.defs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, types.Errorf(types.ErrWorkflowNotFound, "workflow %s not found", id).
			WithDetail("workflowId", id)
	}
	return def.Clone(), nil
}

// List returns copies of all definitions sorted by id.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unregister removes a definition and reports whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	_, ok := r.defs[id]
	delete(r.defs, id)
	listeners := append([]func(string){}, r.listeners...)
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, fn := range listeners {
		fn(id)
	}
	r.logger.Info("workflow unregistered", zap.String("workflow_id", id))
	return true
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}
