package breaker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry 熔断器注册表，按依赖名懒创建熔断器
type Registry struct {
	breakers  map[string]*Breaker
	config    Config
	overrides map[string]Config
	handlers  []EventHandler
	now       func() time.Time
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewRegistry 创建熔断器注册表
func NewRegistry(config Config, logger *zap.Logger, handlers ...EventHandler) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		breakers:  make(map[string]*Breaker),
		config:    config,
		overrides: make(map[string]Config),
		handlers:  handlers,
		now:       time.Now,
		logger:    logger,
	}
}

// Configure 为指定依赖设置独立配置，须在首次 Get 之前调用
func (r *Registry) Configure(name string, config Config) {
	r.mu.Lock()
	r.overrides[name] = config
	r.mu.Unlock()
}

// Subscribe 追加状态变更处理器，只影响之后创建的熔断器
func (r *Registry) Subscribe(h EventHandler) {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// Get 获取或创建依赖的熔断器
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	if b, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return b
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// 双重检查
	if b, ok := r.breakers[name]; ok {
		return b
	}

	cfg := r.config
	if o, ok := r.overrides[name]; ok {
		cfg = o
	}
	b := New(name, cfg, r.logger, r.handlers...)
	b.now = r.now
	r.breakers[name] = b
	return b
}

// Names 返回已创建的熔断器名称（有序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots 获取所有熔断器的统计快照
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Snapshot, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Snapshot()
	}
	return out
}

// ResetAll 重置所有熔断器
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.breakers {
		b.Reset()
	}
}
