package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/config"
	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/dsl"
)

// definitionLoader 把 YAML 定义目录同步到 Registry
type definitionLoader struct {
	dir      string
	parser   *dsl.Parser
	registry *workflow.Registry
	logger   *zap.Logger

	mu     sync.Mutex
	loaded map[string]struct{}
}

func newDefinitionLoader(dir string, parser *dsl.Parser, registry *workflow.Registry, logger *zap.Logger) *definitionLoader {
	return &definitionLoader{
		dir:      dir,
		parser:   parser,
		registry: registry,
		logger:   logger.With(zap.String("component", "definitions"), zap.String("dir", dir)),
		loaded:   make(map[string]struct{}),
	}
}

// Reload 重新解析目录并注册全部定义，返回注册成功的数量。
// 仅当目录内所有文件都解析成功时才注销已从目录消失的定义，
// 单个损坏文件不会让正在使用的定义下线
func (l *definitionLoader) Reload() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	defs, parseErr := l.parser.ParseDir(l.dir)
	current := make(map[string]struct{}, len(defs))
	registered := 0
	for _, def := range defs {
		if err := l.registry.Register(def); err != nil {
			l.logger.Warn("definition rejected", zap.String("workflow_id", def.ID), zap.Error(err))
			continue
		}
		current[def.ID] = struct{}{}
		registered++
	}

	if parseErr == nil {
		for id := range l.loaded {
			if _, ok := current[id]; !ok {
				l.registry.Unregister(id)
				l.logger.Info("definition removed", zap.String("workflow_id", id))
			}
		}
		l.loaded = current
	} else {
		for id := range current {
			l.loaded[id] = struct{}{}
		}
		l.logger.Warn("some definition files failed to parse", zap.Error(parseErr))
	}

	l.logger.Info("definitions loaded", zap.Int("count", registered))
	return registered, parseErr
}

// Watch 监听目录变化并在每次变化后 Reload，ctx 结束时停止
func (l *definitionLoader) Watch(ctx context.Context, interval time.Duration) (*config.FileWatcher, error) {
	watcher, err := config.NewFileWatcher([]string{l.dir},
		config.WithExtensions(".yaml", ".yml"),
		config.WithPollInterval(interval),
		config.WithWatcherLogger(l.logger),
	)
	if err != nil {
		return nil, err
	}
	watcher.OnChange(func(event config.FileEvent) {
		l.logger.Debug("definition file changed",
			zap.String("path", event.Path),
			zap.String("op", event.Op.String()))
		_, _ = l.Reload()
	})
	if err := watcher.Start(ctx); err != nil {
		return nil, err
	}
	return watcher, nil
}
