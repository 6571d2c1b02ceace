package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/dsl"
)

func writeDefinition(t *testing.T, dir, file, id string) {
	t.Helper()
	src := fmt.Sprintf(`version: "1"
id: %s
name: %s
steps:
  - id: notify
    type: SEND_NOTIFICATION
    input:
      userId: ${input.userId}
`, id, id)
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(src), 0o644))
}

func newTestLoader(t *testing.T, dir string) (*definitionLoader, *workflow.Registry) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := workflow.NewRegistry(logger)
	return newDefinitionLoader(dir, dsl.NewParser(), registry, logger), registry
}

func TestDefinitionLoader_Reload(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "a.yaml", "alpha")
	writeDefinition(t, dir, "b.yml", "beta")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	loader, registry := newTestLoader(t, dir)

	n, err := loader.Reload()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = registry.Get("alpha")
	assert.NoError(t, err)
	_, err = registry.Get("beta")
	assert.NoError(t, err)

	// 删除文件后定义下线
	require.NoError(t, os.Remove(filepath.Join(dir, "b.yml")))
	n, err = loader.Reload()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = registry.Get("beta")
	assert.Error(t, err)
}

func TestDefinitionLoader_BrokenFileKeepsLiveDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "a.yaml", "alpha")
	writeDefinition(t, dir, "b.yaml", "beta")

	loader, registry := newTestLoader(t, dir)
	_, err := loader.Reload()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("id: [broken"), 0o644))
	n, err := loader.Reload()
	require.Error(t, err)
	assert.Equal(t, 1, n)

	_, err = registry.Get("beta")
	assert.NoError(t, err, "a parse failure must not drop the running definition")

	// 修复后再次删除，下线仍然生效
	require.NoError(t, os.Remove(filepath.Join(dir, "b.yaml")))
	_, err = loader.Reload()
	require.NoError(t, err)
	_, err = registry.Get("beta")
	assert.Error(t, err)
}

func TestDefinitionLoader_KeepsOtherDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "a.yaml", "alpha")

	loader, registry := newTestLoader(t, dir)
	registry.MustRegister(&workflow.Definition{
		ID:   "api-registered",
		Name: "registered over HTTP",
		Steps: []workflow.Step{{
			ID:   "notify",
			Type: workflow.StepSendNotification,
		}},
	})

	_, err := loader.Reload()
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "a.yaml")))
	_, err = loader.Reload()
	require.NoError(t, err)

	_, err = registry.Get("api-registered")
	assert.NoError(t, err)
	assert.Equal(t, 1, registry.Len())
}

func TestDefinitionLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	loader, registry := newTestLoader(t, dir)
	_, err := loader.Reload()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher, err := loader.Watch(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	defer watcher.Stop()

	writeDefinition(t, dir, "late.yaml", "late")

	require.Eventually(t, func() bool {
		_, err := registry.Get("late")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}
