package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePlaceholders(t *testing.T) {
	vars := map[string]any{
		"leaseId": 123,
		"tenant":  map[string]any{"name": "Ann"},
		"active":  true,
		"input":   map[string]any{"userId": "u-9"},
	}

	got := ResolvePlaceholders(map[string]any{
		"whole":    "${leaseId}",
		"embedded": "lease ${leaseId} for ${tenant.name}",
		"bool":     "${active}",
		"unknown":  "${nope}",
		"mixed":    "x ${nope} y",
		"nested":   map[string]any{"user": "${input.userId}"},
		"list":     []any{"${leaseId}", "plain", 4},
		"number":   42,
	}, vars)

	assert.Equal(t, 123, got["whole"])
	assert.Equal(t, "lease 123 for Ann", got["embedded"])
	assert.Equal(t, true, got["bool"])
	assert.Equal(t, "${nope}", got["unknown"])
	assert.Equal(t, "x ${nope} y", got["mixed"])
	assert.Equal(t, map[string]any{"user": "u-9"}, got["nested"])
	assert.Equal(t, []any{123, "plain", 4}, got["list"])
	assert.Equal(t, 42, got["number"])
}

func TestResolvePlaceholders_NilInput(t *testing.T) {
	assert.Equal(t, map[string]any{}, ResolvePlaceholders(nil, map[string]any{"a": 1}))
}

func TestScopeVars_OutputWins(t *testing.T) {
	vars := scopeVars(map[string]any{"k": "in", "only": 1}, map[string]any{"k": "out"})

	assert.Equal(t, "out", vars["k"])
	assert.Equal(t, 1, vars["only"])
	assert.Equal(t, map[string]any{"k": "in", "only": 1}, vars["input"])
	assert.Equal(t, map[string]any{"k": "out"}, vars["output"])
}
