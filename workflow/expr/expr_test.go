package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

// =============================================================================
// Evaluate unit tests
// =============================================================================

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		vars     map[string]any
		expected bool
		wantErr  bool
	}{
		// --- Comparison operators ---
		{name: "greater than true", expr: `score > 0.8`, vars: map[string]any{"score": 0.9}, expected: true},
		{name: "greater than false", expr: `score > 0.8`, vars: map[string]any{"score": 0.5}, expected: false},
		{name: "equal string", expr: `status == "active"`, vars: map[string]any{"status": "active"}, expected: true},
		{name: "single quoted string", expr: `status == 'active'`, vars: map[string]any{"status": "active"}, expected: true},
		{name: "strict equality alias", expr: `priority === "HIGH"`, vars: map[string]any{"priority": "HIGH"}, expected: true},
		{name: "strict inequality alias", expr: `priority !== "HIGH"`, vars: map[string]any{"priority": "LOW"}, expected: true},
		{name: "int against float literal", expr: `count >= 3`, vars: map[string]any{"count": 3}, expected: true},

		// --- Placeholders ---
		{name: "placeholder", expr: `${riskLevel} == "HIGH"`, vars: map[string]any{"riskLevel": "HIGH"}, expected: true},
		{name: "placeholder numeric", expr: `${renewalProbability} < 0.5`, vars: map[string]any{"renewalProbability": 0.3}, expected: true},

		// --- Logical ---
		{name: "and", expr: `a > 1 && b < 2`, vars: map[string]any{"a": 2, "b": 1}, expected: true},
		{name: "or", expr: `a > 5 || b < 2`, vars: map[string]any{"a": 2, "b": 1}, expected: true},
		{name: "not", expr: `!done`, vars: map[string]any{"done": false}, expected: true},
		{name: "parentheses", expr: `(a > 5 || b < 2) && c`, vars: map[string]any{"a": 2, "b": 1, "c": true}, expected: true},
		{name: "or short-circuits undefined", expr: `a == 1 || missing == 2`, vars: map[string]any{"a": 1}, expected: true},
		{name: "and short-circuits undefined", expr: `a == 2 && missing.x > 1`, vars: map[string]any{"a": 1}, expected: false},
		{name: "null guard", expr: `lease != null && lease.rent > 1000`, vars: map[string]any{"lease": nil}, expected: false},
		{name: "null guard passes", expr: `lease != null && lease.rent > 1000`, vars: map[string]any{"lease": map[string]any{"rent": 1200}}, expected: true},
		{name: "short-circuit skips division", expr: `ok || 1 / 0 > 0`, vars: map[string]any{"ok": true}, expected: true},
		{name: "nested short-circuit", expr: `a == 1 || (ghost > 1 && other)`, vars: map[string]any{"a": 1}, expected: true},
		{name: "or evaluates right when needed", expr: `a == 2 || missing == 2`, vars: map[string]any{"a": 1}, wantErr: true},
		{name: "and evaluates right when needed", expr: `a == 1 && missing == 2`, vars: map[string]any{"a": 1}, wantErr: true},
		{name: "skipped operand still parsed", expr: `a == 1 || (b >`, vars: map[string]any{"a": 1}, wantErr: true},

		// --- Arithmetic ---
		{name: "precedence", expr: `1 + 2 * 3 == 7`, expected: true},
		{name: "modulo", expr: `n % 2 == 0`, vars: map[string]any{"n": 4}, expected: true},
		{name: "unary minus", expr: `-x < 0`, vars: map[string]any{"x": 3}, expected: true},
		{name: "subtraction", expr: `total - paid > 100`, vars: map[string]any{"total": 500, "paid": 350}, expected: true},
		{name: "string concat", expr: `a + "-" + b == "x-y"`, vars: map[string]any{"a": "x", "b": "y"}, expected: true},

		// --- Dot paths ---
		{name: "nested field", expr: `lease.status == "ACTIVE"`, vars: map[string]any{"lease": map[string]any{"status": "ACTIVE"}}, expected: true},
		{name: "null literal", expr: `value == null`, vars: map[string]any{"value": nil}, expected: true},
		{name: "bare truthy", expr: `true`, expected: true},

		// --- Failures ---
		{name: "undefined variable", expr: `missing > 1`, vars: map[string]any{}, wantErr: true},
		{name: "undefined nested", expr: `lease.owner == "x"`, vars: map[string]any{"lease": map[string]any{}}, wantErr: true},
		{name: "division by zero", expr: `1 / 0 > 0`, wantErr: true},
		{name: "non numeric arithmetic", expr: `a * 2 > 0`, vars: map[string]any{"a": "x"}, wantErr: true},
		{name: "unterminated string", expr: `a == "x`, vars: map[string]any{"a": "x"}, wantErr: true},
		{name: "host code rejected", expr: `process.exit(1)`, wantErr: true},
		{name: "semicolon rejected", expr: `a; b`, vars: map[string]any{"a": 1, "b": 2}, wantErr: true},
		{name: "empty", expr: `   `, wantErr: true},
		{name: "dangling operator", expr: `a >`, vars: map[string]any{"a": 1}, wantErr: true},
		{name: "unbalanced parens", expr: `(a > 1`, vars: map[string]any{"a": 2}, wantErr: true},
		{name: "empty placeholder", expr: `${} == 1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, tt.vars)
			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluate_UndefinedVariableSentinel(t *testing.T) {
	_, err := Evaluate(`${ghost} == 1`, map[string]any{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndefinedVariable)
}

func TestConditionEvaluator_FailureIsFalse(t *testing.T) {
	ce := NewConditionEvaluator(zaptest.NewLogger(t))

	assert.False(t, ce.Evaluate(`nope ==`, nil))
	assert.False(t, ce.Evaluate(`ghost > 1`, map[string]any{}))
	assert.True(t, ce.Evaluate(`x == 1`, map[string]any{"x": 1}))
	assert.True(t, ce.Evaluate(`x == 1 || ghost > 1`, map[string]any{"x": 1}))
}

func TestConditionEvaluator_NilLogger(t *testing.T) {
	ce := NewConditionEvaluator(nil)
	assert.False(t, ce.Evaluate(`(`, nil))
}

// Property: integer comparisons agree with Go semantics.
func TestProperty_IntegerComparison(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.IntRange(-1000, 1000).Draw(rt, "a")
		b := rapid.IntRange(-1000, 1000).Draw(rt, "b")
		vars := map[string]any{"a": a, "b": b}

		lt, err := Evaluate(`a < b`, vars)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if lt != (a < b) {
			rt.Fatalf("a < b mismatch for %d, %d", a, b)
		}

		sum, err := Evaluate(`a + b == ${b} + ${a}`, vars)
		if err != nil || !sum {
			rt.Fatalf("addition must commute for %d, %d (err=%v)", a, b, err)
		}
	})
}

func TestCheck(t *testing.T) {
	for _, ok := range []string{
		`lease.status == "ACTIVE"`,
		`${renewalProbability} > 0.3 && !expired`,
		`(a + b) / c >= 2`,
		`-score < 0`,
	} {
		assert.NoError(t, Check(ok), ok)
	}
	for _, bad := range []string{``, `a ==`, `(a > 1`, `a > 1 )`, `"unterminated`} {
		assert.Error(t, Check(bad), bad)
	}
}
