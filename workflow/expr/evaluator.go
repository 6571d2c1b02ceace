package expr

import (
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/types"
)

// ConditionEvaluator evaluates step conditions and never fails the caller.
// Any parse or evaluation error is logged and yields false.
type ConditionEvaluator struct {
	logger *zap.Logger
}

// NewConditionEvaluator creates a condition evaluator.
func NewConditionEvaluator(logger *zap.Logger) *ConditionEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConditionEvaluator{logger: logger.With(zap.String("component", "condition_evaluator"))}
}

// Evaluate returns the boolean value of condition, or false on any failure.
func (c *ConditionEvaluator) Evaluate(condition string, vars map[string]any) bool {
	ok, err := Evaluate(condition, vars)
	if err != nil {
		c.logger.Warn("condition evaluation failed",
			zap.String("condition", condition),
			zap.String("code", string(types.ErrConditionEvaluationFailed)),
			zap.Any("vars", types.MaskMap(vars)),
			zap.Error(err))
		return false
	}
	return ok
}
