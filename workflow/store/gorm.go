package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/flowengine/internal/database"
	"github.com/BaSui01/flowengine/types"
	"github.com/BaSui01/flowengine/workflow"
	"github.com/BaSui01/flowengine/workflow/retry"
)

// ErrNotFound is returned by Load for unknown execution ids.
var ErrNotFound = workflow.ErrRunNotFound

var (
	_ workflow.CheckpointStore = (*GormStore)(nil)
	_ workflow.DeadLetterSink  = (*GormStore)(nil)
)

// stepColumns are rewritten when a checkpoint upserts an existing step row.
var stepColumns = []string{
	"seq", "type", "status", "input", "output",
	"error", "error_code", "attempts", "started_at", "completed_at",
}

// GormStore persists runs and dead letters through a database.PoolManager.
// Writes that fail with a transient database error (deadlock, lock
// contention, dropped connection) are retried as a whole transaction.
type GormStore struct {
	pool    *database.PoolManager
	logger  *zap.Logger
	retrier *retry.Wrapper
}

// Option configures a GormStore.
type Option func(*storeOptions)

type storeOptions struct {
	policy retry.Policy
}

// WithRetryPolicy replaces the write retry policy. A nil Retryable keeps
// database.IsRetryableError.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *storeOptions) {
		if p.Retryable == nil {
			p.Retryable = database.IsRetryableError
		}
		o.policy = p
	}
}

// DefaultRetryPolicy 写入重试：最多重试 2 次，只针对瞬时数据库错误
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: 2,
		BaseDelay:  25 * time.Millisecond,
		MaxDelay:   500 * time.Millisecond,
		Jitter:     10 * time.Millisecond,
		Retryable:  database.IsRetryableError,
	}
}

// NewGormStore creates a store on top of pool.
func NewGormStore(pool *database.PoolManager, logger *zap.Logger, opts ...Option) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := storeOptions{policy: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.With(zap.String("component", "workflow_store"))
	return &GormStore{
		pool:    pool,
		logger:  logger,
		retrier: retry.NewWrapper(o.policy, nil, nil, logger),
	}
}

// transact runs fn in a transaction, retrying the whole transaction on
// transient errors. Exhaustion surfaces as MAX_RETRIES_EXCEEDED wrapping
// the last database error.
func (s *GormStore) transact(ctx context.Context, op string, fn database.TransactionFunc) error {
	_, err := s.retrier.Call(ctx, retry.CallSpec{Method: "store." + op}, func(ctx context.Context) (any, error) {
		return nil, s.pool.WithTransaction(ctx, fn)
	})
	return err
}

// AutoMigrate creates the tables from the models. Production schemas come
// from internal/migration.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.pool.DB().WithContext(ctx).AutoMigrate(Models()...)
}

// Begin implements workflow.CheckpointStore.
func (s *GormStore) Begin(ctx context.Context, run *workflow.Execution) error {
	model, err := toRunModel(run)
	if err != nil {
		return err
	}
	steps, err := toStepModels(run)
	if err != nil {
		return err
	}
	err = s.transact(ctx, "begin", func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return upsertSteps(tx, steps)
	})
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

// Checkpoint implements workflow.CheckpointStore. The run row and every step
// row are written in one transaction.
func (s *GormStore) Checkpoint(ctx context.Context, run *workflow.Execution) error {
	if err := s.save(ctx, run, true); err != nil {
		return fmt.Errorf("checkpoint run %s: %w", run.ID, err)
	}
	s.logger.Debug("checkpoint written",
		zap.String("execution_id", run.ID),
		zap.Int("steps", len(run.Steps)),
	)
	return nil
}

// Complete implements workflow.CheckpointStore.
func (s *GormStore) Complete(ctx context.Context, run *workflow.Execution) error {
	if err := s.save(ctx, run, false); err != nil {
		return fmt.Errorf("complete run %s: %w", run.ID, err)
	}
	return nil
}

func (s *GormStore) save(ctx context.Context, run *workflow.Execution, checkpoint bool) error {
	model, err := toRunModel(run)
	if err != nil {
		return err
	}
	steps, err := toStepModels(run)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"status":       model.Status,
		"output":       model.Output,
		"step_groups":  model.StepGroups,
		"error":        model.Error,
		"error_code":   model.ErrorCode,
		"completed_at": model.CompletedAt,
		"updated_at":   time.Now(),
	}
	if checkpoint {
		updates["checkpoint_seq"] = gorm.Expr("checkpoint_seq + ?", 1)
	}

	op := "complete"
	if checkpoint {
		op = "checkpoint"
	}
	return s.transact(ctx, op, func(tx *gorm.DB) error {
		res := tx.Model(&WorkflowRunModel{}).Where("id = ?", run.ID).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update run: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return upsertSteps(tx, steps)
	})
}

func upsertSteps(tx *gorm.DB, steps []StepRunModel) error {
	if len(steps) == 0 {
		return nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "step_id"}},
		DoUpdates: clause.AssignmentColumns(stepColumns),
	}).Create(&steps).Error
	if err != nil {
		return fmt.Errorf("upsert steps: %w", err)
	}
	return nil
}

// Load implements workflow.CheckpointStore. Numbers in inputs and outputs
// come back as float64.
func (s *GormStore) Load(ctx context.Context, executionID string) (*workflow.Execution, error) {
	db := s.pool.DB().WithContext(ctx)

	var model WorkflowRunModel
	if err := db.Where("id = ?", executionID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load run %s: %w", executionID, err)
	}
	var steps []StepRunModel
	if err := db.Where("run_id = ?", executionID).Order("seq").Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("load steps of %s: %w", executionID, err)
	}
	return fromModels(&model, steps)
}

// CheckpointSeq returns how many checkpoints a run has written.
func (s *GormStore) CheckpointSeq(ctx context.Context, executionID string) (int, error) {
	var model WorkflowRunModel
	err := s.pool.DB().WithContext(ctx).
		Select("checkpoint_seq").
		Where("id = ?", executionID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	return model.CheckpointSeq, err
}

// Record implements workflow.DeadLetterSink. Input is masked before it is
// written.
func (s *GormStore) Record(ctx context.Context, dl workflow.DeadLetter) error {
	if dl.ID == "" {
		dl.ID = workflow.NewDeadLetterID()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}
	input, err := encode(types.MaskMap(dl.Input))
	if err != nil {
		return err
	}
	model := &DeadLetterModel{
		ID:          dl.ID,
		WorkflowID:  dl.WorkflowID,
		ExecutionID: dl.ExecutionID,
		Input:       input,
		Error:       dl.Error,
		ErrorCode:   dl.ErrorCode,
		CreatedAt:   dl.CreatedAt,
	}
	err = s.transact(ctx, "record_dead_letter", func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}
	s.logger.Info("dead letter recorded",
		zap.String("workflow_id", dl.WorkflowID),
		zap.String("execution_id", dl.ExecutionID),
		zap.String("error_code", dl.ErrorCode),
	)
	return nil
}

// List implements workflow.DeadLetterSink, newest first. Empty workflowID
// lists all; limit <= 0 means no limit.
func (s *GormStore) List(ctx context.Context, workflowID string, limit int) ([]workflow.DeadLetter, error) {
	q := s.pool.DB().WithContext(ctx).Order("created_at DESC")
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []DeadLetterModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	out := make([]workflow.DeadLetter, 0, len(models))
	for _, m := range models {
		input, err := decodeMap(m.Input)
		if err != nil {
			return nil, err
		}
		out = append(out, workflow.DeadLetter{
			ID:          m.ID,
			WorkflowID:  m.WorkflowID,
			ExecutionID: m.ExecutionID,
			Input:       input,
			Error:       m.Error,
			ErrorCode:   m.ErrorCode,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}

// =============================================================================
// 模型转换
// =============================================================================

func toRunModel(run *workflow.Execution) (*WorkflowRunModel, error) {
	input, err := encode(run.Input)
	if err != nil {
		return nil, err
	}
	output, err := encode(run.Output)
	if err != nil {
		return nil, err
	}
	groups := run.Groups
	if groups == nil {
		groups = [][]string{}
	}
	stepGroups, err := json.Marshal(groups)
	if err != nil {
		return nil, fmt.Errorf("encode groups: %w", err)
	}
	return &WorkflowRunModel{
		ID:          run.ID,
		WorkflowID:  run.WorkflowID,
		ActorID:     run.ActorID,
		Status:      string(run.Status),
		Input:       input,
		Output:      output,
		StepGroups:  string(stepGroups),
		Error:       run.Error,
		ErrorCode:   run.ErrorCode,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		UpdatedAt:   time.Now(),
	}, nil
}

func toStepModels(run *workflow.Execution) ([]StepRunModel, error) {
	out := make([]StepRunModel, 0, len(run.Steps))
	for i, r := range run.Steps {
		input, err := encode(r.Input)
		if err != nil {
			return nil, err
		}
		output, err := encode(r.Output)
		if err != nil {
			return nil, err
		}
		out = append(out, StepRunModel{
			RunID:       run.ID,
			StepID:      r.StepID,
			Seq:         i,
			Type:        string(r.Type),
			Status:      string(r.Status),
			Input:       input,
			Output:      output,
			Error:       r.Error,
			ErrorCode:   r.ErrorCode,
			Attempts:    r.Attempts,
			StartedAt:   r.StartedAt,
			CompletedAt: r.CompletedAt,
		})
	}
	return out, nil
}

func fromModels(m *WorkflowRunModel, steps []StepRunModel) (*workflow.Execution, error) {
	input, err := decodeMap(m.Input)
	if err != nil {
		return nil, err
	}
	output, err := decodeMap(m.Output)
	if err != nil {
		return nil, err
	}
	if output == nil {
		output = map[string]any{}
	}
	var groups [][]string
	if m.StepGroups != "" {
		if err := json.Unmarshal([]byte(m.StepGroups), &groups); err != nil {
			return nil, fmt.Errorf("decode groups: %w", err)
		}
	}

	run := &workflow.Execution{
		ID:          m.ID,
		WorkflowID:  m.WorkflowID,
		ActorID:     m.ActorID,
		Status:      workflow.ExecutionStatus(m.Status),
		Input:       input,
		Output:      output,
		Steps:       make([]workflow.StepRecord, 0, len(steps)),
		Groups:      groups,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Error:       m.Error,
		ErrorCode:   m.ErrorCode,
	}
	for _, sm := range steps {
		stepInput, err := decodeMap(sm.Input)
		if err != nil {
			return nil, err
		}
		stepOutput, err := decodeMap(sm.Output)
		if err != nil {
			return nil, err
		}
		run.Steps = append(run.Steps, workflow.StepRecord{
			StepID:      sm.StepID,
			Type:        workflow.StepType(sm.Type),
			Status:      workflow.StepStatus(sm.Status),
			Input:       stepInput,
			Output:      stepOutput,
			Error:       sm.Error,
			ErrorCode:   sm.ErrorCode,
			Attempts:    sm.Attempts,
			StartedAt:   sm.StartedAt,
			CompletedAt: sm.CompletedAt,
		})
	}
	return run, nil
}

func encode(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

// decodeMap 空对象解码为 nil
func decodeMap(s string) (map[string]any, error) {
	if s == "" || s == "{}" || s == "null" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return m, nil
}
