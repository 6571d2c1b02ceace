package store

import (
	"time"
)

// WorkflowRunModel 运行记录表
type WorkflowRunModel struct {
	ID            string     `gorm:"column:id;primaryKey;size:64"`
	WorkflowID    string     `gorm:"column:workflow_id;size:128;not null;index:idx_workflow_runs_workflow_id"`
	ActorID       string     `gorm:"column:actor_id;size:128;not null"`
	Status        string     `gorm:"column:status;size:16;not null;index:idx_workflow_runs_status"`
	Input         string     `gorm:"column:input;type:text;not null"`
	Output        string     `gorm:"column:output;type:text;not null"`
	StepGroups    string     `gorm:"column:step_groups;type:text;not null"`
	Error         string     `gorm:"column:error;type:text;not null"`
	ErrorCode     string     `gorm:"column:error_code;size:64;not null"`
	CheckpointSeq int        `gorm:"column:checkpoint_seq;not null"`
	StartedAt     time.Time  `gorm:"column:started_at;not null"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
}

// TableName implements gorm's Tabler.
func (WorkflowRunModel) TableName() string { return "workflow_runs" }

// StepRunModel 步骤记录表
type StepRunModel struct {
	RunID       string     `gorm:"column:run_id;primaryKey;size:64"`
	StepID      string     `gorm:"column:step_id;primaryKey;size:128"`
	Seq         int        `gorm:"column:seq;not null"`
	Type        string     `gorm:"column:type;size:64;not null"`
	Status      string     `gorm:"column:status;size:16;not null"`
	Input       string     `gorm:"column:input;type:text;not null"`
	Output      string     `gorm:"column:output;type:text;not null"`
	Error       string     `gorm:"column:error;type:text;not null"`
	ErrorCode   string     `gorm:"column:error_code;size:64;not null"`
	Attempts    int        `gorm:"column:attempts;not null"`
	StartedAt   time.Time  `gorm:"column:started_at;not null"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

// TableName implements gorm's Tabler.
func (StepRunModel) TableName() string { return "step_runs" }

// DeadLetterModel 死信表
type DeadLetterModel struct {
	ID          string    `gorm:"column:id;primaryKey;size:64"`
	WorkflowID  string    `gorm:"column:workflow_id;size:128;not null;index:idx_dead_letters_workflow_id"`
	ExecutionID string    `gorm:"column:execution_id;size:64;not null"`
	Input       string    `gorm:"column:input;type:text;not null"`
	Error       string    `gorm:"column:error;type:text;not null"`
	ErrorCode   string    `gorm:"column:error_code;size:64;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_dead_letters_created_at"`
}

// TableName implements gorm's Tabler.
func (DeadLetterModel) TableName() string { return "dead_letters" }

// Models lists every table model, for AutoMigrate.
func Models() []any {
	return []any{&WorkflowRunModel{}, &StepRunModel{}, &DeadLetterModel{}}
}
