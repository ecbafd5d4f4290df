package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StepPending   = "pending"
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
)

// StepRecord is unique per (run_id, step_name). Owner and LeaseUntil mark the
// worker currently executing a pending step.
type StepRecord struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID        uuid.UUID      `gorm:"type:uuid;column:run_id;not null;uniqueIndex:idx_step_run_name,priority:1" json:"run_id"`
	StepName     string         `gorm:"column:step_name;not null;uniqueIndex:idx_step_run_name,priority:2" json:"step_name"`
	StepIndex    int            `gorm:"column:step_index;not null" json:"step_index"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Output       datatypes.JSON `gorm:"column:output;type:jsonb" json:"output,omitempty"`
	ErrorKind    string         `gorm:"column:error_kind" json:"error_kind,omitempty"`
	ErrorMessage string         `gorm:"column:error_message" json:"error_message,omitempty"`
	Owner        string         `gorm:"column:owner" json:"owner,omitempty"`
	LeaseUntil   *time.Time     `gorm:"column:lease_until" json:"lease_until,omitempty"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt   *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (StepRecord) TableName() string { return "pipeline_step" }

func (s *StepRecord) Succeeded() bool { return s != nil && s.Status == StepSucceeded }
