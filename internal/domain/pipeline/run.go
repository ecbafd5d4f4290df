package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

type PipelineRun struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PipelineID  string         `gorm:"column:pipeline_id;not null;index" json:"pipeline_id"`
	EventID     uuid.UUID      `gorm:"type:uuid;column:event_id;not null;index" json:"event_id"`
	EventName   string         `gorm:"column:event_name;not null" json:"event_name"`
	EventData   datatypes.JSON `gorm:"column:event_data;type:jsonb" json:"event_data"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Output      datatypes.JSON `gorm:"column:output;type:jsonb" json:"output,omitempty"`
	ErrorKind   string         `gorm:"column:error_kind" json:"error_kind,omitempty"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (PipelineRun) TableName() string { return "pipeline_run" }

func (r *PipelineRun) Terminal() bool {
	return r != nil && (r.Status == RunSucceeded || r.Status == RunFailed)
}
