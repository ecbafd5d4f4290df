package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event is immutable once enqueued.
type Event struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string         `gorm:"column:name;not null;index" json:"name"`
	Data       datatypes.JSON `gorm:"column:data;type:jsonb" json:"data"`
	EnqueuedAt time.Time      `gorm:"column:enqueued_at;not null;index" json:"enqueued_at"`
}

func (Event) TableName() string { return "pipeline_event" }

const (
	DeliveryQueued   = "queued"
	DeliveryAdmitted = "admitted"
	DeliveryDone     = "done"
)

// Delivery is one event routed to one subscribed pipeline. ID is assigned by
// the database in insertion order, which makes it the FIFO key per pipeline.
type Delivery struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID    uuid.UUID  `gorm:"type:uuid;column:event_id;not null;index" json:"event_id"`
	PipelineID string     `gorm:"column:pipeline_id;not null;index:idx_delivery_pipeline_status,priority:1" json:"pipeline_id"`
	Status     string     `gorm:"column:status;not null;index:idx_delivery_pipeline_status,priority:2" json:"status"`
	RunID      *uuid.UUID `gorm:"type:uuid;column:run_id;index" json:"run_id,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}

func (Delivery) TableName() string { return "pipeline_delivery" }
