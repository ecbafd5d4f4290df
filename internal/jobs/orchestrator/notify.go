package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Update describes one run or step status change.
type Update struct {
	RunID      uuid.UUID `json:"run_id"`
	PipelineID string    `json:"pipeline_id"`
	RunStatus  string    `json:"run_status"`
	Step       string    `json:"step,omitempty"`
	StepStatus string    `json:"step_status,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier receives status changes. Implementations must not block the run
// for long and must not fail it: delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, u Update)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Update) {}

// Notifiers fans out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, u Update) {
	for _, n := range ns {
		if n != nil {
			n.Notify(ctx, u)
		}
	}
}
