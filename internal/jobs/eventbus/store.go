package eventbus

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
)

// EventStore persists an event together with its per-pipeline deliveries.
// Both writes happen atomically.
type EventStore interface {
	Append(ctx context.Context, ev *pipeline.Event, pipelineIDs []string) error
}

// Queue is the dispatcher's view of pending work.
type Queue interface {
	// AdmitNext turns the oldest queued delivery of pipelineID into a pending
	// run. With limit > 0 it admits nothing while limit runs of the pipeline
	// are pending or running, counted across every process sharing the
	// store. It returns nil when nothing is admitted.
	AdmitNext(ctx context.Context, pipelineID string, limit int) (*pipeline.PipelineRun, error)
	MarkDone(ctx context.Context, runID uuid.UUID) error
	// Unfinished lists pending and running runs, oldest first.
	Unfinished(ctx context.Context) ([]*pipeline.PipelineRun, error)
}

func newRun(ev *pipeline.Event, pipelineID string) *pipeline.PipelineRun {
	now := ev.EnqueuedAt
	return &pipeline.PipelineRun{
		ID:         uuid.New(),
		PipelineID: pipelineID,
		EventID:    ev.ID,
		EventName:  ev.Name,
		EventData:  ev.Data,
		Status:     pipeline.RunPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
