package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
)

var (
	// ErrStepHeld means another live worker owns the step lease.
	ErrStepHeld    = errors.New("step is held by another worker")
	ErrRunNotFound = errors.New("run not found")
)

// StepClaim asks for exclusive execution rights on (RunID, StepName).
type StepClaim struct {
	RunID     uuid.UUID
	StepName  string
	StepIndex int
	Owner     string
	Until     time.Time
	Now       time.Time
}

// StepStore persists StepRecords keyed by (run_id, step_name).
//
// ClaimStep creates the record when missing, or takes over a pending one
// whose lease expired or that Owner already holds. A succeeded or failed
// record is returned as is. Any other pending record yields ErrStepHeld.
//
// CompleteStep is the compare-and-set that makes memoization safe: it only
// writes while the record is pending and still owned by rec.Owner, and
// reports whether it won. FailStep carries the same guard, so a worker whose
// lease was taken over can never overwrite the new owner's outcome.
type StepStore interface {
	ListSteps(ctx context.Context, runID uuid.UUID) ([]*pipeline.StepRecord, error)
	GetStep(ctx context.Context, runID uuid.UUID, stepName string) (*pipeline.StepRecord, error)
	ClaimStep(ctx context.Context, c StepClaim) (*pipeline.StepRecord, error)
	RecordAttempt(ctx context.Context, rec *pipeline.StepRecord) error
	CompleteStep(ctx context.Context, rec *pipeline.StepRecord) (bool, error)
	FailStep(ctx context.Context, rec *pipeline.StepRecord) error
}

// RunTransition is applied only when the run's current status is one of From.
type RunTransition struct {
	From        []string
	To          string
	Output      datatypes.JSON
	ErrorKind   string
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*pipeline.PipelineRun, error)
	TransitionRun(ctx context.Context, id uuid.UUID, t RunTransition) (bool, error)
}

// claimable reports whether owner may (re)take a pending record at now.
func claimable(rec *pipeline.StepRecord, owner string, now time.Time) bool {
	if rec.Status != pipeline.StepPending {
		return false
	}
	if rec.Owner == owner || rec.Owner == "" {
		return true
	}
	return rec.LeaseUntil == nil || rec.LeaseUntil.Before(now)
}
