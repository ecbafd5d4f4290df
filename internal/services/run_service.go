package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/hypermind-backend/internal/data/repos/pipelines"
	types "github.com/yungbote/hypermind-backend/internal/domain"
	"github.com/yungbote/hypermind-backend/internal/jobs/registry"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/apierr"
	"github.com/yungbote/hypermind-backend/internal/platform/dbctx"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

// Publisher is the event bus as seen by the API.
type Publisher interface {
	Publish(ctx context.Context, name string, payload any) (uuid.UUID, error)
}

type StepInfo struct {
	Name           string `json:"name"`
	MaxAttempts    int    `json:"max_attempts"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type PipelineInfo struct {
	ID          string     `json:"id"`
	Events      []string   `json:"events"`
	Concurrency int        `json:"concurrency"`
	Running     int        `json:"running"`
	Steps       []StepInfo `json:"steps"`
}

// EventRuns is one event with where each of its deliveries stands.
type EventRuns struct {
	Event      *types.Event         `json:"event"`
	Deliveries []*types.Delivery    `json:"deliveries"`
	Runs       []*types.PipelineRun `json:"runs"`
}

type RunService interface {
	Publish(dbc dbctx.Context, name string, payload any) (uuid.UUID, error)
	GetRun(dbc dbctx.Context, id uuid.UUID) (*types.PipelineRun, error)
	ListSteps(dbc dbctx.Context, runID uuid.UUID) ([]*types.StepRecord, error)
	ListRuns(dbc dbctx.Context, f pipelines.RunFilter) ([]*types.PipelineRun, error)
	EventRuns(dbc dbctx.Context, eventID uuid.UUID) (*EventRuns, error)
	Pipelines() []PipelineInfo
}

type runService struct {
	log        *logger.Logger
	bus        Publisher
	reg        *registry.Registry
	gate       *registry.Gate
	events     pipelines.EventRepo
	deliveries pipelines.DeliveryRepo
	runs       pipelines.RunRepo
	steps      pipelines.StepRepo
}

// NewRunService reads runs straight from the database. gate may be nil in
// processes that do not dispatch; Running is then always 0.
func NewRunService(db *gorm.DB, baseLog *logger.Logger, bus Publisher, reg *registry.Registry, gate *registry.Gate) RunService {
	return &runService{
		log:        baseLog.With("service", "RunService"),
		bus:        bus,
		reg:        reg,
		gate:       gate,
		events:     pipelines.NewEventRepo(db, baseLog),
		deliveries: pipelines.NewDeliveryRepo(db, baseLog),
		runs:       pipelines.NewRunRepo(db, baseLog),
		steps:      pipelines.NewStepRepo(db, baseLog),
	}
}

func (s *runService) Publish(dbc dbctx.Context, name string, payload any) (uuid.UUID, error) {
	if s.bus == nil {
		return uuid.Nil, apierr.New(http.StatusServiceUnavailable, "bus_unavailable", fmt.Errorf("event bus not configured"))
	}
	id, err := s.bus.Publish(dbc.Ctx, name, payload)
	if err != nil {
		var ve *jobrt.ValidationError
		if errors.As(err, &ve) {
			return uuid.Nil, apierr.New(http.StatusBadRequest, "invalid_event", err)
		}
		s.log.Error("publish failed", "event", name, "error", err)
		return uuid.Nil, err
	}
	return id, nil
}

func (s *runService) GetRun(dbc dbctx.Context, id uuid.UUID) (*types.PipelineRun, error) {
	run, err := s.runs.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apierr.New(http.StatusNotFound, "run_not_found", fmt.Errorf("run %s: %w", id, apierr.ErrNotFound))
	}
	return run, nil
}

func (s *runService) ListSteps(dbc dbctx.Context, runID uuid.UUID) ([]*types.StepRecord, error) {
	if _, err := s.GetRun(dbc, runID); err != nil {
		return nil, err
	}
	return s.steps.ListByRun(dbc, runID)
}

func (s *runService) ListRuns(dbc dbctx.Context, f pipelines.RunFilter) ([]*types.PipelineRun, error) {
	if f.PipelineID != "" && s.reg != nil {
		if _, ok := s.reg.Get(f.PipelineID); !ok {
			return nil, apierr.New(http.StatusBadRequest, "unknown_pipeline", fmt.Errorf("pipeline %q: %w", f.PipelineID, apierr.ErrInvalidArgument))
		}
	}
	return s.runs.List(dbc, f)
}

func (s *runService) EventRuns(dbc dbctx.Context, eventID uuid.UUID) (*EventRuns, error) {
	ev, err := s.events.GetByID(dbc, eventID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, apierr.New(http.StatusNotFound, "event_not_found", fmt.Errorf("event %s: %w", eventID, apierr.ErrNotFound))
	}
	deliveries, err := s.deliveries.ListByEvent(dbc, eventID)
	if err != nil {
		return nil, err
	}
	runs, err := s.runs.ListByEvent(dbc, eventID)
	if err != nil {
		return nil, err
	}
	return &EventRuns{Event: ev, Deliveries: deliveries, Runs: runs}, nil
}

func (s *runService) Pipelines() []PipelineInfo {
	if s.reg == nil {
		return nil
	}
	defs := s.reg.Definitions()
	out := make([]PipelineInfo, 0, len(defs))
	for _, d := range defs {
		info := PipelineInfo{
			ID:          d.ID,
			Events:      append([]string(nil), d.Events...),
			Concurrency: d.Concurrency,
			Steps:       make([]StepInfo, 0, len(d.Steps)),
		}
		if s.gate != nil {
			info.Running = s.gate.Running(d.ID)
		}
		for _, st := range d.Steps {
			info.Steps = append(info.Steps, StepInfo{
				Name:           st.Name,
				MaxAttempts:    st.Retry.Attempts(),
				TimeoutSeconds: int(st.Timeout.Seconds()),
			})
		}
		out = append(out, info)
	}
	return out
}
