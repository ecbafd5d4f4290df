package run_medisim

import (
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "run-medisim"
	Event      = "medisim/run"
)

type Pipeline struct {
	log *logger.Logger
	ai  adapters.Completion
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{log: baseLog.With("job", PipelineID), ai: deps.LLM}
}

func (p *Pipeline) Type() string { return PipelineID }

func (p *Pipeline) Definition() jobrt.Definition {
	return jobrt.Definition{
		ID:          PipelineID,
		Events:      []string{Event},
		Concurrency: 2,
		Steps: []jobrt.Step{
			{Name: "simulate-patient", Retry: jobrt.NoRetry(), Run: p.simulatePatient},
			{Name: "grade-performance", Retry: jobrt.NoRetry(), Run: p.gradePerformance},
		},
	}
}
