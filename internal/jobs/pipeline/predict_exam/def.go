package predict_exam

import (
	"math/rand/v2"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "predict-exam"
	Event      = "exam/predict"
)

type Pipeline struct {
	log  *logger.Logger
	db   adapters.RelationalStore
	ai   adapters.Completion
	intn func(n int) int
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log:  baseLog.With("job", PipelineID),
		db:   deps.DB,
		ai:   deps.LLM,
		intn: rand.IntN,
	}
}

func (p *Pipeline) Type() string { return PipelineID }

func (p *Pipeline) Definition() jobrt.Definition {
	retry := jobrt.Retries(2)
	return jobrt.Definition{
		ID:          PipelineID,
		Events:      []string{Event},
		Concurrency: 2,
		Steps: []jobrt.Step{
			{Name: "extract-topics", Retry: retry, Run: p.extractTopics},
			{Name: "run-simulation", Retry: retry, Run: p.runSimulation},
		},
	}
}
