package generate_quiz_batch

import (
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "generate-quiz-batch"
	Event      = "quiz/generate-batch"
)

type Pipeline struct {
	log *logger.Logger
	db  adapters.RelationalStore
	ai  adapters.Completion
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log: baseLog.With("job", PipelineID),
		db:  deps.DB,
		ai:  deps.LLM,
	}
}

func (p *Pipeline) Type() string { return PipelineID }

func (p *Pipeline) Definition() jobrt.Definition {
	retry := jobrt.Retries(2)
	return jobrt.Definition{
		ID:          PipelineID,
		Events:      []string{Event},
		Concurrency: 4,
		Steps: []jobrt.Step{
			{Name: "fetch-content", Retry: retry, Run: p.fetchContent},
			{Name: "generate-questions", Retry: retry, Run: p.generateQuestions},
		},
	}
}
