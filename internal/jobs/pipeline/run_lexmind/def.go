package run_lexmind

import (
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "run-lexmind"
	Event      = "lexmind/run"
)

type Pipeline struct {
	log *logger.Logger
	ai  adapters.Completion
	web adapters.WebSearch
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{log: baseLog.With("job", PipelineID), ai: deps.LLM, web: deps.Web}
}

func (p *Pipeline) Type() string { return PipelineID }

func (p *Pipeline) Definition() jobrt.Definition {
	return jobrt.Definition{
		ID:          PipelineID,
		Events:      []string{Event},
		Concurrency: 2,
		Steps: []jobrt.Step{
			{Name: "gather-sources", Retry: jobrt.Retries(2), Run: p.gatherSources},
			{Name: "legal-analysis", Retry: jobrt.NoRetry(), Run: p.legalAnalysis},
		},
	}
}
