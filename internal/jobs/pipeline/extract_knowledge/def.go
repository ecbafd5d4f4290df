package extract_knowledge

import (
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "extract-knowledge"
	Event      = "knowledge/extract"
)

type Pipeline struct {
	log   *logger.Logger
	db    adapters.RelationalStore
	ai    adapters.Completion
	graph adapters.GraphStore
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log:   baseLog.With("job", PipelineID),
		db:    deps.DB,
		ai:    deps.LLM,
		graph: deps.Graph,
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
			{Name: "extract-graph", Retry: retry, Run: p.extractGraph},
			{Name: "store-nodes", Retry: retry, Run: p.storeNodes},
			{Name: "store-edges", Retry: retry, Run: p.storeEdges},
		},
	}
}
