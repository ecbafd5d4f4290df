package generate_podcast

import (
	"time"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "generate-podcast"
	Event      = "podcast/generate"
)

type Pipeline struct {
	log *logger.Logger
	db  adapters.RelationalStore
	ai  adapters.Completion
	now func() time.Time
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log: baseLog.With("job", PipelineID),
		db:  deps.DB,
		ai:  deps.LLM,
		now: func() time.Time { return time.Now().UTC() },
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
			{Name: "generate-script", Retry: retry, Run: p.generateScript},
			{Name: "parse-script", Retry: retry, Run: p.parseScript},
			{Name: "store-podcast", Retry: retry, Run: p.storePodcast},
		},
	}
}
