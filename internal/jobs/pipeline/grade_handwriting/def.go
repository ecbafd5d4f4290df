package grade_handwriting

import (
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "grade-handwriting"
	Event      = "handwriting/grade"
)

type Pipeline struct {
	log   *logger.Logger
	ai    adapters.Completion
	ocr   adapters.OCR
	fetch adapters.Fetcher
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log:   baseLog.With("job", PipelineID),
		ai:    deps.LLM,
		ocr:   deps.OCR,
		fetch: deps.Fetch,
	}
}

func (p *Pipeline) Type() string { return PipelineID }

// Grading calls are paid and not idempotent; both steps run once.
func (p *Pipeline) Definition() jobrt.Definition {
	return jobrt.Definition{
		ID:          PipelineID,
		Events:      []string{Event},
		Concurrency: 2,
		Steps: []jobrt.Step{
			{Name: "read-handwriting", Retry: jobrt.NoRetry(), Run: p.readHandwriting},
			{Name: "grade", Retry: jobrt.NoRetry(), Run: p.grade},
		},
	}
}
