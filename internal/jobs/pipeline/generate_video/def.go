package generate_video

import (
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "generate-video"
	Event      = "video/generate"
)

type Pipeline struct {
	log     *logger.Logger
	db      adapters.RelationalStore
	ai      adapters.Completion
	objects adapters.ObjectStore
	frames  adapters.Renderer
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log:     baseLog.With("job", PipelineID),
		db:      deps.DB,
		ai:      deps.LLM,
		objects: deps.Objects,
		frames:  deps.Frames,
	}
}

func (p *Pipeline) Type() string { return PipelineID }

// Rendering is heavy: no retries and one run at a time.
func (p *Pipeline) Definition() jobrt.Definition {
	return jobrt.Definition{
		ID:          PipelineID,
		Events:      []string{Event},
		Concurrency: 1,
		Steps: []jobrt.Step{
			{Name: "generate-script", Retry: jobrt.NoRetry(), Run: p.generateScript},
			{Name: "render-frames", Retry: jobrt.NoRetry(), Run: p.renderFrames},
			{Name: "save-composition", Retry: jobrt.NoRetry(), Run: p.saveComposition},
		},
	}
}
