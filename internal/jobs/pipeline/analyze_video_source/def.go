package analyze_video_source

import (
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/envutil"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "analyze-video-source"
	Event      = "youtube/analyze"
)

type Pipeline struct {
	log    *logger.Logger
	videos adapters.VideoSearch
	ai     adapters.Completion
	// fetchConcurrency bounds parallel transcript downloads.
	fetchConcurrency int
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log:              baseLog.With("job", PipelineID),
		videos:           deps.Videos,
		ai:               deps.LLM,
		fetchConcurrency: envutil.Int("TRANSCRIPT_FETCH_CONCURRENCY", 4),
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
			{Name: "search-videos", Retry: retry, Run: p.searchVideos},
			{Name: "fetch-transcripts", Retry: retry, Run: p.fetchTranscripts},
			{Name: "rank-and-select-best-result", Retry: retry, Run: p.rank},
			{Name: "prepare-result", Retry: retry, Run: p.prepareResult},
		},
	}
}
