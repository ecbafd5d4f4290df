package ingest_document

import (
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	PipelineID = "ingest-document"
	Event      = "document/uploaded"

	ChunkSize    = 4000
	ChunkOverlap = 200
)

type Pipeline struct {
	log       *logger.Logger
	fetch     adapters.Fetcher
	extractor adapters.TextExtractor
	db        adapters.RelationalStore
	ai        adapters.Completion
	graph     adapters.GraphStore
	splitter  textsplitter.RecursiveCharacter
}

func New(deps adapters.Set, baseLog *logger.Logger) *Pipeline {
	return &Pipeline{
		log:       baseLog.With("job", PipelineID),
		fetch:     deps.Fetch,
		extractor: deps.Extractor,
		db:        deps.DB,
		ai:        deps.LLM,
		graph:     deps.Graph,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(ChunkSize),
			textsplitter.WithChunkOverlap(ChunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
		),
	}
}

func (p *Pipeline) Type() string { return PipelineID }

func (p *Pipeline) Definition() jobrt.Definition {
	retry := jobrt.Retries(3)
	return jobrt.Definition{
		ID:          PipelineID,
		Events:      []string{Event},
		Concurrency: 4,
		Steps: []jobrt.Step{
			{Name: "extract-text", Retry: retry, Run: p.extractText},
			{Name: "split-chunks", Retry: retry, Run: p.splitChunks},
			{Name: "store-chunks", Retry: retry, Run: p.storeChunks},
			{Name: "summarize", Retry: retry, Run: p.summarize},
			{Name: "extract-graph", Retry: retry, Run: p.extractGraph},
			{Name: "store-graph", Retry: retry, Run: p.storeGraph},
			{Name: "mark-ready", Retry: retry, Run: p.markReady},
		},
	}
}
