package domain

import (
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	"github.com/yungbote/hypermind-backend/internal/domain/study"
)

type (
	Event       = pipeline.Event
	Delivery    = pipeline.Delivery
	PipelineRun = pipeline.PipelineRun
	StepRecord  = pipeline.StepRecord

	Document       = study.Document
	DocumentChunk  = study.DocumentChunk
	KnowledgeNode  = study.KnowledgeNode
	KnowledgeEdge  = study.KnowledgeEdge
	GeneratedMedia = study.GeneratedMedia
)

// Models lists every table AutoMigrate manages.
func Models() []interface{} {
	return []interface{}{
		&pipeline.Event{},
		&pipeline.Delivery{},
		&pipeline.PipelineRun{},
		&pipeline.StepRecord{},
		&study.Document{},
		&study.DocumentChunk{},
		&study.KnowledgeNode{},
		&study.KnowledgeEdge{},
		&study.GeneratedMedia{},
	}
}
