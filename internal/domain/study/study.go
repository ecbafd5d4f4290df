package study

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Table names as seen by the relational store adapter.
const (
	TableDocuments      = "documents"
	TableDocumentChunks = "document_chunks"
	TableKnowledgeNodes = "knowledge_nodes"
	TableKnowledgeEdges = "knowledge_edges"
	TableGeneratedMedia = "generated_media"
)

const (
	DocumentProcessing = "processing"
	DocumentReady      = "ready"
	DocumentError      = "error"
)

type Document struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string         `gorm:"column:user_id;index" json:"user_id"`
	Title     string         `gorm:"column:title" json:"title"`
	FileURL   string         `gorm:"column:file_url" json:"file_url"`
	Status    string         `gorm:"column:status;not null;index" json:"status"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (Document) TableName() string { return TableDocuments }

type DocumentChunk struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID string         `gorm:"column:document_id;not null;index:idx_chunk_doc_index,priority:1" json:"document_id"`
	Content    string         `gorm:"column:content;type:text" json:"content"`
	ChunkIndex int            `gorm:"column:chunk_index;not null;index:idx_chunk_doc_index,priority:2" json:"chunk_index"`
	Metadata   datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
}

func (DocumentChunk) TableName() string { return TableDocumentChunks }

type KnowledgeNode struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  string    `gorm:"column:document_id;not null;index" json:"document_id"`
	Label       string    `gorm:"column:label;not null" json:"label"`
	Type        string    `gorm:"column:type" json:"type"`
	Description string    `gorm:"column:description;type:text" json:"description"`
}

func (KnowledgeNode) TableName() string { return TableKnowledgeNodes }

type KnowledgeEdge struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SourceID     string    `gorm:"column:source_id;not null;index" json:"source_id"`
	TargetID     string    `gorm:"column:target_id;not null;index" json:"target_id"`
	Relationship string    `gorm:"column:relationship" json:"relationship"`
}

func (KnowledgeEdge) TableName() string { return TableKnowledgeEdges }

type GeneratedMedia struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID string         `gorm:"column:document_id;index" json:"document_id"`
	Type       string         `gorm:"column:type;not null;index" json:"type"`
	URL        string         `gorm:"column:url" json:"url"`
	Metadata   datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
}

func (GeneratedMedia) TableName() string { return TableGeneratedMedia }
