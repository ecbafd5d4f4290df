// Package adapters declares the narrow contracts pipelines use to reach
// external services. Implementations live under internal/platform.
package adapters

import (
	"context"
)

// ModelHint selects a model family rather than a concrete model id.
type ModelHint string

const (
	HintReasoning ModelHint = "reasoning"
	HintCoding    ModelHint = "coding"
	HintContext   ModelHint = "context"
	HintSpeed     ModelHint = "speed"
	HintVision    ModelHint = "vision"
	HintRoleplay  ModelHint = "roleplay"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Images are URLs or data: URIs attached to a user message.
	Images []string `json:"-"`
}

func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

// CompletionOptions tune one call; zero values take client defaults.
type CompletionOptions struct {
	Temperature *float64
	MaxTokens   int
}

type Completion interface {
	Complete(ctx context.Context, msgs []Message, hint ModelHint, opts CompletionOptions) (string, error)
}

type ObjectStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	URL(path string) string
}

// Row is one relational record keyed by column name.
type Row map[string]any

// Query is an equality filter with optional ordering and limit.
type Query struct {
	Where   map[string]any
	OrderBy string
	Desc    bool
	Limit   int
}

type RelationalStore interface {
	Insert(ctx context.Context, table string, rows []Row) ([]Row, error)
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Update(ctx context.Context, table string, q Query, set Row) ([]Row, error)
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type WebSearch interface {
	Search(ctx context.Context, query string, max int) ([]SearchResult, error)
}

type Video struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Channel   string `json:"channel"`
	Duration  string `json:"duration"`
	Views     string `json:"views"`
	Thumbnail string `json:"thumbnail"`
}

type VideoSearch interface {
	SearchVideos(ctx context.Context, query string, max int) ([]Video, error)
	// Transcript returns "" when the video has no captions.
	Transcript(ctx context.Context, videoID string) (string, error)
}

type Blob struct {
	Data        []byte
	ContentType string
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (Blob, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, blob Blob, fileName string) (string, error)
}

type OCR interface {
	ReadImage(ctx context.Context, blob Blob) (string, error)
}

type GraphNode struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

type GraphEdge struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"relationship"`
}

type GraphStore interface {
	UpsertGraph(ctx context.Context, documentID string, nodes []GraphNode, edges []GraphEdge) error
}

type FrameStyle struct {
	Width      int
	Height     int
	Background string // hex, e.g. "#101820"
	Foreground string
	Caption    string
}

type Renderer interface {
	RenderFrame(text string, style FrameStyle) ([]byte, error)
}

// Set bundles every adapter a pipeline may need. Nil members mean the
// service is not configured; pipelines that need one fail permanently.
type Set struct {
	LLM       Completion
	Objects   ObjectStore
	DB        RelationalStore
	Web       WebSearch
	Videos    VideoSearch
	Fetch     Fetcher
	Extractor TextExtractor
	OCR       OCR
	Graph     GraphStore
	Frames    Renderer
}
