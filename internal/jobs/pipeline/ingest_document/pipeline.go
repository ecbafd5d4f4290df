package ingest_document

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	domain "github.com/yungbote/hypermind-backend/internal/domain/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

// supported is checked before downloading anything.
var supported = map[string]bool{
	".pdf": true, ".txt": true, ".md": true, ".markdown": true, ".csv": true,
	".html": true, ".htm": true, ".png": true, ".jpg": true, ".jpeg": true,
}

type extracted struct {
	Text      string `json:"text"`
	WordCount int    `json:"wordCount"`
}

type chunk struct {
	Content string `json:"content"`
	Index   int    `json:"index"`
}

type summary struct {
	Summary string `json:"summary"`
}

type storedGraph struct {
	NodesStored int  `json:"nodesStored"`
	EdgesStored int  `json:"edgesStored"`
	Mirrored    bool `json:"mirrored"`
}

type Result struct {
	DocumentID     string `json:"documentId"`
	ChunkCount     int    `json:"chunkCount"`
	Summary        string `json:"summary"`
	NodesExtracted int    `json:"nodesExtracted"`
}

// fileName prefers the uploaded name and falls back to the URL path.
func fileName(in jobrt.StepInput) string {
	if n := in.Event.String("fileName"); n != "" {
		return n
	}
	raw := in.Event.String("fileUrl")
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(raw)
}

func (p *Pipeline) extractText(ctx context.Context, in jobrt.StepInput) (any, error) {
	if _, err := in.Event.Require("documentId"); err != nil {
		return nil, err
	}
	fileURL, err := in.Event.Require("fileUrl")
	if err != nil {
		return nil, err
	}
	name := fileName(in)
	if ext := strings.ToLower(path.Ext(name)); ext != "" && !supported[ext] {
		return nil, jobrt.Permanentf("unsupported file type %q", ext)
	}
	if p.fetch == nil {
		return nil, adapters.Missing("fetch")
	}
	if p.extractor == nil {
		return nil, adapters.Missing("text-extractor")
	}

	blob, err := p.fetch.Fetch(ctx, fileURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	text, err := p.extractor.Extract(ctx, blob, name)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, jobrt.Permanentf("%s has no extractable text", name)
	}
	p.log.Debug("text extracted", "file", name, "bytes", len(blob.Data), "chars", len(text))
	return extracted{Text: text, WordCount: len(strings.Fields(text))}, nil
}

func (p *Pipeline) splitChunks(ctx context.Context, in jobrt.StepInput) (any, error) {
	var doc extracted
	if err := in.Prior.Decode("extract-text", &doc); err != nil {
		return nil, err
	}
	parts, err := p.splitter.SplitText(doc.Text)
	if err != nil {
		return nil, jobrt.Permanent(fmt.Errorf("split text: %w", err))
	}
	out := make([]chunk, 0, len(parts))
	for _, s := range parts {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, chunk{Content: s, Index: len(out)})
	}
	return out, nil
}

func (p *Pipeline) storeChunks(ctx context.Context, in jobrt.StepInput) (any, error) {
	if p.db == nil {
		return nil, adapters.Missing("relational-store")
	}
	docID := in.Event.String("documentId")
	var chunks []chunk
	if err := in.Prior.Decode("split-chunks", &chunks); err != nil {
		return nil, err
	}
	// A previous attempt may have committed before failing to record success.
	existing, err := p.db.Select(ctx, domain.TableDocumentChunks, adapters.Query{
		Where: map[string]any{"document_id": docID},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		p.log.Info("chunks already stored", "document_id", docID)
		return map[string]int{"stored": len(chunks)}, nil
	}
	rows := make([]adapters.Row, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, adapters.Row{
			"document_id": docID,
			"content":     c.Content,
			"chunk_index": c.Index,
			"metadata":    map[string]any{"chunkSize": ChunkSize, "chunkOverlap": ChunkOverlap},
		})
	}
	if _, err := p.db.Insert(ctx, domain.TableDocumentChunks, rows); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	return map[string]int{"stored": len(rows)}, nil
}

func sample(chunks []chunk, n int) string {
	if len(chunks) > n {
		chunks = chunks[:n]
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n")
}

func (p *Pipeline) summarize(ctx context.Context, in jobrt.StepInput) (any, error) {
	var chunks []chunk
	if err := in.Prior.Decode("split-chunks", &chunks); err != nil {
		return nil, err
	}
	prompt := `Generate a comprehensive summary of this document. Include:
1. Main topic and thesis
2. Key concepts covered
3. Important takeaways

Document excerpt:
` + sample(chunks, 3)
	text, err := steps.Ask(ctx, p.ai, adapters.HintContext, steps.PromptDefault, prompt, adapters.CompletionOptions{MaxTokens: 2000})
	if err != nil {
		return nil, err
	}
	if text == "" {
		text = "Summary generation failed"
	}
	return summary{Summary: text}, nil
}

func (p *Pipeline) extractGraph(ctx context.Context, in jobrt.StepInput) (any, error) {
	var chunks []chunk
	if err := in.Prior.Decode("split-chunks", &chunks); err != nil {
		return nil, err
	}
	return steps.ExtractGraph(ctx, steps.ExtractGraphDeps{LLM: p.ai, Log: p.log}, steps.ExtractGraphInput{
		Text:      sample(chunks, 5),
		MaxTokens: 4000,
	})
}

func (p *Pipeline) storeGraph(ctx context.Context, in jobrt.StepInput) (any, error) {
	docID := in.Event.String("documentId")
	var g steps.Graph
	if err := in.Prior.Decode("extract-graph", &g); err != nil {
		return nil, err
	}
	if len(g.Nodes) == 0 {
		return storedGraph{}, nil
	}
	nodes, err := steps.StoreNodes(ctx, p.db, docID, g.Nodes)
	if err != nil {
		return nil, fmt.Errorf("store nodes: %w", err)
	}
	edges, err := steps.StoreEdges(ctx, p.db, nodes, g.Edges)
	if err != nil {
		return nil, fmt.Errorf("store edges: %w", err)
	}
	mirrored, err := steps.MirrorGraph(ctx, p.graph, docID, g, nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("mirror graph: %w", err)
	}
	return storedGraph{NodesStored: nodes.Count, EdgesStored: len(edges), Mirrored: mirrored}, nil
}

func (p *Pipeline) markReady(ctx context.Context, in jobrt.StepInput) (any, error) {
	if p.db == nil {
		return nil, adapters.Missing("relational-store")
	}
	docID := in.Event.String("documentId")
	var (
		doc    extracted
		chunks []chunk
		sum    summary
		g      steps.Graph
	)
	if err := in.Prior.Decode("extract-text", &doc); err != nil {
		return nil, err
	}
	if err := in.Prior.Decode("split-chunks", &chunks); err != nil {
		return nil, err
	}
	if err := in.Prior.Decode("summarize", &sum); err != nil {
		return nil, err
	}
	if err := in.Prior.Decode("extract-graph", &g); err != nil {
		return nil, err
	}

	_, err := p.db.Update(ctx, domain.TableDocuments, adapters.Query{Where: map[string]any{"id": docID}}, adapters.Row{
		"status": domain.DocumentReady,
		"metadata": map[string]any{
			"summary":    sum.Summary,
			"chunkCount": len(chunks),
			"wordCount":  doc.WordCount,
			"nodeCount":  len(g.Nodes),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mark document %s ready: %w", docID, err)
	}
	p.log.Info("document ready", "document_id", docID, "chunks", len(chunks), "nodes", len(g.Nodes))
	return Result{
		DocumentID:     docID,
		ChunkCount:     len(chunks),
		Summary:        steps.Truncate(sum.Summary, 200) + "...",
		NodesExtracted: len(g.Nodes),
	}, nil
}
