package ingest_document

import (
	"context"
	"strings"
	"testing"

	"github.com/yungbote/hypermind-backend/internal/data/repos/study"
	"github.com/yungbote/hypermind-backend/internal/data/repos/testutil"
	"github.com/yungbote/hypermind-backend/internal/domain/pipeline"
	domain "github.com/yungbote/hypermind-backend/internal/domain/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/hypermind-backend/internal/platform/gcp"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const graphReply = "Here you go:\n```json\n" + `{"nodes":[{"id":1,"label":"Mitosis","type":"concept","description":"cell division"},{"id":"2","label":"Chromosome","type":""}],"edges":[{"source":"1","target":"2","relationship":"includes"},{"source":"1","target":"9","relationship":"dangling"}]}` + "\n```"

func fakeLLM() *pipelinetest.LLM {
	return &pipelinetest.LLM{Reply: func(_ []adapters.Message, hint adapters.ModelHint) (string, error) {
		if hint == adapters.HintSpeed {
			return graphReply, nil
		}
		return "Cells divide by mitosis.", nil
	}}
}

func TestIngestDocumentRunsEveryStepInOrder(t *testing.T) {
	db := pipelinetest.NewDB()
	_, _ = db.Insert(context.Background(), domain.TableDocuments, []adapters.Row{{"id": "d1", "status": domain.DocumentProcessing}})
	llm := fakeLLM()
	graph := pipelinetest.NewGraph()
	deps := adapters.Set{
		LLM:       llm,
		DB:        db,
		Fetch:     pipelinetest.Fetcher{"http://x/f.pdf": {Data: []byte("Mitosis splits one cell into two."), ContentType: "application/pdf"}},
		Extractor: pipelinetest.Extractor{},
		Graph:     graph,
	}

	res, store := pipelinetest.Run(t, New(deps, logger.NewNop()).Definition(), map[string]any{
		"documentId": "d1", "fileUrl": "http://x/f.pdf",
	})
	if res.Status != pipeline.RunSucceeded {
		t.Fatalf("status: want=%s got=%s err=%v", pipeline.RunSucceeded, res.Status, res.Err)
	}
	want := []string{"extract-text", "split-chunks", "store-chunks", "summarize", "extract-graph", "store-graph", "mark-ready"}
	if strings.Join(res.Executed, ",") != strings.Join(want, ",") {
		t.Fatalf("executed: want=%v got=%v", want, res.Executed)
	}
	recs := pipelinetest.Steps(t, store, res.RunID)
	for i := 1; i < len(recs); i++ {
		if recs[i].StartedAt.Before(*recs[i-1].FinishedAt) {
			t.Fatalf("step %s started before %s finished", recs[i].StepName, recs[i-1].StepName)
		}
	}

	var out Result
	pipelinetest.Output(t, res, &out)
	if out.DocumentID != "d1" || out.ChunkCount != 1 || out.NodesExtracted != 2 {
		t.Fatalf("output: %+v", out)
	}
	if out.Summary != "Cells divide by mitosis...." {
		t.Fatalf("summary: got=%q", out.Summary)
	}

	if got := llm.Hints(); len(got) != 2 || got[0] != adapters.HintContext || got[1] != adapters.HintSpeed {
		t.Fatalf("hints: got=%v", got)
	}
	if n := len(db.Rows(domain.TableDocumentChunks)); n != 1 {
		t.Fatalf("chunks: want=1 got=%d", n)
	}
	if n := len(db.Rows(domain.TableKnowledgeNodes)); n != 2 {
		t.Fatalf("nodes: want=2 got=%d", n)
	}
	edges := db.Rows(domain.TableKnowledgeEdges)
	if len(edges) != 1 || edges[0]["relationship"] != "includes" {
		t.Fatalf("edges: %+v", edges)
	}
	doc := db.Rows(domain.TableDocuments)[0]
	meta, _ := doc["metadata"].(map[string]any)
	if doc["status"] != domain.DocumentReady || meta["wordCount"] != 6 || meta["nodeCount"] != 2 {
		t.Fatalf("document: %+v", doc)
	}
	if len(graph.Nodes["d1"]) != 2 || len(graph.Edges["d1"]) != 1 {
		t.Fatalf("mirror: nodes=%d edges=%d", len(graph.Nodes["d1"]), len(graph.Edges["d1"]))
	}
}

func TestIngestDocumentUnsupportedFileFailsAfterOneAttempt(t *testing.T) {
	deps := adapters.Set{
		LLM:       fakeLLM(),
		DB:        pipelinetest.NewDB(),
		Fetch:     pipelinetest.Fetcher{},
		Extractor: pipelinetest.Extractor{},
	}
	res, store := pipelinetest.Run(t, New(deps, logger.NewNop()).Definition(), map[string]any{
		"documentId": "d1", "fileUrl": "http://x/archive.zip",
	})
	if res.Status != pipeline.RunFailed {
		t.Fatalf("status: want=%s got=%s", pipeline.RunFailed, res.Status)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "unsupported file type") {
		t.Fatalf("err: got=%v", res.Err)
	}
	recs := pipelinetest.Steps(t, store, res.RunID)
	if len(recs) != 1 || recs[0].StepName != "extract-text" || recs[0].Attempts != 1 {
		t.Fatalf("records: %+v", recs)
	}
}

func TestIngestDocumentRetriesMissingFileThenFails(t *testing.T) {
	deps := adapters.Set{
		LLM:       fakeLLM(),
		DB:        pipelinetest.NewDB(),
		Fetch:     pipelinetest.Fetcher{},
		Extractor: pipelinetest.Extractor{},
	}
	res, store := pipelinetest.Run(t, New(deps, logger.NewNop()).Definition(), map[string]any{
		"documentId": "d1", "fileUrl": "http://x/gone.txt",
	})
	if res.Status != pipeline.RunFailed {
		t.Fatalf("status: want=%s got=%s", pipeline.RunFailed, res.Status)
	}
	// NotFound is not retryable.
	if recs := pipelinetest.Steps(t, store, res.RunID); recs[0].Attempts != 1 {
		t.Fatalf("attempts: want=1 got=%d", recs[0].Attempts)
	}
}

func TestIngestDocumentRerunDoesNotDuplicateRows(t *testing.T) {
	db := pipelinetest.NewDB()
	_, _ = db.Insert(context.Background(), domain.TableDocuments, []adapters.Row{{"id": "d1", "status": domain.DocumentProcessing}})
	deps := adapters.Set{
		LLM:       fakeLLM(),
		DB:        db,
		Fetch:     pipelinetest.Fetcher{"http://x/f.md": {Data: []byte("# Mitosis\n\nCells divide."), ContentType: "text/markdown"}},
		Extractor: pipelinetest.Extractor{},
	}
	def := New(deps, logger.NewNop()).Definition()
	payload := map[string]any{"documentId": "d1", "fileUrl": "http://x/f.md"}
	for i := 0; i < 2; i++ {
		if res, _ := pipelinetest.Run(t, def, payload); res.Status != pipeline.RunSucceeded {
			t.Fatalf("run %d: status=%s err=%v", i, res.Status, res.Err)
		}
	}
	if n := len(db.Rows(domain.TableDocumentChunks)); n != 1 {
		t.Fatalf("chunks: want=1 got=%d", n)
	}
	if n := len(db.Rows(domain.TableKnowledgeNodes)); n != 2 {
		t.Fatalf("nodes: want=2 got=%d", n)
	}
	if n := len(db.Rows(domain.TableKnowledgeEdges)); n != 1 {
		t.Fatalf("edges: want=1 got=%d", n)
	}
}

func TestIngestDocumentAgainstSQLStore(t *testing.T) {
	ctx := context.Background()
	store := study.NewStore(testutil.DB(t), testutil.Logger(t))
	rows, err := store.Insert(ctx, domain.TableDocuments, []adapters.Row{{"title": "notes", "status": domain.DocumentProcessing}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	docID := rows[0]["id"].(string)
	extractor, err := gcp.NewExtractor(ctx, logger.NewNop(), gcp.DocumentConfig{})
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	text := strings.Repeat("Mitosis splits one cell into two daughter cells. ", 200)
	deps := adapters.Set{
		LLM:       fakeLLM(),
		DB:        store,
		Fetch:     pipelinetest.Fetcher{"http://x/notes.txt": {Data: []byte(text), ContentType: "text/plain"}},
		Extractor: extractor,
	}

	res, _ := pipelinetest.Run(t, New(deps, logger.NewNop()).Definition(), map[string]any{
		"documentId": docID, "fileUrl": "http://x/notes.txt", "fileName": "notes.txt",
	})
	if res.Status != pipeline.RunSucceeded {
		t.Fatalf("status: want=%s got=%s err=%v", pipeline.RunSucceeded, res.Status, res.Err)
	}
	var out Result
	pipelinetest.Output(t, res, &out)
	if out.ChunkCount < 3 {
		t.Fatalf("chunk count: want>=3 got=%d", out.ChunkCount)
	}
	chunks, err := store.Select(ctx, domain.TableDocumentChunks, adapters.Query{Where: map[string]any{"document_id": docID}})
	if err != nil || len(chunks) != out.ChunkCount {
		t.Fatalf("stored chunks: want=%d got=%d err=%v", out.ChunkCount, len(chunks), err)
	}
	docs, err := store.Select(ctx, domain.TableDocuments, adapters.Query{Where: map[string]any{"id": docID}})
	if err != nil || docs[0]["status"] != domain.DocumentReady {
		t.Fatalf("document: %+v err=%v", docs, err)
	}
}
