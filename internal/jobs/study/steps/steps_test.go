package steps

import (
	"context"
	"testing"

	domain "github.com/yungbote/hypermind-backend/internal/domain/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/pipeline/pipelinetest"
)

func TestTruncateIsRuneSafe(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Fatalf("Truncate: want=%q got=%q", "hé", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("Truncate short: got=%q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Fatalf("Truncate zero: got=%q", got)
	}
}

func TestParseGraphAcceptsNumericIDs(t *testing.T) {
	g := ParseGraph(`{"nodes":[{"id":7,"label":" Cell ","type":""},{"id":null,"label":"x"}],"edges":[{"source":7,"target":"8"}]}`)
	if len(g.Nodes) != 2 || g.Nodes[0].ID != "7" || g.Nodes[0].Label != "Cell" || g.Nodes[0].Type != DefaultNodeType {
		t.Fatalf("nodes: %+v", g.Nodes)
	}
	if g.Nodes[1].ID != "" || g.Edges[0].Source != "7" || g.Edges[0].Target != "8" {
		t.Fatalf("graph: %+v", g)
	}
}

func TestParseGraphFallsBackToEmpty(t *testing.T) {
	g := ParseGraph("no graph here")
	if g.Nodes == nil || g.Edges == nil || len(g.Nodes) != 0 {
		t.Fatalf("graph: %+v", g)
	}
}

func TestStoreEdgesSkipsStoredTriples(t *testing.T) {
	ctx := context.Background()
	db := pipelinetest.NewDB()
	nodes, err := StoreNodes(ctx, db, "d1", []GraphNode{{ID: "1", Label: "A"}, {ID: "2", Label: "B"}, {ID: "3", Label: "a"}})
	if err != nil {
		t.Fatalf("StoreNodes: %v", err)
	}
	if nodes.Inserted != 2 || nodes.IDs["1"] != nodes.IDs["3"] {
		t.Fatalf("nodes: %+v", nodes)
	}
	edges := []GraphEdge{
		{Source: "1", Target: "2", Relationship: "causes"},
		{Source: "3", Target: "2", Relationship: "causes"},
		{Source: "1", Target: "2"},
		{Source: "1", Target: "9", Relationship: "dangling"},
	}
	first, err := StoreEdges(ctx, db, nodes, edges)
	if err != nil {
		t.Fatalf("StoreEdges: %v", err)
	}
	if len(first) != 2 || first[1].Relationship != DefaultRelationship {
		t.Fatalf("resolved: %+v", first)
	}
	again, err := StoreEdges(ctx, db, nodes, edges)
	if err != nil || len(again) != 2 {
		t.Fatalf("second pass: %+v err=%v", again, err)
	}
	if n := len(db.Rows(domain.TableKnowledgeEdges)); n != 2 {
		t.Fatalf("stored edges: want=2 got=%d", n)
	}
}

func TestDocumentContentJoinsInChunkOrder(t *testing.T) {
	db := pipelinetest.NewDB()
	_, _ = db.Insert(context.Background(), domain.TableDocumentChunks, []adapters.Row{
		{"document_id": "d1", "content": "second", "chunk_index": 1},
		{"document_id": "d1", "content": "first", "chunk_index": 0},
		{"document_id": "d2", "content": "other", "chunk_index": 0},
	})
	got, err := DocumentContent(context.Background(), db, "d1", 5)
	if err != nil || got != "first\n\nsecond" {
		t.Fatalf("DocumentContent: got=%q err=%v", got, err)
	}
	if _, err := DocumentContent(context.Background(), nil, "d1", 5); adapters.KindOf(err) != adapters.NotConfigured {
		t.Fatalf("nil store: %v", err)
	}
}
