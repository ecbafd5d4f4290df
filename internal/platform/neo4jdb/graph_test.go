package neo4jdb

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

func TestGraphParams(t *testing.T) {
	nodes := []adapters.GraphNode{
		{ID: "n1", Label: "Cell"},
		{ID: "n2", Label: "Nucleus", Type: "structure"},
		{ID: "n1", Label: "duplicate"},
		{ID: " ", Label: "blank"},
	}
	edges := []adapters.GraphEdge{
		{Source: "n1", Target: "n2", Relationship: "contains"},
		{Source: "n1", Target: "n9"},
		{Source: "n2", Target: "n1"},
	}
	np, ep := graphParams("d1", nodes, edges, time.Unix(0, 0).UTC())
	if len(np) != 2 {
		t.Fatalf("nodes: want=2 got=%d", len(np))
	}
	if np[0]["key"] != "d1:n1" || np[0]["type"] != "concept" || np[1]["type"] != "structure" {
		t.Fatalf("node params: %+v", np)
	}
	if len(ep) != 2 {
		t.Fatalf("edges: want=2 got=%d", len(ep))
	}
	if ep[0]["relationship"] != "contains" || ep[1]["relationship"] != "related_to" {
		t.Fatalf("edge params: %+v", ep)
	}
}

func TestUnconfiguredGraphStore(t *testing.T) {
	err := NewGraphStore(nil).UpsertGraph(context.Background(), "d1", nil, nil)
	if adapters.KindOf(err) != adapters.NotConfigured {
		t.Fatalf("want not_configured got=%v", err)
	}
	c, err := New(context.Background(), logger.NewNop(), Config{})
	if c != nil || err != nil {
		t.Fatalf("empty uri: want nil,nil got=%v,%v", c, err)
	}
}
