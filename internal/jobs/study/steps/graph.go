package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/yungbote/hypermind-backend/internal/domain/study"
	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
	"github.com/yungbote/hypermind-backend/internal/jobs/llmjson"
	"github.com/yungbote/hypermind-backend/internal/platform/logger"
)

const (
	DefaultNodeType     = "concept"
	DefaultRelationship = "related_to"
)

// GraphID accepts both "1" and 1 from model output.
type GraphID string

func (g *GraphID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*g = GraphID(strings.TrimSpace(s))
		return nil
	}
	if string(b) == "null" {
		*g = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*g = GraphID(n.String())
	return nil
}

type GraphNode struct {
	ID          GraphID `json:"id"`
	Label       string  `json:"label"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
}

type GraphEdge struct {
	Source       GraphID `json:"source"`
	Target       GraphID `json:"target"`
	Relationship string  `json:"relationship"`
}

type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

func EmptyGraph() Graph { return Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}} }

// ParseGraph reads a knowledge graph reply; anything unparseable is the
// empty graph.
func ParseGraph(text string) Graph {
	g, _ := llmjson.Object(text, EmptyGraph())
	if g.Nodes == nil {
		g.Nodes = []GraphNode{}
	}
	if g.Edges == nil {
		g.Edges = []GraphEdge{}
	}
	for i := range g.Nodes {
		g.Nodes[i].Label = strings.TrimSpace(g.Nodes[i].Label)
		if strings.TrimSpace(g.Nodes[i].Type) == "" {
			g.Nodes[i].Type = DefaultNodeType
		}
	}
	return g
}

type ExtractGraphDeps struct {
	LLM adapters.Completion
	Log *logger.Logger
}

type ExtractGraphInput struct {
	Instructions string
	Text         string
	MaxTokens    int
}

func ExtractGraph(ctx context.Context, deps ExtractGraphDeps, in ExtractGraphInput) (Graph, error) {
	prompt := in.Instructions
	if prompt == "" {
		prompt = "Extract the knowledge graph from this text:"
	}
	reply, err := Ask(ctx, deps.LLM, adapters.HintSpeed, PromptKnowledgeExtractor,
		prompt+"\n\n"+in.Text, adapters.CompletionOptions{MaxTokens: in.MaxTokens})
	if err != nil {
		return Graph{}, err
	}
	g := ParseGraph(reply)
	if len(g.Nodes) == 0 && deps.Log != nil {
		deps.Log.Warn("knowledge graph reply had no nodes", "reply_len", len(reply))
	}
	return g, nil
}

// StoredNodes maps model node ids to knowledge_nodes ids.
type StoredNodes struct {
	IDs      map[string]string `json:"ids"`
	Labels   map[string]string `json:"labels"`
	Count    int               `json:"count"`
	Inserted int               `json:"inserted"`
}

func labelKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// StoreNodes writes the nodes of g for documentID. Labels already stored for
// the document are reused, so a repeated call inserts nothing new.
func StoreNodes(ctx context.Context, db adapters.RelationalStore, documentID string, nodes []GraphNode) (StoredNodes, error) {
	out := StoredNodes{IDs: map[string]string{}, Labels: map[string]string{}}
	if db == nil {
		return out, adapters.Missing("relational-store")
	}
	existing, err := db.Select(ctx, domain.TableKnowledgeNodes, adapters.Query{Where: map[string]any{"document_id": documentID}})
	if err != nil {
		return out, err
	}
	byLabel := map[string]string{}
	for _, r := range existing {
		label, _ := r["label"].(string)
		id := fmt.Sprint(r["id"])
		byLabel[labelKey(label)] = id
		out.Labels[id] = label
	}

	var rows []adapters.Row
	queued := map[string]bool{}
	for _, n := range nodes {
		key := labelKey(n.Label)
		if key == "" || queued[key] {
			continue
		}
		if _, ok := byLabel[key]; ok {
			continue
		}
		queued[key] = true
		typ := strings.TrimSpace(n.Type)
		if typ == "" {
			typ = DefaultNodeType
		}
		rows = append(rows, adapters.Row{
			"document_id": documentID,
			"label":       strings.TrimSpace(n.Label),
			"type":        typ,
			"description": n.Description,
		})
	}
	if len(rows) > 0 {
		inserted, err := db.Insert(ctx, domain.TableKnowledgeNodes, rows)
		if err != nil {
			return out, err
		}
		for _, r := range inserted {
			label, _ := r["label"].(string)
			id := fmt.Sprint(r["id"])
			byLabel[labelKey(label)] = id
			out.Labels[id] = label
		}
		out.Inserted = len(inserted)
	}
	for _, n := range nodes {
		if id, ok := byLabel[labelKey(n.Label)]; ok && n.ID != "" {
			out.IDs[string(n.ID)] = id
		}
	}
	out.Count = len(byLabel)
	return out, nil
}

type edgeKey struct{ src, dst, rel string }

// StoreEdges maps model edges onto stored node ids and inserts the ones not
// already present. Edges whose endpoints were never stored are dropped.
// It returns the resolved edges, stored or pre-existing.
func StoreEdges(ctx context.Context, db adapters.RelationalStore, nodes StoredNodes, edges []GraphEdge) ([]adapters.GraphEdge, error) {
	if db == nil {
		return nil, adapters.Missing("relational-store")
	}
	var resolved []adapters.GraphEdge
	seen := map[edgeKey]bool{}
	for _, e := range edges {
		src, ok1 := nodes.IDs[string(e.Source)]
		dst, ok2 := nodes.IDs[string(e.Target)]
		if !ok1 || !ok2 {
			continue
		}
		rel := strings.TrimSpace(e.Relationship)
		if rel == "" {
			rel = DefaultRelationship
		}
		k := edgeKey{src, dst, rel}
		if seen[k] {
			continue
		}
		seen[k] = true
		resolved = append(resolved, adapters.GraphEdge{Source: src, Target: dst, Relationship: rel})
	}
	if len(resolved) == 0 {
		return []adapters.GraphEdge{}, nil
	}

	stored := map[edgeKey]bool{}
	checked := map[string]bool{}
	for _, e := range resolved {
		if checked[e.Source] {
			continue
		}
		checked[e.Source] = true
		rows, err := db.Select(ctx, domain.TableKnowledgeEdges, adapters.Query{Where: map[string]any{"source_id": e.Source}})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			rel, _ := r["relationship"].(string)
			stored[edgeKey{fmt.Sprint(r["source_id"]), fmt.Sprint(r["target_id"]), rel}] = true
		}
	}
	var rows []adapters.Row
	for _, e := range resolved {
		if stored[edgeKey{e.Source, e.Target, e.Relationship}] {
			continue
		}
		rows = append(rows, adapters.Row{"source_id": e.Source, "target_id": e.Target, "relationship": e.Relationship})
	}
	if len(rows) > 0 {
		if _, err := db.Insert(ctx, domain.TableKnowledgeEdges, rows); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// MirrorGraph copies the stored graph into the graph store when one is
// configured. It reports whether anything was written.
func MirrorGraph(ctx context.Context, gs adapters.GraphStore, documentID string, g Graph, nodes StoredNodes, edges []adapters.GraphEdge) (bool, error) {
	if gs == nil || len(nodes.Labels) == 0 {
		return false, nil
	}
	byKey := map[string]GraphNode{}
	for _, n := range g.Nodes {
		byKey[labelKey(n.Label)] = n
	}
	out := make([]adapters.GraphNode, 0, len(nodes.Labels))
	for id, label := range nodes.Labels {
		src := byKey[labelKey(label)]
		typ := src.Type
		if typ == "" {
			typ = DefaultNodeType
		}
		out = append(out, adapters.GraphNode{ID: id, Label: label, Type: typ, Description: src.Description})
	}
	if err := gs.UpsertGraph(ctx, documentID, out, edges); err != nil {
		return false, err
	}
	return true, nil
}
