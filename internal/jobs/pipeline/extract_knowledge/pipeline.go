package extract_knowledge

import (
	"context"
	"fmt"

	jobrt "github.com/yungbote/hypermind-backend/internal/jobs/runtime"
	"github.com/yungbote/hypermind-backend/internal/jobs/study/steps"
)

const contentLimit = 15000

const instructions = `Extract a comprehensive knowledge graph from this text. Focus on:
- Key concepts and their definitions
- People and their contributions
- Events and their causes/effects
- Formulas and their applications
- Relationships between all entities

Text:`

type Result struct {
	DocumentID   string `json:"documentId"`
	NodesCreated int    `json:"nodesCreated"`
	EdgesCreated int    `json:"edgesCreated"`
	Mirrored     bool   `json:"mirrored"`
}

func (p *Pipeline) extractGraph(ctx context.Context, in jobrt.StepInput) (any, error) {
	docID, err := in.Event.Require("documentId")
	if err != nil {
		return nil, err
	}
	content := in.Event.String("content")
	if content == "" {
		if content, err = steps.DocumentContent(ctx, p.db, docID, 10); err != nil {
			return nil, err
		}
	}
	if content == "" {
		return nil, jobrt.Permanentf("document %s has no content to extract from", docID)
	}
	return steps.ExtractGraph(ctx, steps.ExtractGraphDeps{LLM: p.ai, Log: p.log}, steps.ExtractGraphInput{
		Instructions: instructions,
		Text:         steps.Truncate(content, contentLimit),
		MaxTokens:    6000,
	})
}

func (p *Pipeline) storeNodes(ctx context.Context, in jobrt.StepInput) (any, error) {
	var g steps.Graph
	if err := in.Prior.Decode("extract-graph", &g); err != nil {
		return nil, err
	}
	if len(g.Nodes) == 0 {
		return steps.StoredNodes{IDs: map[string]string{}, Labels: map[string]string{}}, nil
	}
	nodes, err := steps.StoreNodes(ctx, p.db, in.Event.String("documentId"), g.Nodes)
	if err != nil {
		return nil, fmt.Errorf("store nodes: %w", err)
	}
	return nodes, nil
}

func (p *Pipeline) storeEdges(ctx context.Context, in jobrt.StepInput) (any, error) {
	docID := in.Event.String("documentId")
	var (
		g     steps.Graph
		nodes steps.StoredNodes
	)
	if err := in.Prior.Decode("extract-graph", &g); err != nil {
		return nil, err
	}
	if err := in.Prior.Decode("store-nodes", &nodes); err != nil {
		return nil, err
	}
	out := Result{DocumentID: docID, NodesCreated: nodes.Count}
	if nodes.Count == 0 {
		return out, nil
	}
	edges, err := steps.StoreEdges(ctx, p.db, nodes, g.Edges)
	if err != nil {
		return nil, fmt.Errorf("store edges: %w", err)
	}
	out.EdgesCreated = len(edges)
	if out.Mirrored, err = steps.MirrorGraph(ctx, p.graph, docID, g, nodes, edges); err != nil {
		return nil, fmt.Errorf("mirror graph: %w", err)
	}
	return out, nil
}
