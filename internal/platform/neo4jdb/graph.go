package neo4jdb

import (
	"context"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/hypermind-backend/internal/jobs/adapters"
)

const graphService = "neo4j"

var schemaStatements = []string{
	`CREATE CONSTRAINT document_id_unique IF NOT EXISTS FOR (d:Document) REQUIRE d.id IS UNIQUE`,
	`CREATE CONSTRAINT concept_key_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.key IS UNIQUE`,
}

// GraphStore writes per-document knowledge graphs. Concept nodes are keyed
// by document so two documents never share a node.
type GraphStore struct {
	client *Client
}

func NewGraphStore(client *Client) *GraphStore { return &GraphStore{client: client} }

func (g *GraphStore) UpsertGraph(ctx context.Context, documentID string, nodes []adapters.GraphNode, edges []adapters.GraphEdge) error {
	if g == nil || g.client == nil || g.client.Driver == nil {
		return adapters.Missing(graphService)
	}
	nodeParams, edgeParams := graphParams(documentID, nodes, edges, time.Now().UTC())

	session := g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.client.Database,
	})
	defer session.Close(ctx)

	for _, q := range schemaStatements {
		if res, err := session.Run(ctx, q, nil); err != nil {
			g.client.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, `
MERGE (d:Document {id: $id})
SET d.synced_at = $synced_at
`, map[string]any{"id": documentID, "synced_at": time.Now().UTC().Format(time.RFC3339Nano)}); err != nil {
			return nil, err
		}
		if len(nodeParams) > 0 {
			if err := run(ctx, tx, `
UNWIND $nodes AS n
MERGE (c:Concept {key: n.key})
SET c += n
WITH c, n
MERGE (d:Document {id: n.document_id})
MERGE (c)-[:IN_DOCUMENT]->(d)
`, map[string]any{"nodes": nodeParams}); err != nil {
				return nil, err
			}
		}
		if len(edgeParams) > 0 {
			if err := run(ctx, tx, `
UNWIND $edges AS e
MATCH (s:Concept {key: e.source_key})
MATCH (t:Concept {key: e.target_key})
MERGE (s)-[r:RELATES_TO {relationship: e.relationship}]->(t)
SET r.synced_at = e.synced_at
`, map[string]any{"edges": edgeParams}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		if neo4j.IsRetryable(err) {
			return adapters.Wrap(graphService, adapters.ServiceUnavailable, err)
		}
		return adapters.Wrap(graphService, adapters.ConstraintViolation, err)
	}
	return nil
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, q string, params map[string]any) error {
	res, err := tx.Run(ctx, q, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

// graphParams drops nodes without an id and edges whose endpoints are not
// among the nodes.
func graphParams(documentID string, nodes []adapters.GraphNode, edges []adapters.GraphEdge, now time.Time) ([]map[string]any, []map[string]any) {
	stamp := now.Format(time.RFC3339Nano)
	known := map[string]bool{}
	nodeParams := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" || known[id] {
			continue
		}
		known[id] = true
		typ := n.Type
		if typ == "" {
			typ = "concept"
		}
		nodeParams = append(nodeParams, map[string]any{
			"key":         documentID + ":" + id,
			"id":          id,
			"document_id": documentID,
			"label":       n.Label,
			"type":        typ,
			"description": n.Description,
			"synced_at":   stamp,
		})
	}
	edgeParams := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if !known[e.Source] || !known[e.Target] {
			continue
		}
		rel := e.Relationship
		if rel == "" {
			rel = "related_to"
		}
		edgeParams = append(edgeParams, map[string]any{
			"source_key":   documentID + ":" + e.Source,
			"target_key":   documentID + ":" + e.Target,
			"relationship": rel,
			"synced_at":    stamp,
		})
	}
	return nodeParams, edgeParams
}
