package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/groundwork-backend/internal/platform/logger"
	"github.com/yungbote/groundwork-backend/internal/platform/neo4jdb"
)

type Neo4jCodeGraph struct {
	client     *neo4jdb.Client
	log        *logger.Logger
	schemaOnce sync.Once
}

func NewNeo4jCodeGraph(client *neo4jdb.Client, baseLog *logger.Logger) *Neo4jCodeGraph {
	return &Neo4jCodeGraph{client: client, log: baseLog.With("graph", "Neo4jCodeGraph")}
}

var schemaStatements = []string{
	`CREATE CONSTRAINT code_project_text_unique IF NOT EXISTS FOR (c:Code) REQUIRE (c.project_id, c.text) IS UNIQUE`,
	`CREATE CONSTRAINT fragment_project_id_unique IF NOT EXISTS FOR (f:Fragment) REQUIRE (f.project_id, f.id) IS UNIQUE`,
	`CREATE INDEX code_project_idx IF NOT EXISTS FOR (c:Code) ON (c.project_id)`,
}

// EnsureSchema is best-effort; restricted users may not be allowed to create constraints.
func (g *Neo4jCodeGraph) EnsureSchema(ctx context.Context) error {
	if err := g.configured(); err != nil {
		return err
	}
	session := g.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	for _, stmt := range schemaStatements {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			g.log.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
	return nil
}

func (g *Neo4jCodeGraph) Ping(ctx context.Context) error {
	if err := g.configured(); err != nil {
		return err
	}
	return g.client.Ping(ctx)
}

func (g *Neo4jCodeGraph) UpsertAssignments(ctx context.Context, projectID string, rows []Assignment, opts UpsertOptions) (UpsertResult, error) {
	var out UpsertResult
	if err := g.configured(); err != nil {
		return out, err
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return out, fmt.Errorf("neo4j code graph: missing project_id")
	}
	if len(rows) == 0 {
		return out, nil
	}
	g.schemaOnce.Do(func() { _ = g.EnsureSchema(ctx) })

	now := time.Now().UTC().Format(time.RFC3339Nano)
	fragmentIDs := make([]string, 0, len(rows))
	sourceFiles := map[string]string{}
	seen := map[string]bool{}
	for _, r := range rows {
		if r.FragmentID == "" || seen[r.FragmentID] {
			continue
		}
		seen[r.FragmentID] = true
		fragmentIDs = append(fragmentIDs, r.FragmentID)
		sourceFiles[r.FragmentID] = r.SourceFile
	}

	session := g.client.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		out = UpsertResult{}
		present := map[string]bool{}
		if opts.EnsureFragments {
			frags := make([]map[string]any, 0, len(fragmentIDs))
			for _, id := range fragmentIDs {
				frags = append(frags, map[string]any{"id": id, "source_file": sourceFiles[id]})
				present[id] = true
			}
			res, err := tx.Run(ctx, `
UNWIND $frags AS f
MERGE (n:Fragment {project_id: $project_id, id: f.id})
ON CREATE SET n.source_file = f.source_file, n.synced_at = $now
`, map[string]any{"frags": frags, "project_id": projectID, "now": now})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		} else {
			res, err := tx.Run(ctx, `
UNWIND $ids AS id
MATCH (f:Fragment {project_id: $project_id, id: id})
RETURN collect(DISTINCT f.id) AS ids
`, map[string]any{"ids": fragmentIDs, "project_id": projectID})
			if err != nil {
				return nil, err
			}
			rec, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			found, _, err := neo4j.GetRecordValue[[]any](rec, "ids")
			if err != nil {
				return nil, err
			}
			for _, v := range found {
				if s, ok := v.(string); ok {
					present[s] = true
				}
			}
		}
		for _, id := range fragmentIDs {
			if !present[id] {
				out.MissingFragments = append(out.MissingFragments, id)
			}
		}

		params := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			if !present[r.FragmentID] {
				continue
			}
			params = append(params, map[string]any{
				"id":          r.DefinitiveID.String(),
				"fragment_id": r.FragmentID,
				"code_text":   r.CodeText,
				"quote":       r.Quote,
			})
			out.Projected = append(out.Projected, r.DefinitiveID)
		}
		if len(params) == 0 {
			return nil, nil
		}

		res, err := tx.Run(ctx, `
UNWIND $rows AS r
MERGE (c:Code {project_id: $project_id, text: r.code_text})
ON CREATE SET c.created_at = $now
SET c.synced_at = $now
`, map[string]any{"rows": params, "project_id": projectID, "now": now})
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		out.CodesCreated = summary.Counters().NodesCreated()

		res, err = tx.Run(ctx, `
UNWIND $rows AS r
MATCH (c:Code {project_id: $project_id, text: r.code_text})
MATCH (f:Fragment {project_id: $project_id, id: r.fragment_id})
MERGE (c)-[h:HAS_CODE {project_id: $project_id}]->(f)
ON CREATE SET h.definitive_id = r.id, h.quote = r.quote, h.created_at = $now
SET h.synced_at = $now
`, map[string]any{"rows": params, "project_id": projectID, "now": now})
		if err != nil {
			return nil, err
		}
		summary, err = res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		out.RelationsCreated = summary.Counters().RelationshipsCreated()
		return nil, nil
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("neo4j code graph upsert: %w", err)
	}
	return out, nil
}

func (g *Neo4jCodeGraph) Counts(ctx context.Context, projectID string) (Counts, error) {
	var out Counts
	if err := g.configured(); err != nil {
		return out, err
	}
	session := g.client.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	queries := []struct {
		cypher string
		dst    *int64
	}{
		{`MATCH (c:Code {project_id: $project_id}) RETURN count(c) AS n`, &out.Codes},
		{`MATCH (f:Fragment {project_id: $project_id}) RETURN count(f) AS n`, &out.Fragments},
		{`MATCH (:Code)-[h:HAS_CODE {project_id: $project_id}]->(:Fragment) RETURN count(h) AS n`, &out.Relations},
	}
	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, q := range queries {
			res, err := tx.Run(ctx, q.cypher, map[string]any{"project_id": projectID})
			if err != nil {
				return nil, err
			}
			rec, err := res.Single(ctx)
			if err != nil {
				return nil, err
			}
			n, _, err := neo4j.GetRecordValue[int64](rec, "n")
			if err != nil {
				return nil, err
			}
			*q.dst = n
		}
		return nil, nil
	})
	if err != nil {
		return Counts{}, fmt.Errorf("neo4j code graph counts: %w", err)
	}
	return out, nil
}

func (g *Neo4jCodeGraph) configured() error {
	if g == nil || g.client == nil || g.client.Driver == nil {
		return ErrUnavailable
	}
	return nil
}

var _ CodeGraph = (*Neo4jCodeGraph)(nil)
