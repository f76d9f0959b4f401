package coding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/groundwork-backend/internal/data/graph"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

// Discrepancy kinds reported by Audit.
const (
	DiscrepancyGraphUnreachable = "graph_unreachable"
	DiscrepancyGraphReset       = "graph_reset"
	DiscrepancyGraphBehind      = "graph_behind"
	DiscrepancyGraphAhead       = "graph_ahead"
	DiscrepancyUnsyncedBacklog  = "unsynced_backlog"
	DiscrepancyFragmentsMissing = "fragment_store_empty"
)

type Discrepancy struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

type AuditOutput struct {
	ProjectID       string        `json:"project_id"`
	Fragments       int64         `json:"fragments"`
	DefinitiveCodes int64         `json:"definitive_codes"`
	SyncedCodes     int64         `json:"synced_codes"`
	GraphCodes      int64         `json:"graph_codes"`
	GraphFragments  int64         `json:"graph_fragments"`
	GraphRelations  int64         `json:"graph_relations"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	GraphReachable  bool          `json:"graph_reachable"`
	Healthy         bool          `json:"healthy"`
}

// Kinds lists the discrepancy kinds in report order.
func (o AuditOutput) Kinds() []string {
	out := make([]string, 0, len(o.Discrepancies))
	for _, d := range o.Discrepancies {
		out = append(out, d.Kind)
	}
	return out
}

// Audit compares the fragment store, the definitive store and the graph. It is read-only.
// A graph that lost its data (restored from an empty backup, wiped, pointed at a new database)
// shows up as graph_reset: rows flagged synced while the graph holds no relationships.
func (u Usecases) Audit(ctx context.Context, projectID string) (AuditOutput, error) {
	out := AuditOutput{ProjectID: projectID, Discrepancies: []Discrepancy{}}
	if err := requireProject(projectID); err != nil {
		return out, err
	}

	var graphErr error
	var gc graph.Counts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := u.deps.Repos.Fragments.Count(dbctx.Context{Ctx: gctx}, projectID)
		if err != nil {
			return fmt.Errorf("count fragments: %w", err)
		}
		out.Fragments = n
		return nil
	})
	g.Go(func() error {
		total, synced, err := u.deps.Repos.Definitive.Counts(dbctx.Context{Ctx: gctx}, projectID)
		if err != nil {
			return fmt.Errorf("count definitive codes: %w", err)
		}
		out.DefinitiveCodes, out.SyncedCodes = total, synced
		return nil
	})
	g.Go(func() error {
		if u.deps.Graph == nil {
			graphErr = graph.ErrUnavailable
			return nil
		}
		cctx, cancel := context.WithTimeout(gctx, u.deps.Config.GraphTimeout)
		defer cancel()
		gc, graphErr = u.deps.Graph.Counts(cctx, projectID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return out, internal("audit_failed", err)
	}

	out.GraphReachable = graphErr == nil
	if graphErr != nil {
		out.Discrepancies = append(out.Discrepancies, Discrepancy{
			Kind:   DiscrepancyGraphUnreachable,
			Detail: graphFailureReason(graphErr, u.deps.Config.GraphTimeout),
		})
	} else {
		out.GraphCodes, out.GraphFragments, out.GraphRelations = gc.Codes, gc.Fragments, gc.Relations
		switch {
		case out.SyncedCodes > 0 && out.GraphRelations == 0:
			out.Discrepancies = append(out.Discrepancies, Discrepancy{
				Kind:   DiscrepancyGraphReset,
				Detail: fmt.Sprintf("graph holds no HAS_CODE relationships while %d definitive rows are flagged synced", out.SyncedCodes),
			})
		case out.GraphRelations < out.SyncedCodes:
			out.Discrepancies = append(out.Discrepancies, Discrepancy{
				Kind:   DiscrepancyGraphBehind,
				Detail: fmt.Sprintf("graph holds %d HAS_CODE relationships, %d definitive rows are flagged synced", out.GraphRelations, out.SyncedCodes),
			})
		}
		if out.GraphRelations > out.DefinitiveCodes {
			out.Discrepancies = append(out.Discrepancies, Discrepancy{
				Kind:   DiscrepancyGraphAhead,
				Detail: fmt.Sprintf("graph holds %d HAS_CODE relationships for %d definitive rows", out.GraphRelations, out.DefinitiveCodes),
			})
		}
	}
	if unsynced := out.DefinitiveCodes - out.SyncedCodes; unsynced > 0 {
		out.Discrepancies = append(out.Discrepancies, Discrepancy{
			Kind:   DiscrepancyUnsyncedBacklog,
			Detail: fmt.Sprintf("%d definitive rows await graph projection", unsynced),
		})
	}
	if out.Fragments == 0 && out.DefinitiveCodes > 0 {
		out.Discrepancies = append(out.Discrepancies, Discrepancy{
			Kind:   DiscrepancyFragmentsMissing,
			Detail: fmt.Sprintf("fragment store is empty but %d definitive rows reference fragments", out.DefinitiveCodes),
		})
	}
	out.Healthy = len(out.Discrepancies) == 0

	u.deps.Metrics.SetAuditDiscrepancy("unsynced", float64(out.DefinitiveCodes-out.SyncedCodes))
	if out.GraphReachable {
		u.deps.Metrics.SetAuditDiscrepancy("graph_gap", float64(out.SyncedCodes-out.GraphRelations))
	}
	return out, nil
}

// AuditAndNotify runs Audit and publishes an audit.discrepancy event when it is unhealthy.
func (u Usecases) AuditAndNotify(ctx context.Context, projectID string) (AuditOutput, error) {
	out, err := u.Audit(ctx, projectID)
	if err != nil || out.Healthy {
		return out, err
	}
	u.deps.Log.Warn("coherence audit found discrepancies", "project_id", projectID, "kinds", out.Kinds())
	u.deps.Events.AuditDiscrepancy(ctx, projectID, out.Kinds(), map[string]any{
		"fragments":        out.Fragments,
		"definitive_codes": out.DefinitiveCodes,
		"synced_codes":     out.SyncedCodes,
		"graph_codes":      out.GraphCodes,
		"graph_relations":  out.GraphRelations,
	})
	return out, nil
}
