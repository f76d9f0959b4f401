package coding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/groundwork-backend/internal/data/graph"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

const (
	SyncTriggerPromote = "promote"
	SyncTriggerManual  = "manual"
	SyncTriggerJob     = "job"

	missingFragmentError = "fragment node not found in graph"
)

var tracer = observability.Tracer("groundwork/coding")

type SyncGraphInput struct {
	ProjectID    string
	OnlyUnsynced bool
	// Trigger labels metrics and logs; defaults to manual.
	Trigger string
}

type SyncGraphOutput struct {
	CodesBefore      int64    `json:"codes_before"`
	SyncedCodes      int      `json:"synced_codes"`
	SyncedRelations  int      `json:"synced_relations"`
	Considered       int      `json:"considered"`
	Projected        int      `json:"projected"`
	MissingFragments []string `json:"missing_fragments"`
	Batches          int      `json:"batches"`
	Deferred         bool     `json:"deferred"`
	DeferredReason   string   `json:"deferred_reason,omitempty"`
}

// SyncGraph projects definitive rows into the graph store. Re-running it is safe: nodes and
// relationships are merged, so a second pass with nothing new reports zero created.
// An unreachable graph is not an error; the output is flagged Deferred and rows stay unsynced.
func (u Usecases) SyncGraph(ctx context.Context, in SyncGraphInput) (SyncGraphOutput, error) {
	out := SyncGraphOutput{MissingFragments: []string{}}
	if err := requireProject(in.ProjectID); err != nil {
		return out, err
	}
	trigger := in.Trigger
	if trigger == "" {
		trigger = SyncTriggerManual
	}
	log := u.deps.Log.With("op", "SyncGraph", "project_id", in.ProjectID, "trigger", trigger)

	if u.deps.Graph == nil {
		out.Deferred, out.DeferredReason = true, graphFailureReason(graph.ErrUnavailable, 0)
		u.deps.Metrics.ObserveGraphSync(trigger, "deferred", 0)
		return out, nil
	}

	cctx, cancel := context.WithTimeout(ctx, u.deps.Config.GraphTimeout)
	before, err := u.deps.Graph.Counts(cctx, in.ProjectID)
	cancel()
	if err != nil {
		out.Deferred, out.DeferredReason = true, graphFailureReason(err, u.deps.Config.GraphTimeout)
		log.Warn("graph unreachable; sync deferred", "error", err)
		u.deps.Metrics.ObserveGraphSync(trigger, "deferred", 0)
		u.deps.Events.GraphDeferred(ctx, in.ProjectID, u.pendingSync(ctx, in.ProjectID), out.DeferredReason)
		return out, nil
	}
	out.CodesBefore = before.Codes

	rows, err := u.deps.Repos.Definitive.ListForSync(dbctx.Context{Ctx: ctx}, in.ProjectID, in.OnlyUnsynced)
	if err != nil {
		return out, internal("sync_list_failed", err)
	}
	out.Considered = len(rows)

	p, err := u.project(ctx, in.ProjectID, rows, trigger)
	if err != nil {
		return out, internal("sync_mark_failed", err)
	}
	out.SyncedCodes = p.codesCreated
	out.SyncedRelations = p.relationsCreated
	out.Projected = len(p.projected)
	out.MissingFragments = p.missing
	out.Batches = p.batches
	out.Deferred, out.DeferredReason = p.deferred, p.reason

	if p.deferred {
		u.deps.Events.GraphDeferred(ctx, in.ProjectID, len(rows)-len(p.projected), p.reason)
	} else if p.relationsCreated > 0 || len(p.missing) > 0 {
		u.deps.Events.GraphSynced(ctx, in.ProjectID, p.codesCreated, p.relationsCreated, p.missing)
	}
	log.Info("graph sync finished",
		"considered", out.Considered,
		"codes_created", out.SyncedCodes,
		"relations_created", out.SyncedRelations,
		"missing_fragments", len(out.MissingFragments),
		"deferred", out.Deferred,
	)
	return out, nil
}

type projection struct {
	codesCreated     int
	relationsCreated int
	projected        []uuid.UUID
	missing          []string
	batches          int
	deferred         bool
	reason           string
}

// project writes rows to the graph in batches, each bounded by the graph timeout, and records
// the outcome on the relational rows. The first failing batch stops the pass; it and every later
// batch stay unsynced. Only relational bookkeeping failures are returned as errors.
func (u Usecases) project(ctx context.Context, projectID string, rows []*domain.DefinitiveCode, trigger string) (projection, error) {
	p := projection{missing: []string{}}
	if len(rows) == 0 {
		return p, nil
	}
	start := time.Now()
	ctx, span := tracer.Start(ctx, "coding.graph.project")
	defer span.End()
	span.SetAttributes(
		attribute.String("project_id", projectID),
		attribute.String("trigger", trigger),
		attribute.Int("rows", len(rows)),
	)

	if u.deps.Graph == nil {
		p.deferred, p.reason = true, graphFailureReason(graph.ErrUnavailable, 0)
		u.deps.Metrics.ObserveGraphSync(trigger, "deferred", time.Since(start))
		return p, nil
	}

	// Bookkeeping must land even when the caller's context has expired.
	bctx := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	opts := graph.UpsertOptions{EnsureFragments: u.deps.Config.GraphEnsureFragments}
	size := u.deps.Config.GraphBatchSize
	missingSet := map[string]bool{}

	for lo := 0; lo < len(rows); lo += size {
		hi := lo + size
		if hi > len(rows) {
			hi = len(rows)
		}
		batch := rows[lo:hi]
		p.batches++

		assignments := make([]graph.Assignment, 0, len(batch))
		ids := make([]uuid.UUID, 0, len(batch))
		for _, r := range batch {
			assignments = append(assignments, graph.Assignment{
				DefinitiveID: r.ID,
				FragmentID:   r.FragmentID,
				CodeText:     r.CodeText,
				Quote:        r.Quote,
				SourceFile:   r.SourceFile,
			})
			ids = append(ids, r.ID)
		}

		gctx, cancel := context.WithTimeout(ctx, u.deps.Config.GraphTimeout)
		res, err := u.deps.Graph.UpsertAssignments(gctx, projectID, assignments, opts)
		cancel()
		if err != nil {
			p.deferred = true
			p.reason = graphFailureReason(err, u.deps.Config.GraphTimeout)
			span.RecordError(err)
			span.SetStatus(codes.Error, p.reason)
			if merr := u.deps.Repos.Definitive.MarkSyncError(bctx, projectID, ids, p.reason); merr != nil {
				return p, merr
			}
			break
		}

		p.codesCreated += res.CodesCreated
		p.relationsCreated += res.RelationsCreated
		if len(res.Projected) > 0 {
			if err := u.deps.Repos.Definitive.MarkSynced(bctx, projectID, res.Projected, u.deps.Now()); err != nil {
				return p, err
			}
			p.projected = append(p.projected, res.Projected...)
		}
		if len(res.MissingFragments) > 0 {
			missing := map[string]bool{}
			for _, f := range res.MissingFragments {
				missing[f] = true
				missingSet[f] = true
			}
			var unsynced []uuid.UUID
			for _, r := range batch {
				if missing[r.FragmentID] {
					unsynced = append(unsynced, r.ID)
				}
			}
			if err := u.deps.Repos.Definitive.MarkSyncError(bctx, projectID, unsynced, missingFragmentError); err != nil {
				return p, err
			}
		}
	}

	for f := range missingSet {
		p.missing = append(p.missing, f)
	}
	sort.Strings(p.missing)

	outcome := "ok"
	switch {
	case p.deferred:
		outcome = "deferred"
	case len(p.missing) > 0:
		outcome = "partial"
	}
	u.deps.Metrics.ObserveGraphSync(trigger, outcome, time.Since(start))
	span.SetAttributes(
		attribute.Int("codes_created", p.codesCreated),
		attribute.Int("relations_created", p.relationsCreated),
		attribute.Int("missing_fragments", len(p.missing)),
		attribute.Bool("deferred", p.deferred),
	)
	return p, nil
}

// pendingSync is the number of definitive rows awaiting projection; lookup failures count as zero.
func (u Usecases) pendingSync(ctx context.Context, projectID string) int {
	total, synced, err := u.deps.Repos.Definitive.Counts(dbctx.Context{Ctx: ctx}, projectID)
	if err != nil {
		return 0
	}
	return int(total - synced)
}

func graphFailureReason(err error, timeout time.Duration) string {
	switch {
	case errors.Is(err, graph.ErrUnavailable):
		return "graph store not configured"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("graph write timed out after %s", timeout)
	case errors.Is(err, context.Canceled):
		return "graph write canceled"
	}
	return err.Error()
}
