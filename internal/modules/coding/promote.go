package coding

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/groundwork-backend/internal/data/repos"
	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

type PromoteInput struct {
	ProjectID           string
	CandidateIDs        []uuid.UUID
	PromoteAllValidated bool
	Actor               string
	Async               bool
}

type PromoteOutput struct {
	domainagg.PromoteCandidatesResult

	GraphMerged           int        `json:"graph_merged"`
	GraphMissingFragments int        `json:"graph_missing_fragments"`
	GraphDeferred         bool       `json:"graph_deferred"`
	GraphDeferredReason   string     `json:"graph_deferred_reason,omitempty"`
	Queued                bool       `json:"queued"`
	JobID                 *uuid.UUID `json:"job_id,omitempty"`
}

// PromoteJobPayload is the coding_promote job payload. CandidateIDs is filled by the
// pipeline so a malformed entry can be reported by position.
type PromoteJobPayload struct {
	ProjectID           string      `json:"project_id"`
	CandidateIDs        []uuid.UUID `json:"-"`
	PromoteAllValidated bool        `json:"promote_all_validated"`
	Actor               string      `json:"actor"`
}

func (p PromoteJobPayload) Input() PromoteInput {
	return PromoteInput{
		ProjectID:           p.ProjectID,
		CandidateIDs:        p.CandidateIDs,
		PromoteAllValidated: p.PromoteAllValidated,
		Actor:               p.Actor,
	}
}

func (in PromoteInput) validate() error {
	if err := requireProject(in.ProjectID); err != nil {
		return err
	}
	if err := requireActor(in.Actor); err != nil {
		return err
	}
	if !in.PromoteAllValidated && len(in.CandidateIDs) == 0 {
		return apierr.BadRequest("missing_candidate_ids", "candidate_ids is required unless promote_all_validated is set")
	}
	return nil
}

// Promote moves validated candidates with evidence into the definitive store and projects the new
// rows into the graph. Large selections, or Async requests, run as a coding_promote job instead.
func (u Usecases) Promote(ctx context.Context, in PromoteInput) (PromoteOutput, error) {
	if err := in.validate(); err != nil {
		return PromoteOutput{}, err
	}
	if u.deps.Jobs == nil || !u.shouldQueue(ctx, in) {
		return u.RunPromote(ctx, in)
	}

	ids := make([]string, 0, len(in.CandidateIDs))
	for _, id := range in.CandidateIDs {
		ids = append(ids, id.String())
	}
	job, err := u.deps.Jobs.Enqueue(dbctx.Context{Ctx: ctx}, in.ProjectID, JobTypePromote, jobEntityProject, in.ProjectID, map[string]any{
		"project_id":            in.ProjectID,
		"candidate_ids":         ids,
		"promote_all_validated": in.PromoteAllValidated,
		"actor":                 strings.TrimSpace(in.Actor),
	})
	if err != nil {
		return PromoteOutput{}, internal("enqueue_failed", err)
	}
	u.deps.Log.Info("promotion queued", "project_id", in.ProjectID, "job_id", job.ID, "candidates", len(in.CandidateIDs), "all_validated", in.PromoteAllValidated)
	return PromoteOutput{Queued: true, JobID: &job.ID}, nil
}

func (u Usecases) shouldQueue(ctx context.Context, in PromoteInput) bool {
	if in.Async {
		return true
	}
	limit := u.deps.Config.PromoteAsyncThreshold
	if limit <= 0 {
		return false
	}
	if !in.PromoteAllValidated {
		return len(in.CandidateIDs) > limit
	}
	promoted := false
	_, total, err := u.deps.Repos.Candidates.List(dbctx.Context{Ctx: ctx}, repos.CandidateFilter{
		ProjectID: in.ProjectID,
		State:     domain.StateValidated,
		Promoted:  &promoted,
		Limit:     1,
	})
	if err != nil {
		u.deps.Log.Warn("validated count failed; promoting inline", "project_id", in.ProjectID, "error", err)
		return false
	}
	return total > int64(limit)
}

// RunPromote promotes inline. The relational write commits before the graph is touched, so a graph
// failure only defers the projection: the rows stay unsynced and a graph_sync job is queued.
func (u Usecases) RunPromote(ctx context.Context, in PromoteInput) (PromoteOutput, error) {
	if err := in.validate(); err != nil {
		return PromoteOutput{}, err
	}
	log := u.deps.Log.With("op", "Promote", "project_id", in.ProjectID)

	res, err := u.deps.Candidates.Promote(ctx, domainagg.PromoteCandidatesInput{
		ProjectID:           strings.TrimSpace(in.ProjectID),
		CandidateIDs:        in.CandidateIDs,
		PromoteAllValidated: in.PromoteAllValidated,
		Actor:               strings.TrimSpace(in.Actor),
		At:                  u.deps.Now(),
	})
	if err != nil {
		return PromoteOutput{}, mapError(err)
	}
	if res.Skipped == nil {
		res.Skipped = []domainagg.PromoteSkip{}
	}
	u.deps.Metrics.ObservePromotion(res.PromotedCount, res.SkippedTotal)
	out := PromoteOutput{PromoteCandidatesResult: res}
	if res.PromotedCount > 0 {
		u.deps.Events.CandidatesPromoted(ctx, in.ProjectID, res.PromotedCount, res.DefinitiveIDs)
	}
	if len(res.DefinitiveIDs) == 0 {
		return out, nil
	}

	rows, err := u.deps.Repos.Definitive.ListByIDs(dbctx.Context{Ctx: ctx}, in.ProjectID, res.DefinitiveIDs)
	if err != nil {
		log.Warn("loading promoted rows failed; graph deferred", "error", err)
		out.GraphDeferred, out.GraphDeferredReason = true, "definitive rows unavailable"
		u.deferGraphSync(ctx, in.ProjectID, len(res.DefinitiveIDs), out.GraphDeferredReason)
		return out, nil
	}
	p, err := u.project(ctx, in.ProjectID, rows, SyncTriggerPromote)
	if err != nil {
		log.Warn("graph bookkeeping failed", "error", err)
		p.deferred, p.reason = true, "graph bookkeeping failed"
	}
	out.GraphMerged = len(p.projected)
	out.GraphMissingFragments = len(p.missing)
	if p.deferred {
		out.GraphDeferred, out.GraphDeferredReason = true, p.reason
		log.Warn("graph projection deferred", "reason", p.reason, "rows", len(rows))
		u.deferGraphSync(ctx, in.ProjectID, len(rows)-len(p.projected), p.reason)
	} else if p.relationsCreated > 0 || len(p.missing) > 0 {
		u.deps.Events.GraphSynced(ctx, in.ProjectID, p.codesCreated, p.relationsCreated, p.missing)
	}
	return out, nil
}

// deferGraphSync queues a graph_sync for the project unless one is already runnable.
func (u Usecases) deferGraphSync(ctx context.Context, projectID string, pending int, reason string) {
	u.deps.Events.GraphDeferred(ctx, projectID, pending, reason)
	if u.deps.Jobs == nil {
		return
	}
	dctx := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	_, created, err := u.deps.Jobs.EnqueueUnlessRunnable(dctx, projectID, JobTypeGraphSync, jobEntityProject, projectID, map[string]any{
		"project_id": projectID,
	})
	if err != nil {
		u.deps.Log.Warn("graph_sync enqueue failed", "project_id", projectID, "error", err)
		return
	}
	if created {
		u.deps.Log.Info("graph_sync queued", "project_id", projectID, "pending", pending)
	}
}
