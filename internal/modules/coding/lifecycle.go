package coding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

type TransitionInput struct {
	ProjectID   string
	CandidateID uuid.UUID
	Actor       string
	Memo        *string
}

func (in TransitionInput) validate() error {
	if err := requireProject(in.ProjectID); err != nil {
		return err
	}
	if in.CandidateID == uuid.Nil {
		return apierr.BadRequest("missing_candidate_id", "candidate_id is required")
	}
	return nil
}

// GetCandidate returns one candidate of the project, whatever its state.
func (u Usecases) GetCandidate(ctx context.Context, projectID string, id uuid.UUID) (*domain.CandidateCode, error) {
	if err := requireProject(projectID); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, apierr.BadRequest("missing_candidate_id", "candidate_id is required")
	}
	row, err := u.deps.Repos.Candidates.GetByID(dbctx.Context{Ctx: ctx}, strings.TrimSpace(projectID), id)
	if err != nil {
		return nil, internal("candidate_lookup_failed", err)
	}
	if row == nil {
		return nil, apierr.New(http.StatusNotFound, "candidate_not_found", fmt.Errorf("candidate %s not found", id))
	}
	return row, nil
}

func (u Usecases) ValidateCandidate(ctx context.Context, in TransitionInput) (domainagg.TransitionCandidateResult, error) {
	if err := requireActor(in.Actor); err != nil {
		return domainagg.TransitionCandidateResult{}, err
	}
	return u.transition(ctx, in, domain.StateValidated)
}

func (u Usecases) RejectCandidate(ctx context.Context, in TransitionInput) (domainagg.TransitionCandidateResult, error) {
	return u.transition(ctx, in, domain.StateRejected)
}

// MarkHypothesis toggles the reviewer annotation on a pending candidate. Clear returns it to pending.
func (u Usecases) MarkHypothesis(ctx context.Context, in TransitionInput, clear bool) (domainagg.TransitionCandidateResult, error) {
	if clear {
		return u.transition(ctx, in, domain.StatePending)
	}
	return u.transition(ctx, in, domain.StateHypothesis)
}

func (u Usecases) transition(ctx context.Context, in TransitionInput, to domain.State) (domainagg.TransitionCandidateResult, error) {
	if err := in.validate(); err != nil {
		return domainagg.TransitionCandidateResult{}, err
	}
	res, err := u.deps.Candidates.Transition(ctx, domainagg.TransitionCandidateInput{
		ProjectID:   strings.TrimSpace(in.ProjectID),
		CandidateID: in.CandidateID,
		ToState:     string(to),
		Actor:       strings.TrimSpace(in.Actor),
		Memo:        in.Memo,
		At:          u.deps.Now(),
	})
	if err != nil {
		return domainagg.TransitionCandidateResult{}, mapError(err)
	}
	return res, nil
}

type RevertValidatedInput struct {
	ProjectID string
	Actor     string
	Memo      *string
	DryRun    bool
}

// RevertValidated returns unpromoted validated candidates to pending. DryRun only counts.
func (u Usecases) RevertValidated(ctx context.Context, in RevertValidatedInput) (domainagg.RevertValidatedResult, error) {
	if err := requireProject(in.ProjectID); err != nil {
		return domainagg.RevertValidatedResult{}, err
	}
	res, err := u.deps.Candidates.RevertValidated(ctx, domainagg.RevertValidatedInput{
		ProjectID: strings.TrimSpace(in.ProjectID),
		Actor:     strings.TrimSpace(in.Actor),
		Memo:      in.Memo,
		DryRun:    in.DryRun,
		At:        u.deps.Now(),
	})
	if err != nil {
		return domainagg.RevertValidatedResult{}, mapError(err)
	}
	if !in.DryRun && res.RevertedCount > 0 {
		u.deps.Log.Info("validated candidates reverted", "project_id", in.ProjectID, "count", res.RevertedCount)
	}
	return res, nil
}
