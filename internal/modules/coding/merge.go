package coding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
)

type MergeCandidatesInput struct {
	ProjectID      string
	SourceIDs      []uuid.UUID
	TargetCodeText string
	Memo           *string
	DryRun         bool
	IdempotencyKey string
	Actor          string
}

// MergeCandidates folds the given candidates into TargetCodeText. A replayed idempotency key
// returns the stored outcome.
func (u Usecases) MergeCandidates(ctx context.Context, in MergeCandidatesInput) (domainagg.MergeByIDResult, error) {
	if err := requireProject(in.ProjectID); err != nil {
		return domainagg.MergeByIDResult{}, err
	}
	if len(in.SourceIDs) == 0 {
		return domainagg.MergeByIDResult{}, apierr.BadRequest("missing_source_ids", "source_ids is required")
	}
	if strings.TrimSpace(in.TargetCodeText) == "" {
		return domainagg.MergeByIDResult{}, apierr.BadRequest("missing_target", "target_code_text is required")
	}
	res, err := u.deps.Candidates.MergeByID(ctx, domainagg.MergeByIDInput{
		ProjectID:      strings.TrimSpace(in.ProjectID),
		SourceIDs:      in.SourceIDs,
		TargetCodeText: in.TargetCodeText,
		Memo:           in.Memo,
		DryRun:         in.DryRun,
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		Actor:          strings.TrimSpace(in.Actor),
		At:             u.deps.Now(),
	})
	if err != nil {
		return domainagg.MergeByIDResult{}, mapError(err)
	}
	if err := singleMergeOutcome(res); err != nil {
		return domainagg.MergeByIDResult{}, err
	}
	return res, nil
}

// singleMergeOutcome turns a batch where every item was skipped for the same client-side reason into
// a request error.
func singleMergeOutcome(res domainagg.MergeByIDResult) error {
	if res.MergedCount > 0 || len(res.Items) == 0 {
		return nil
	}
	reason := res.Items[0].Skipped
	for _, it := range res.Items[1:] {
		if it.Skipped != reason {
			return nil
		}
	}
	switch reason {
	case domainagg.SkipTargetEqualsSource:
		return apierr.BadRequest("merge_target_equals_source", "merge target equals the source code text")
	case domainagg.SkipNotFound:
		return apierr.New(http.StatusNotFound, "candidate_not_found", fmt.Errorf("no candidate matched the given ids"))
	}
	return nil
}

type AutoMergeInput struct {
	ProjectID      string
	Pairs          []domainagg.MergePair
	Memo           *string
	DryRun         bool
	IdempotencyKey string
	Actor          string
}

// AutoMerge applies name-based merge pairs. Each pair reports its own outcome.
func (u Usecases) AutoMerge(ctx context.Context, in AutoMergeInput) (domainagg.MergeByNameResult, error) {
	if err := requireProject(in.ProjectID); err != nil {
		return domainagg.MergeByNameResult{}, err
	}
	if len(in.Pairs) == 0 {
		return domainagg.MergeByNameResult{}, apierr.BadRequest("missing_pairs", "at least one merge pair is required")
	}
	res, err := u.deps.Candidates.MergeByName(ctx, domainagg.MergeByNameInput{
		ProjectID:      strings.TrimSpace(in.ProjectID),
		Pairs:          in.Pairs,
		Memo:           in.Memo,
		DryRun:         in.DryRun,
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		Actor:          strings.TrimSpace(in.Actor),
		At:             u.deps.Now(),
	})
	if err != nil {
		return domainagg.MergeByNameResult{}, mapError(err)
	}
	if !in.DryRun && res.TotalMerged > 0 {
		u.deps.Log.Info("auto-merge applied", "project_id", in.ProjectID, "pairs", len(in.Pairs), "merged", res.TotalMerged)
	}
	return res, nil
}
