package coding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
)

const maxSubmitBatch = 5000

type SubmitCandidatesInput struct {
	ProjectID string
	Actor     string
	Items     []domainagg.CandidateDraft
}

// SubmitCandidates stores a batch of proposals as pending candidates. Per-item problems
// are reported on the item; only a malformed request fails the batch.
func (u Usecases) SubmitCandidates(ctx context.Context, in SubmitCandidatesInput) (domainagg.SubmitCandidatesResult, error) {
	if err := requireProject(in.ProjectID); err != nil {
		return domainagg.SubmitCandidatesResult{}, err
	}
	if len(in.Items) == 0 {
		return domainagg.SubmitCandidatesResult{}, apierr.BadRequest("empty_batch", "at least one candidate is required")
	}
	if len(in.Items) > maxSubmitBatch {
		return domainagg.SubmitCandidatesResult{}, apierr.New(http.StatusRequestEntityTooLarge, "batch_too_large",
			fmt.Errorf("batch of %d exceeds the limit of %d", len(in.Items), maxSubmitBatch))
	}
	res, err := u.deps.Candidates.Submit(ctx, domainagg.SubmitCandidatesInput{
		ProjectID: strings.TrimSpace(in.ProjectID),
		Actor:     strings.TrimSpace(in.Actor),
		Items:     in.Items,
		At:        u.deps.Now(),
	})
	if err != nil {
		return domainagg.SubmitCandidatesResult{}, mapError(err)
	}
	u.deps.Log.Debug("candidates submitted", "project_id", in.ProjectID, "inserted", res.InsertedCount, "items", len(in.Items))
	return res, nil
}
