package coding

import (
	"context"

	"github.com/yungbote/groundwork-backend/internal/modules/coding/steps"
	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

type DetectDuplicatesInput struct {
	ProjectID string
	Threshold float64
}

type DetectDuplicatesOutput struct {
	Pairs          []steps.DuplicatePair `json:"pairs"`
	VocabularySize int                   `json:"vocabulary_size"`
	Threshold      float64               `json:"threshold"`
}

// DetectDuplicates compares every pair in the project vocabulary (candidates and definitive codes)
// by edit distance and reports the pairs at or above the threshold.
func (u Usecases) DetectDuplicates(ctx context.Context, in DetectDuplicatesInput) (DetectDuplicatesOutput, error) {
	if err := requireProject(in.ProjectID); err != nil {
		return DetectDuplicatesOutput{}, err
	}
	threshold := in.Threshold
	if threshold == 0 {
		threshold = u.deps.Config.DuplicateThreshold
	}
	if threshold <= 0 || threshold > 1 {
		return DetectDuplicatesOutput{}, apierr.BadRequest("invalid_threshold", "threshold must be in (0, 1]")
	}
	vocab, err := u.vocabulary(dbctx.Context{Ctx: ctx}, in.ProjectID)
	if err != nil {
		return DetectDuplicatesOutput{}, internal("vocabulary_failed", err)
	}
	pairs, size := steps.NearDuplicates(vocab, threshold)
	if pairs == nil {
		pairs = []steps.DuplicatePair{}
	}
	return DetectDuplicatesOutput{Pairs: pairs, VocabularySize: size, Threshold: threshold}, nil
}

// vocabulary returns candidate and definitive code texts of a project, candidates first.
func (u Usecases) vocabulary(dbc dbctx.Context, projectID string) ([]string, error) {
	cands, err := u.deps.Repos.Candidates.DistinctVocabulary(dbc, projectID)
	if err != nil {
		return nil, err
	}
	defs, err := u.deps.Repos.Definitive.DistinctCodes(dbc, projectID)
	if err != nil {
		return nil, err
	}
	return append(cands, defs...), nil
}
