package coding

import (
	"context"
	"sort"

	"github.com/yungbote/groundwork-backend/internal/data/similarity"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/modules/coding/steps"
	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

// Match sources reported by CheckBatch.
const (
	MatchExact    = "exact"
	MatchSemantic = "semantic"
)

const maxCheckBatch = 2000

type CheckBatchInput struct {
	ProjectID string
	Codes     []string
	Threshold float64
}

type SimilarCode struct {
	CodeText   string  `json:"code_text"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
}

type CheckBatchItem struct {
	Index            int           `json:"index"`
	CodeText         string        `json:"code_text"`
	Normalized       string        `json:"normalized"`
	HasSimilar       bool          `json:"has_similar"`
	Similar          []SimilarCode `json:"similar"`
	DuplicateInBatch bool          `json:"duplicate_in_batch"`
	BatchGroupSize   int           `json:"batch_group_size"`
}

type CheckBatchOutput struct {
	Items                   []CheckBatchItem `json:"items"`
	UniqueGroups            int              `json:"unique_groups"`
	DuplicatePairs          int              `json:"duplicate_pairs"`
	Threshold               float64          `json:"threshold"`
	SimilarityCheckDegraded bool             `json:"similarity_check_degraded"`
}

// CheckBatch is the pre-insert dedup gate. Every item is compared against the project
// vocabulary and against the rest of the batch; two texts that normalize identically are
// duplicates with similarity 1.0. Semantic neighbours come from the similarity index when it is
// reachable; otherwise the result is flagged degraded and only exact matches are reported.
func (u Usecases) CheckBatch(ctx context.Context, in CheckBatchInput) (CheckBatchOutput, error) {
	if err := requireProject(in.ProjectID); err != nil {
		return CheckBatchOutput{}, err
	}
	if len(in.Codes) == 0 {
		return CheckBatchOutput{}, apierr.BadRequest("empty_batch", "at least one code is required")
	}
	if len(in.Codes) > maxCheckBatch {
		return CheckBatchOutput{}, apierr.BadRequest("batch_too_large", "batch of %d exceeds the limit of %d", len(in.Codes), maxCheckBatch)
	}
	threshold := in.Threshold
	if threshold == 0 {
		threshold = u.deps.Config.SimilarityThreshold
	}
	if threshold <= 0 || threshold > 1 {
		return CheckBatchOutput{}, apierr.BadRequest("invalid_threshold", "threshold must be in (0, 1]")
	}

	groups := steps.GroupBatch(in.Codes)
	out := CheckBatchOutput{
		Items:     make([]CheckBatchItem, len(in.Codes)),
		Threshold: threshold,
	}
	var keyed []steps.BatchGroup
	var keys, queries []string
	for _, g := range groups {
		for _, idx := range g.Indexes {
			out.Items[idx] = CheckBatchItem{
				Index:            idx,
				CodeText:         in.Codes[idx],
				Normalized:       g.Key,
				DuplicateInBatch: g.Key != "" && len(g.Indexes) > 1,
				BatchGroupSize:   len(g.Indexes),
				Similar:          []SimilarCode{},
			}
		}
		if g.Key == "" {
			continue
		}
		keyed = append(keyed, g)
		keys = append(keys, g.Key)
		queries = append(queries, domain.CleanCodeText(in.Codes[g.Indexes[0]]))
	}
	out.UniqueGroups = len(keyed)
	out.DuplicatePairs = steps.DuplicatePairs(keyed)

	known, err := u.exactMatches(dbctx.Context{Ctx: ctx}, in.ProjectID, keys)
	if err != nil {
		return CheckBatchOutput{}, internal("vocabulary_failed", err)
	}

	neighbors, degraded := u.nearest(ctx, in.ProjectID, queries, threshold)
	out.SimilarityCheckDegraded = degraded

	for gi, g := range keyed {
		var similar []SimilarCode
		seen := map[string]bool{}
		for _, text := range known[g.Key] {
			similar = append(similar, SimilarCode{CodeText: text, Similarity: 1, Source: MatchExact})
		}
		if len(known[g.Key]) > 0 {
			seen[g.Key] = true
		}
		if gi < len(neighbors) {
			for _, n := range neighbors[gi] {
				key := domain.NormalizeCodeText(n.CodeText)
				if key == "" || seen[key] {
					continue
				}
				seen[key] = true
				similar = append(similar, SimilarCode{CodeText: n.CodeText, Similarity: n.Similarity, Source: MatchSemantic})
			}
		}
		sort.SliceStable(similar, func(i, j int) bool { return similar[i].Similarity > similar[j].Similarity })
		for _, idx := range g.Indexes {
			item := &out.Items[idx]
			item.Similar = append([]SimilarCode{}, similar...)
			item.HasSimilar = len(similar) > 0
		}
	}

	mode := "full"
	if degraded {
		mode = "degraded"
	}
	u.deps.Metrics.IncDedupCheck(mode)
	return out, nil
}

// exactMatches maps each normalized key to the stored spellings sharing it, candidates first.
// Only the batch keys are fetched.
func (u Usecases) exactMatches(dbc dbctx.Context, projectID string, keys []string) (map[string][]string, error) {
	known := map[string][]string{}
	if len(keys) == 0 {
		return known, nil
	}
	cands, err := u.deps.Repos.Candidates.ListByNormalized(dbc, projectID, keys)
	if err != nil {
		return nil, err
	}
	defs, err := u.deps.Repos.Definitive.ListByNormalized(dbc, projectID, keys)
	if err != nil {
		return nil, err
	}
	add := func(key, text string) {
		if key == "" || text == "" || containsString(known[key], text) {
			return
		}
		known[key] = append(known[key], text)
	}
	for _, c := range cands {
		add(c.NormalizedText, c.CodeText)
	}
	for _, d := range defs {
		add(d.NormalizedText, d.CodeText)
	}
	return known, nil
}

// nearest asks the similarity index for neighbours. The second result is true when the index
// was unavailable and the lookup was skipped.
func (u Usecases) nearest(ctx context.Context, projectID string, texts []string, threshold float64) ([][]similarity.Neighbor, bool) {
	if u.deps.Similarity == nil {
		return nil, true
	}
	if len(texts) == 0 {
		return nil, false
	}
	res, err := u.deps.Similarity.Nearest(ctx, projectID, texts, threshold, u.deps.Config.SimilarityTopK)
	if err != nil {
		u.deps.Log.Warn("similarity lookup failed; exact-match only", "project_id", projectID, "error", err)
		return nil, true
	}
	return res, false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
