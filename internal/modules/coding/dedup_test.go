package coding_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	"github.com/yungbote/groundwork-backend/internal/data/similarity"
	domaincoding "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
)

func TestCheckBatchFlagsInBatchDuplicates(t *testing.T) {
	f := newFixture(t, withoutSimilarity())

	out, err := f.uc.CheckBatch(f.ctx, coding.CheckBatchInput{ProjectID: f.project, Codes: []string{"Poder Local", "poder local "}, Threshold: 0.85})
	require.NoError(t, err)
	require.True(t, out.SimilarityCheckDegraded)
	require.Equal(t, 1, out.UniqueGroups)
	require.Equal(t, 1, out.DuplicatePairs)
	for _, item := range out.Items {
		require.True(t, item.DuplicateInBatch)
		require.Equal(t, 2, item.BatchGroupSize)
		require.False(t, item.HasSimilar)
		require.Equal(t, "poder local", item.Normalized)
	}
}

func TestCheckBatchMatchesVocabulary(t *testing.T) {
	f := newFixture(t)
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Liderazgo")
	testutil.SeedDefinitive(t, f.ctx, f.db, f.project, testutil.FragmentKey(1), "Confianza", false)
	f.sim.Neighbors = map[string][]similarity.Neighbor{
		"Lideresa": {{CodeText: "Liderazgo", Similarity: 0.91}, {CodeText: "Poder", Similarity: 0.4}},
	}

	out, err := f.uc.CheckBatch(f.ctx, coding.CheckBatchInput{ProjectID: f.project, Codes: []string{"LIDERAZGO", "Lideresa", "Confianza ", ""}})
	require.NoError(t, err)
	require.False(t, out.SimilarityCheckDegraded)
	require.Equal(t, 0.85, out.Threshold)
	require.Equal(t, 3, out.UniqueGroups)
	require.Zero(t, out.DuplicatePairs)
	require.Equal(t, 1, f.sim.Calls)

	require.True(t, out.Items[0].HasSimilar)
	require.Equal(t, []coding.SimilarCode{{CodeText: "Liderazgo", Similarity: 1, Source: coding.MatchExact}}, out.Items[0].Similar)

	require.True(t, out.Items[1].HasSimilar)
	require.Equal(t, []coding.SimilarCode{{CodeText: "Liderazgo", Similarity: 0.91, Source: coding.MatchSemantic}}, out.Items[1].Similar)

	require.Equal(t, "Confianza", out.Items[2].Similar[0].CodeText)
	require.Equal(t, coding.MatchExact, out.Items[2].Similar[0].Source)

	require.False(t, out.Items[3].HasSimilar)
	require.False(t, out.Items[3].DuplicateInBatch)
	require.Equal(t, 1, out.Items[3].BatchGroupSize)
}

func TestCheckBatchExactMatchesOnlyActiveRows(t *testing.T) {
	f := newFixture(t, withoutSimilarity())
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Memoria colectiva", testutil.WithState(domaincoding.StateRejected))
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "memoria Colectiva")
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Territorio")
	testutil.SeedDefinitive(t, f.ctx, f.db, f.project, testutil.FragmentKey(4), "Memoria colectiva", true)

	out, err := f.uc.CheckBatch(f.ctx, coding.CheckBatchInput{ProjectID: f.project, Codes: []string{"MEMORIA  colectiva", "Paisaje"}})
	require.NoError(t, err)
	require.Equal(t, []coding.SimilarCode{
		{CodeText: "memoria Colectiva", Similarity: 1, Source: coding.MatchExact},
		{CodeText: "Memoria colectiva", Similarity: 1, Source: coding.MatchExact},
	}, out.Items[0].Similar)
	require.False(t, out.Items[1].HasSimilar)
}

func TestCheckBatchDegradesWhenIndexFails(t *testing.T) {
	f := newFixture(t)
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Liderazgo")
	f.sim.Err = errors.New("qdrant: connection refused")

	out, err := f.uc.CheckBatch(f.ctx, coding.CheckBatchInput{ProjectID: f.project, Codes: []string{"liderazgo"}})
	require.NoError(t, err)
	require.True(t, out.SimilarityCheckDegraded)
	require.True(t, out.Items[0].HasSimilar)
	require.Equal(t, coding.MatchExact, out.Items[0].Similar[0].Source)
}

func TestCheckBatchRejectsMalformedInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.CheckBatch(f.ctx, coding.CheckBatchInput{ProjectID: f.project, Codes: []string{"x"}, Threshold: 1.5})
	requireAPIError(t, err, http.StatusBadRequest, "invalid_threshold")

	_, err = f.uc.CheckBatch(f.ctx, coding.CheckBatchInput{ProjectID: f.project})
	requireAPIError(t, err, http.StatusBadRequest, "empty_batch")
}

func TestDetectDuplicatesAcrossStores(t *testing.T) {
	f := newFixture(t)
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Liderasgo")
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Confianza")
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "liderazgo ")
	testutil.SeedDefinitive(t, f.ctx, f.db, f.project, testutil.FragmentKey(1), "Liderazgo", true)

	out, err := f.uc.DetectDuplicates(f.ctx, coding.DetectDuplicatesInput{ProjectID: f.project})
	require.NoError(t, err)
	require.Equal(t, 4, out.VocabularySize)
	require.Equal(t, 0.8, out.Threshold)
	require.Len(t, out.Pairs, 3)

	exact := out.Pairs[0]
	require.Equal(t, "Liderazgo", exact.CodeA)
	require.Equal(t, "liderazgo ", exact.CodeB)
	require.Equal(t, 0, exact.Distance)
	require.Equal(t, 1.0, exact.Similarity)

	require.Equal(t, "Liderasgo", out.Pairs[1].CodeA)
	require.Equal(t, "Liderazgo", out.Pairs[1].CodeB)
	require.Equal(t, 1, out.Pairs[1].Distance)
	require.InDelta(t, 1-1.0/9, out.Pairs[1].Similarity, 1e-9)
	require.Equal(t, "liderazgo ", out.Pairs[2].CodeB)
}
