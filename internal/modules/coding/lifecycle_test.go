package coding_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
)

func TestValidateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Confianza")
	in := coding.TransitionInput{ProjectID: f.project, CandidateID: c.ID, Actor: "ana", Memo: ptr("clara")}

	first, err := f.uc.ValidateCandidate(f.ctx, in)
	require.NoError(t, err)
	require.True(t, first.Changed)
	require.Equal(t, string(domain.StateValidated), first.State)

	second, err := f.uc.ValidateCandidate(f.ctx, in)
	require.NoError(t, err)
	require.False(t, second.Changed)

	hist, err := f.uc.CodeHistory(f.ctx, f.project, " Confianza ")
	require.NoError(t, err)
	require.Len(t, hist.Versions, 1)
	require.Equal(t, domain.ActionValidate, hist.Versions[0].Action)
}

func TestTransitionErrors(t *testing.T) {
	f := newFixture(t)
	rejected := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Ruido", testutil.WithState(domain.StateRejected))

	_, err := f.uc.ValidateCandidate(f.ctx, coding.TransitionInput{ProjectID: f.project, CandidateID: rejected.ID})
	requireAPIError(t, err, http.StatusBadRequest, "missing_actor")

	_, err = f.uc.ValidateCandidate(f.ctx, coding.TransitionInput{ProjectID: f.project, CandidateID: rejected.ID, Actor: "ana"})
	requireAPIError(t, err, http.StatusConflict, domain.TransitionCodeTerminal)

	_, err = f.uc.RejectCandidate(f.ctx, coding.TransitionInput{ProjectID: f.project, CandidateID: uuid.New()})
	requireAPIError(t, err, http.StatusNotFound, "candidate_not_found")

	_, err = f.uc.RejectCandidate(f.ctx, coding.TransitionInput{ProjectID: f.project})
	requireAPIError(t, err, http.StatusBadRequest, "missing_candidate_id")
}

func TestMarkHypothesisToggles(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Resistencia")
	in := coding.TransitionInput{ProjectID: f.project, CandidateID: c.ID, Actor: "ana"}

	res, err := f.uc.MarkHypothesis(f.ctx, in, false)
	require.NoError(t, err)
	require.Equal(t, string(domain.StateHypothesis), res.State)

	res, err = f.uc.MarkHypothesis(f.ctx, in, true)
	require.NoError(t, err)
	require.Equal(t, string(domain.StatePending), res.State)
	require.True(t, res.Changed)
}

func TestRevertValidatedDryRun(t *testing.T) {
	f := newFixture(t)
	validated := testutil.WithState(domain.StateValidated)
	a := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Uno", validated)
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Dos", validated)
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Tres", validated, testutil.WithPromotedAt(f.now))

	dry, err := f.uc.RevertValidated(f.ctx, coding.RevertValidatedInput{ProjectID: f.project, DryRun: true, Actor: "ana"})
	require.NoError(t, err)
	require.True(t, dry.DryRun)
	require.Equal(t, 2, dry.WouldRevert)
	require.Zero(t, dry.RevertedCount)

	row, err := f.repos.Candidates.GetByID(f.dbc(), f.project, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateValidated, row.State)

	done, err := f.uc.RevertValidated(f.ctx, coding.RevertValidatedInput{ProjectID: f.project, Actor: "ana", Memo: ptr("recodificar")})
	require.NoError(t, err)
	require.Equal(t, 2, done.RevertedCount)
}

func TestMergeCandidatesRequestErrors(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Liderazgo")
	b := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "lideres")

	_, err := f.uc.MergeCandidates(f.ctx, coding.MergeCandidatesInput{ProjectID: f.project, SourceIDs: []uuid.UUID{a.ID}, TargetCodeText: "Liderazgo"})
	requireAPIError(t, err, http.StatusBadRequest, "merge_target_equals_source")

	_, err = f.uc.MergeCandidates(f.ctx, coding.MergeCandidatesInput{ProjectID: f.project, SourceIDs: []uuid.UUID{uuid.New()}, TargetCodeText: "Liderazgo"})
	requireAPIError(t, err, http.StatusNotFound, "candidate_not_found")

	_, err = f.uc.MergeCandidates(f.ctx, coding.MergeCandidatesInput{ProjectID: f.project, TargetCodeText: "Liderazgo"})
	requireAPIError(t, err, http.StatusBadRequest, "missing_source_ids")

	in := coding.MergeCandidatesInput{ProjectID: f.project, SourceIDs: []uuid.UUID{b.ID}, TargetCodeText: "Liderazgo", IdempotencyKey: "k-1", Actor: "ana"}
	first, err := f.uc.MergeCandidates(f.ctx, in)
	require.NoError(t, err)
	require.Equal(t, 1, first.MergedCount)

	replay, err := f.uc.MergeCandidates(f.ctx, in)
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	require.Equal(t, 1, replay.MergedCount)

	in.TargetCodeText = "Otro"
	_, err = f.uc.MergeCandidates(f.ctx, in)
	requireAPIError(t, err, http.StatusConflict, "idempotency_key_reused")
}

func TestAutoMergeReportsPerPair(t *testing.T) {
	f := newFixture(t)
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "liderazgo")

	res, err := f.uc.AutoMerge(f.ctx, coding.AutoMergeInput{
		ProjectID: f.project,
		Pairs: []domainagg.MergePair{
			{Source: "liderazgo", Target: "Liderazgo"},
			{Source: "Liderazgo", Target: "Liderazgo"},
			{Source: "inexistente", Target: "Liderazgo"},
		},
		DryRun: true,
	})
	require.NoError(t, err)
	require.True(t, res.DryRun)
	require.Equal(t, 1, res.TotalMerged)
	require.Equal(t, 1, res.PerPair[0].MergedCount)
	require.Equal(t, domainagg.SkipTargetEqualsSource, res.PerPair[1].Skipped)
	require.Equal(t, domainagg.SkipNoMatchingCandidates, res.PerPair[2].Skipped)

	rows, err := f.repos.Candidates.ListMergeable(f.dbc(), f.project, "liderazgo", false)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = f.uc.AutoMerge(f.ctx, coding.AutoMergeInput{ProjectID: f.project})
	requireAPIError(t, err, http.StatusBadRequest, "missing_pairs")
}
