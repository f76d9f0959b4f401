package aggregates_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/aggregates"
	aggtest "github.com/yungbote/groundwork-backend/internal/data/aggregates/testutil"
	"github.com/yungbote/groundwork-backend/internal/data/repos"
	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	"github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

type fixture struct {
	db      *gorm.DB
	repos   repos.Set
	agg     domainagg.CandidateAggregate
	hooks   *aggtest.Hooks
	project string
	ctx     context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	hooks := &aggtest.Hooks{}
	agg := aggregates.NewCandidateAggregate(aggregates.CandidateAggregateDeps{
		Base:        aggregates.BaseDeps{DB: db, Log: log, Hooks: hooks},
		Candidates:  set.Candidates,
		Versions:    set.Versions,
		Definitive:  set.Definitive,
		Fragments:   set.Fragments,
		Idempotency: set.Idempotency,
	})
	return &fixture{db: db, repos: set, agg: agg, hooks: hooks, project: testutil.ProjectID(t), ctx: context.Background()}
}

func (f *fixture) dbc() dbctx.Context { return dbctx.Context{Ctx: f.ctx} }

func (f *fixture) versions(t *testing.T, id uuid.UUID, action coding.Action) int64 {
	t.Helper()
	n, err := f.repos.Versions.CountForCandidate(f.dbc(), f.project, id, action)
	require.NoError(t, err)
	return n
}

func ptr[T any](v T) *T { return &v }

func TestSubmitReportsPerItemOutcomes(t *testing.T) {
	f := newFixture(t)
	testutil.SeedFragment(t, f.ctx, f.db, f.project, testutil.FragmentKey(1))

	res, err := f.agg.Submit(f.ctx, domainagg.SubmitCandidatesInput{
		ProjectID: f.project,
		Actor:     "ana",
		Items: []domainagg.CandidateDraft{
			{CodeText: "  Poder   local ", FragmentID: ptr(testutil.FragmentKey(1)), Origin: "manual", Quote: "el poder en el barrio"},
			{CodeText: "Liderazgo", FragmentID: ptr("short"), Origin: "llm"},
			{CodeText: "Liderazgo", FragmentID: ptr(testutil.FragmentKey(99)), Origin: "llm"},
			{CodeText: "Confianza", Origin: "oracle"},
			{CodeText: "   ", Origin: "manual"},
			{CodeText: "Redes", Origin: "llm", Metadata: map[string]any{"colour": "red"}},
			{CodeText: "Redes", Origin: "llm", Confidence: ptr(1.5)},
			{CodeText: "Solidaridad", Origin: "discovery", Metadata: map[string]any{"query": "ayuda mutua", "rank": 2}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.InsertedCount)

	want := []string{
		"",
		domainagg.SkipInvalidFragmentID,
		domainagg.SkipFragmentNotFound,
		domainagg.SkipInvalidOrigin,
		domainagg.SkipEmptyCodeText,
		domainagg.SkipInvalidMetadata,
		domainagg.SkipInvalidConfidence,
		"",
	}
	for i, item := range res.Items {
		require.Equal(t, want[i], item.Skipped, "item %d", i)
	}

	row, err := f.repos.Candidates.GetByID(f.dbc(), f.project, res.Items[0].CandidateID)
	require.NoError(t, err)
	require.Equal(t, "Poder local", row.CodeText)
	require.Equal(t, "poder local", row.NormalizedText)
	require.Equal(t, coding.StatePending, row.State)
	require.EqualValues(t, 1, f.versions(t, row.ID, coding.ActionCreate))
}

func TestSubmitRequiresProject(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.Submit(f.ctx, domainagg.SubmitCandidatesInput{Items: []domainagg.CandidateDraft{{CodeText: "x", Origin: "manual"}}})
	require.True(t, domainagg.IsCode(err, domainagg.CodeValidation))
}

func TestValidateTwiceWritesOneVersion(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Liderazgo")
	in := domainagg.TransitionCandidateInput{ProjectID: f.project, CandidateID: c.ID, ToState: "validated", Actor: "ana"}

	first, err := f.agg.Transition(f.ctx, in)
	require.NoError(t, err)
	require.True(t, first.Changed)
	require.Equal(t, 1, first.Version)

	second, err := f.agg.Transition(f.ctx, in)
	require.NoError(t, err)
	require.False(t, second.Changed)
	require.Equal(t, "validated", second.State)

	require.EqualValues(t, 1, f.versions(t, c.ID, coding.ActionValidate))
	row, _ := f.repos.Candidates.GetByID(f.dbc(), f.project, c.ID)
	require.Equal(t, "ana", row.ValidatedBy)
	require.NotNil(t, row.ValidatedAt)
}

func TestValidateRequiresActor(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Liderazgo")
	_, err := f.agg.Transition(f.ctx, domainagg.TransitionCandidateInput{ProjectID: f.project, CandidateID: c.ID, ToState: "validated"})
	require.True(t, domainagg.IsCode(err, domainagg.CodeValidation))
}

func TestTransitionRefusals(t *testing.T) {
	f := newFixture(t)
	rejected := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Ruido", testutil.WithState(coding.StateRejected))
	promoted := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Poder", testutil.WithState(coding.StateValidated), testutil.WithPromotedAt(time.Now().UTC()))

	_, err := f.agg.Transition(f.ctx, domainagg.TransitionCandidateInput{ProjectID: f.project, CandidateID: rejected.ID, ToState: "validated", Actor: "ana"})
	require.True(t, domainagg.IsCode(err, domainagg.CodeConflict))
	var te *coding.TransitionError
	require.True(t, errors.As(err, &te))
	require.Equal(t, coding.TransitionCodeTerminal, te.Code)

	_, err = f.agg.Transition(f.ctx, domainagg.TransitionCandidateInput{ProjectID: f.project, CandidateID: promoted.ID, ToState: "pending", Actor: "ana"})
	require.True(t, errors.As(err, &te))
	require.Equal(t, coding.TransitionCodePromoted, te.Code)

	_, err = f.agg.Transition(f.ctx, domainagg.TransitionCandidateInput{ProjectID: f.project, CandidateID: uuid.New(), ToState: "rejected"})
	require.True(t, domainagg.IsCode(err, domainagg.CodeNotFound))
}

func TestHypothesisRoundTrip(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Identidad")
	res, err := f.agg.Transition(f.ctx, domainagg.TransitionCandidateInput{ProjectID: f.project, CandidateID: c.ID, ToState: "hypothesis", Memo: ptr("revisar con equipo")})
	require.NoError(t, err)
	require.Equal(t, "hypothesis", res.State)
	res, err = f.agg.Transition(f.ctx, domainagg.TransitionCandidateInput{ProjectID: f.project, CandidateID: c.ID, ToState: "pending"})
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.EqualValues(t, 2, f.versions(t, c.ID, coding.ActionHypothesis))
}

func TestRevertValidatedSkipsPromoted(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Código", testutil.WithState(coding.StateValidated))
	}
	var promoted []uuid.UUID
	for i := 0; i < 2; i++ {
		c := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Promovido", testutil.WithState(coding.StateValidated), testutil.WithPromotedAt(now))
		promoted = append(promoted, c.ID)
	}

	dry, err := f.agg.RevertValidated(f.ctx, domainagg.RevertValidatedInput{ProjectID: f.project, DryRun: true})
	require.NoError(t, err)
	require.True(t, dry.DryRun)
	require.Equal(t, 5, dry.WouldRevert)
	require.Zero(t, dry.RevertedCount)

	res, err := f.agg.RevertValidated(f.ctx, domainagg.RevertValidatedInput{ProjectID: f.project, Actor: "ana"})
	require.NoError(t, err)
	require.Equal(t, 5, res.RevertedCount)

	for _, id := range promoted {
		row, err := f.repos.Candidates.GetByID(f.dbc(), f.project, id)
		require.NoError(t, err)
		require.Equal(t, coding.StateValidated, row.State)
		require.NotNil(t, row.PromotedAt)
	}
	hist, err := f.repos.Versions.History(f.dbc(), f.project, "Código")
	require.NoError(t, err)
	require.Len(t, hist, 5)
	for i, v := range hist {
		require.Equal(t, i+1, v.Version)
		require.Equal(t, coding.ActionRevert, v.Action)
	}
}

func TestMergeByIDIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "liderazgo comunitario")
	b := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "lideres", testutil.WithState(coding.StateValidated))
	merged := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "lider", testutil.WithState(coding.StateMerged))
	unknown := uuid.New()

	in := domainagg.MergeByIDInput{
		ProjectID:      f.project,
		SourceIDs:      []uuid.UUID{a.ID, b.ID, merged.ID, unknown},
		TargetCodeText: "Liderazgo",
		Memo:           ptr("consolidación"),
		IdempotencyKey: "merge-1",
		Actor:          "ana",
	}
	first, err := f.agg.MergeByID(f.ctx, in)
	require.NoError(t, err)
	require.Equal(t, 2, first.MergedCount)
	require.False(t, first.Replayed)
	require.Equal(t, domainagg.SkipAlreadyMerged, first.Items[2].Skipped)
	require.Equal(t, domainagg.SkipNotFound, first.Items[3].Skipped)

	second, err := f.agg.MergeByID(f.ctx, in)
	require.NoError(t, err)
	require.Equal(t, first.MergedCount, second.MergedCount)
	require.True(t, second.Replayed)
	require.EqualValues(t, 1, f.versions(t, a.ID, coding.ActionMerge))

	row, _ := f.repos.Candidates.GetByID(f.dbc(), f.project, a.ID)
	require.Equal(t, coding.StateMerged, row.State)
	require.Equal(t, "Liderazgo", *row.MergedInto)

	in.TargetCodeText = "Otro"
	_, err = f.agg.MergeByID(f.ctx, in)
	require.True(t, domainagg.IsCode(err, domainagg.CodeConflict))
	require.True(t, errors.Is(err, aggregates.ErrIdempotencyKeyReused))
}

func TestMergeByIDDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "lideres")
	res, err := f.agg.MergeByID(f.ctx, domainagg.MergeByIDInput{
		ProjectID: f.project, SourceIDs: []uuid.UUID{a.ID}, TargetCodeText: "Liderazgo", DryRun: true, IdempotencyKey: "k",
	})
	require.NoError(t, err)
	require.True(t, res.DryRun)
	require.Equal(t, 1, res.MergedCount)
	row, _ := f.repos.Candidates.GetByID(f.dbc(), f.project, a.ID)
	require.Equal(t, coding.StatePending, row.State)
	rec, err := f.repos.Idempotency.Get(f.dbc(), f.project, coding.IdempotencyScopeMerge, "k")
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestAutoMergeThenPromoteScenario(t *testing.T) {
	f := newFixture(t)
	f1, f2 := testutil.FragmentKey(1), testutil.FragmentKey(2)
	testutil.SeedFragment(t, f.ctx, f.db, f.project, f1)
	testutil.SeedFragment(t, f.ctx, f.db, f.project, f2)

	sub, err := f.agg.Submit(f.ctx, domainagg.SubmitCandidatesInput{
		ProjectID: f.project,
		Items: []domainagg.CandidateDraft{
			{CodeText: "Liderazgo", FragmentID: &f1, Origin: "llm"},
			{CodeText: "liderazgo ", FragmentID: &f2, Origin: "llm"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, sub.InsertedCount)
	for _, item := range sub.Items {
		_, err := f.agg.Transition(f.ctx, domainagg.TransitionCandidateInput{ProjectID: f.project, CandidateID: item.CandidateID, ToState: "validated", Actor: "ana"})
		require.NoError(t, err)
	}

	merge, err := f.agg.MergeByName(f.ctx, domainagg.MergeByNameInput{
		ProjectID: f.project,
		Pairs: []domainagg.MergePair{
			{Source: "liderazgo ", Target: "Liderazgo"},
			{Source: "Liderazgo", Target: "Liderazgo"},
			{Source: "inexistente", Target: "Liderazgo"},
		},
		Actor: "ana",
	})
	require.NoError(t, err)
	require.Equal(t, 1, merge.TotalMerged)
	require.Equal(t, 1, merge.PerPair[0].MergedCount)
	require.Equal(t, domainagg.SkipTargetEqualsSource, merge.PerPair[1].Skipped)
	require.Equal(t, domainagg.SkipNoMatchingCandidates, merge.PerPair[2].Skipped)

	promo, err := f.agg.Promote(f.ctx, domainagg.PromoteCandidatesInput{ProjectID: f.project, PromoteAllValidated: true, Actor: "ana"})
	require.NoError(t, err)
	require.Equal(t, 1, promo.PromotedCount)
	require.Equal(t, 1, promo.InsertedCount)
	require.Len(t, promo.DefinitiveIDs, 1)

	defs, err := f.repos.Definitive.ListForSync(f.dbc(), f.project, false)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "Liderazgo", defs[0].CodeText)
	require.Equal(t, f1, defs[0].FragmentID)
	require.False(t, defs[0].Synced)
}

func TestPromoteEvidenceGate(t *testing.T) {
	f := newFixture(t)
	good := testutil.FragmentKey(1)
	testutil.SeedFragment(t, f.ctx, f.db, f.project, good)
	validated := testutil.WithState(coding.StateValidated)

	ok := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Poder local", validated, testutil.WithFragment(good))
	noFrag := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Sin evidencia", validated)
	short := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Corto", validated, testutil.WithFragment("frag-12345"))
	missing := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Fantasma", validated, testutil.WithFragment(testutil.FragmentKey(404)))
	link := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Relación", validated, testutil.WithFragment(good), testutil.WithOrigin(coding.OriginLinkPrediction))
	pending := testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Pendiente", testutil.WithFragment(good))

	res, err := f.agg.Promote(f.ctx, domainagg.PromoteCandidatesInput{
		ProjectID:    f.project,
		CandidateIDs: []uuid.UUID{ok.ID, noFrag.ID, short.ID, missing.ID, link.ID, pending.ID},
		Actor:        "ana",
	})
	require.NoError(t, err)
	require.Equal(t, 5, res.ValidatedTotal)
	require.Equal(t, 1, res.EligibleTotal)
	require.Equal(t, 3, res.SkippedTotal)
	require.Equal(t, 1, res.ExcludedTotal)
	require.Equal(t, 1, res.PromotedCount)

	reasons := map[uuid.UUID]string{}
	for _, s := range res.Skipped {
		reasons[s.CandidateID] = s.Reason
	}
	require.Equal(t, domainagg.SkipMissingEvidence, reasons[noFrag.ID])
	require.Equal(t, domainagg.SkipInvalidFragmentID, reasons[short.ID])
	require.Equal(t, domainagg.SkipFragmentNotFound, reasons[missing.ID])
	require.Equal(t, domainagg.SkipLinkPredictionExclude, reasons[link.ID])
	require.Equal(t, domainagg.SkipNotValidated, reasons[pending.ID])

	total, _, err := f.repos.Definitive.Counts(f.dbc(), f.project)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	again, err := f.agg.Promote(f.ctx, domainagg.PromoteCandidatesInput{ProjectID: f.project, CandidateIDs: []uuid.UUID{ok.ID}, Actor: "ana"})
	require.NoError(t, err)
	require.Zero(t, again.PromotedCount)
	require.Equal(t, domainagg.SkipAlreadyPromoted, again.Skipped[0].Reason)
	require.EqualValues(t, 1, f.versions(t, ok.ID, coding.ActionPromote))
}

func TestPromoteRequiresSelection(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.Promote(f.ctx, domainagg.PromoteCandidatesInput{ProjectID: f.project})
	require.True(t, domainagg.IsCode(err, domainagg.CodeValidation))
}

func TestRunnerFailureIsObserved(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	hooks := &aggtest.Hooks{}
	runner := &aggtest.Runner{BeginErr: aggregates.RetryableError("connection reset")}
	agg := aggregates.NewCandidateAggregate(aggregates.CandidateAggregateDeps{
		Base:        aggregates.BaseDeps{DB: db, Log: log, Hooks: hooks, Runner: runner},
		Candidates:  set.Candidates,
		Versions:    set.Versions,
		Definitive:  set.Definitive,
		Fragments:   set.Fragments,
		Idempotency: set.Idempotency,
	})

	_, err := agg.RevertValidated(context.Background(), domainagg.RevertValidatedInput{ProjectID: "p1"})
	require.True(t, domainagg.Retryable(err))
	require.Equal(t, 1, runner.Began())
	require.Equal(t, 1, hooks.Retries("Coding.Candidate.RevertValidated"))
	require.Equal(t, aggtest.Op{Name: "Coding.Candidate.RevertValidated", Status: "retryable"}, hooks.Last())
}

func TestCandidateAggregateOwnsLedgerTables(t *testing.T) {
	f := newFixture(t)
	c := f.agg.Contract()
	require.Equal(t, "Coding.CandidateAggregate", c.Name)
	for _, table := range []string{(coding.CandidateCode{}).TableName(), (coding.CodeVersion{}).TableName(), (coding.DefinitiveCode{}).TableName()} {
		require.True(t, c.Owns(table), table)
	}
	require.False(t, c.Owns((coding.Fragment{}).TableName()))
}
