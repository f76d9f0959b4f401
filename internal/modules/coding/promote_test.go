package coding_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
	"github.com/yungbote/groundwork-backend/internal/services"
)

func (f *fixture) validated(t *testing.T, text, fragmentID string) uuid.UUID {
	t.Helper()
	opts := []testutil.CandidateOpt{testutil.WithState(domain.StateValidated)}
	if fragmentID != "" {
		opts = append(opts, testutil.WithFragment(fragmentID))
	}
	return testutil.SeedCandidate(t, f.ctx, f.db, f.project, text, opts...).ID
}

func TestPromoteDefersWhenGraphIsDown(t *testing.T) {
	f := newFixture(t)
	frag := f.fragment(t, 1)
	id := f.validated(t, "Poder local", frag)
	f.graph.Err = errors.New("neo4j: connection refused")

	out, err := f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, CandidateIDs: []uuid.UUID{id}, Actor: "ana"})
	require.NoError(t, err)
	require.Equal(t, 1, out.PromotedCount)
	require.True(t, out.GraphDeferred)
	require.Contains(t, out.GraphDeferredReason, "connection refused")
	require.Zero(t, out.GraphMerged)

	defs, err := f.repos.Definitive.ListForSync(f.dbc(), f.project, true)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.NotEmpty(t, defs[0].SyncError)

	queued, err := f.repos.JobRuns.HasRunnableForEntity(f.dbc(), f.project, "project", f.project, coding.JobTypeGraphSync)
	require.NoError(t, err)
	require.True(t, queued)
	require.Contains(t, f.events.types(), services.EventGraphDeferred)

	f.graph.Err = nil
	sync, err := f.uc.SyncGraph(f.ctx, coding.SyncGraphInput{ProjectID: f.project, OnlyUnsynced: true})
	require.NoError(t, err)
	require.False(t, sync.Deferred)
	require.Equal(t, 1, sync.SyncedRelations)
	require.True(t, f.graph.HasRelation(f.project, "Poder local", frag))
}

func TestPromoteDefersOnGraphTimeout(t *testing.T) {
	f := newFixture(t, withConfig(func(c *coding.Config) { c.GraphTimeout = 20 * time.Millisecond }))
	frag := f.fragment(t, 1)
	id := f.validated(t, "Poder local", frag)
	f.graph.Delay = 2 * time.Second

	start := time.Now()
	out, err := f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, CandidateIDs: []uuid.UUID{id}, Actor: "ana"})
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 1, out.PromotedCount)
	require.True(t, out.GraphDeferred)
	require.Contains(t, out.GraphDeferredReason, "timed out")
}

func TestPromoteWithoutGraphStore(t *testing.T) {
	f := newFixture(t, withoutGraph())
	frag := testutil.FragmentKey(1)
	testutil.SeedFragment(t, f.ctx, f.db, f.project, frag)
	id := f.validated(t, "Poder local", frag)

	out, err := f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, CandidateIDs: []uuid.UUID{id}, Actor: "ana"})
	require.NoError(t, err)
	require.Equal(t, 1, out.PromotedCount)
	require.True(t, out.GraphDeferred)
	require.Equal(t, "graph store not configured", out.GraphDeferredReason)
}

func TestPromoteReportsMissingFragmentNodes(t *testing.T) {
	f := newFixture(t)
	frag := testutil.FragmentKey(7)
	testutil.SeedFragment(t, f.ctx, f.db, f.project, frag)
	id := f.validated(t, "Poder local", frag)

	out, err := f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, CandidateIDs: []uuid.UUID{id}, Actor: "ana"})
	require.NoError(t, err)
	require.False(t, out.GraphDeferred)
	require.Zero(t, out.GraphMerged)
	require.Equal(t, 1, out.GraphMissingFragments)

	defs, err := f.repos.Definitive.ListForSync(f.dbc(), f.project, true)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "fragment node not found in graph", defs[0].SyncError)
}

func TestPromoteEvidenceGate(t *testing.T) {
	f := newFixture(t)
	frag := f.fragment(t, 1)
	good := f.validated(t, "Poder local", frag)
	bare := f.validated(t, "Sin evidencia", "")

	out, err := f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, CandidateIDs: []uuid.UUID{good, bare}, Actor: "ana"})
	require.NoError(t, err)
	require.Equal(t, 2, out.ValidatedTotal)
	require.Equal(t, 1, out.EligibleTotal)
	require.Equal(t, 1, out.SkippedTotal)
	require.Equal(t, []domainagg.PromoteSkip{{CandidateID: bare, Reason: domainagg.SkipMissingEvidence}}, out.Skipped)
	require.Equal(t, 1, out.GraphMerged)
}

func TestPromoteQueuesLargeSelections(t *testing.T) {
	f := newFixture(t, withConfig(func(c *coding.Config) { c.PromoteAsyncThreshold = 1 }))
	frag := f.fragment(t, 1)
	a := f.validated(t, "Uno", frag)
	b := f.validated(t, "Dos", frag)

	out, err := f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, CandidateIDs: []uuid.UUID{a, b}, Actor: "ana"})
	require.NoError(t, err)
	require.True(t, out.Queued)
	require.NotNil(t, out.JobID)
	require.Zero(t, out.PromotedCount)

	job, err := f.repos.JobRuns.GetByID(f.dbc(), *out.JobID)
	require.NoError(t, err)
	require.Equal(t, coding.JobTypePromote, job.JobType)
	require.Equal(t, f.project, job.ProjectID)

	total, _, err := f.repos.Definitive.Counts(f.dbc(), f.project)
	require.NoError(t, err)
	require.Zero(t, total)

	out, err = f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, PromoteAllValidated: true, Actor: "ana"})
	require.NoError(t, err)
	require.True(t, out.Queued)
}

func TestPromoteValidatesInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, PromoteAllValidated: true})
	requireAPIError(t, err, http.StatusBadRequest, "missing_actor")

	_, err = f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, Actor: "ana"})
	requireAPIError(t, err, http.StatusBadRequest, "missing_candidate_ids")
}
