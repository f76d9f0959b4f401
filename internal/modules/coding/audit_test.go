package coding_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
	"github.com/yungbote/groundwork-backend/internal/services"
)

func TestAuditDetectsGraphReset(t *testing.T) {
	f := newFixture(t)
	frag := f.fragment(t, 1)
	testutil.SeedDefinitive(t, f.ctx, f.db, f.project, frag, "Confianza", false)
	_, err := f.uc.SyncGraph(f.ctx, coding.SyncGraphInput{ProjectID: f.project, OnlyUnsynced: true})
	require.NoError(t, err)

	healthy, err := f.uc.Audit(f.ctx, f.project)
	require.NoError(t, err)
	require.True(t, healthy.Healthy, "discrepancies: %+v", healthy.Discrepancies)
	require.EqualValues(t, 1, healthy.Fragments)
	require.EqualValues(t, 1, healthy.SyncedCodes)
	require.EqualValues(t, 1, healthy.GraphRelations)

	f.graph.Reset(f.project)
	out, err := f.uc.AuditAndNotify(f.ctx, f.project)
	require.NoError(t, err)
	require.False(t, out.Healthy)
	require.True(t, out.GraphReachable)
	require.Equal(t, []string{coding.DiscrepancyGraphReset}, out.Kinds())
	require.Contains(t, f.events.types(), services.EventAuditDiscrepancy)
}

func TestAuditReportsUnreachableGraphAndBacklog(t *testing.T) {
	f := newFixture(t)
	frag := f.fragment(t, 1)
	testutil.SeedDefinitive(t, f.ctx, f.db, f.project, frag, "Confianza", false)
	f.graph.Err = errors.New("neo4j: service unavailable")

	out, err := f.uc.Audit(f.ctx, f.project)
	require.NoError(t, err)
	require.False(t, out.GraphReachable)
	require.Equal(t, []string{coding.DiscrepancyGraphUnreachable, coding.DiscrepancyUnsyncedBacklog}, out.Kinds())
}

func TestBacklogHealth(t *testing.T) {
	f := newFixture(t)
	for _, age := range []time.Duration{240 * time.Hour, 48 * time.Hour, 24 * time.Hour} {
		testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Pendiente", testutil.WithCreatedAt(f.now.Add(-age)))
	}
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "Vieja", testutil.WithState(domain.StateValidated), testutil.WithCreatedAt(f.now.Add(-1000*time.Hour)))

	out, err := f.uc.BacklogHealth(f.ctx, coding.BacklogHealthInput{ProjectID: f.project, MaxDays: 7, MaxCount: 2})
	require.NoError(t, err)
	require.False(t, out.IsHealthy)
	require.Equal(t, 3, out.PendingCount)
	require.InDelta(t, 10, out.OldestPendingDays, 0.01)
	require.InDelta(t, 104, out.AvgPendingAgeHours, 0.01)
	require.Len(t, out.Alerts, 2)
	require.Equal(t, coding.AlertPendingCount, out.Alerts[0].Code)
	require.Equal(t, coding.AlertPendingAge, out.Alerts[1].Code)

	empty := newFixture(t)
	ok, err := empty.uc.BacklogHealth(empty.ctx, coding.BacklogHealthInput{ProjectID: empty.project})
	require.NoError(t, err)
	require.True(t, ok.IsHealthy)
	require.Equal(t, 7, ok.MaxDays)
	require.Equal(t, 200, ok.MaxCount)
}

func TestCandidateStatsBuckets(t *testing.T) {
	f := newFixture(t)
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "A")
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "B", testutil.WithState(domain.StateHypothesis), testutil.WithOrigin(domain.OriginLLM))
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "C", testutil.WithState(domain.StateValidated), testutil.WithPromotedAt(f.now))
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "D", testutil.WithState(domain.StateMerged))

	out, err := f.uc.CandidateStats(f.ctx, f.project)
	require.NoError(t, err)
	require.Equal(t, coding.Buckets{Pending: 1, Hypothesis: 1, Promoted: 1, Merged: 1, Total: 4}, out.Totals)
	require.EqualValues(t, 1, out.ByOrigin["llm"].Hypothesis)
	require.EqualValues(t, 3, out.ByOrigin["manual"].Total)
	require.EqualValues(t, 4, out.BySourceFile[coding.UnspecifiedSourceFile].Total)
}

func TestPurgeIdempotency(t *testing.T) {
	f := newFixture(t)
	testutil.SeedCandidate(t, f.ctx, f.db, f.project, "lideres")
	_, err := f.uc.AutoMerge(f.ctx, coding.AutoMergeInput{
		ProjectID:      f.project,
		Pairs:          []domainagg.MergePair{{Source: "lideres", Target: "Liderazgo"}},
		IdempotencyKey: "k",
		Actor:          "ana",
	})
	require.NoError(t, err)

	none, err := f.uc.PurgeIdempotency(f.ctx, f.project)
	require.NoError(t, err)
	require.Zero(t, none.Deleted)

	f.now = f.now.Add(48 * time.Hour)
	out, err := f.uc.PurgeIdempotency(f.ctx, f.project)
	require.NoError(t, err)
	require.EqualValues(t, 1, out.Deleted)
}
