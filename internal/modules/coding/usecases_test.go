package coding_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/aggregates"
	"github.com/yungbote/groundwork-backend/internal/data/graph/graphtest"
	"github.com/yungbote/groundwork-backend/internal/data/repos"
	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	"github.com/yungbote/groundwork-backend/internal/data/similarity/similaritytest"
	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	domainjobs "github.com/yungbote/groundwork-backend/internal/domain/jobs"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/services"
)

type recordedEvent struct {
	Type      string
	ProjectID string
	Data      map[string]any
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) add(typ, projectID string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: typ, ProjectID: projectID, Data: data})
}

func (r *recordingEvents) CandidatesPromoted(ctx context.Context, projectID string, promoted int, ids []uuid.UUID) {
	r.add(services.EventCandidatePromoted, projectID, map[string]any{"promoted": promoted})
}

func (r *recordingEvents) GraphDeferred(ctx context.Context, projectID string, pending int, reason string) {
	r.add(services.EventGraphDeferred, projectID, map[string]any{"pending": pending, "reason": reason})
}

func (r *recordingEvents) GraphSynced(ctx context.Context, projectID string, codes, relations int, missing []string) {
	r.add(services.EventGraphSynced, projectID, map[string]any{"codes": codes, "relations": relations})
}

func (r *recordingEvents) AuditDiscrepancy(ctx context.Context, projectID string, kinds []string, counts map[string]any) {
	r.add(services.EventAuditDiscrepancy, projectID, map[string]any{"kinds": kinds})
}

func (r *recordingEvents) JobUpdated(ctx context.Context, job *domainjobs.JobRun) {
	r.add(services.EventJobUpdated, job.ProjectID, map[string]any{"job_type": job.JobType})
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db      *gorm.DB
	repos   repos.Set
	graph   *graphtest.Memory
	sim     *similaritytest.Static
	events  *recordingEvents
	jobs    services.JobService
	uc      coding.Usecases
	project string
	ctx     context.Context
	now     time.Time
}

type option func(*coding.UsecasesDeps)

func withoutGraph() option {
	return func(d *coding.UsecasesDeps) { d.Graph = nil }
}

func withoutSimilarity() option {
	return func(d *coding.UsecasesDeps) { d.Similarity = nil }
}

func withConfig(mut func(*coding.Config)) option {
	return func(d *coding.UsecasesDeps) { mut(&d.Config) }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	f := &fixture{
		db:      db,
		repos:   set,
		graph:   graphtest.NewMemory(),
		sim:     &similaritytest.Static{},
		events:  &recordingEvents{},
		project: testutil.ProjectID(t),
		ctx:     context.Background(),
		now:     time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	f.jobs = services.NewJobService(db, log, set.JobRuns, f.events, nil, "")
	deps := coding.UsecasesDeps{
		DB:  db,
		Log: log,
		Candidates: aggregates.NewCandidateAggregate(aggregates.CandidateAggregateDeps{
			Base:        aggregates.BaseDeps{DB: db, Log: log},
			Candidates:  set.Candidates,
			Versions:    set.Versions,
			Definitive:  set.Definitive,
			Fragments:   set.Fragments,
			Idempotency: set.Idempotency,
		}),
		Repos:      set,
		Graph:      f.graph,
		Similarity: f.sim,
		Jobs:       f.jobs,
		Events:     f.events,
		Config:     coding.Config{GraphTimeout: time.Second},
		Now:        func() time.Time { return f.now },
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.uc = coding.New(deps)
	return f
}

func (f *fixture) dbc() dbctx.Context { return dbctx.Context{Ctx: f.ctx} }

// fragment seeds a fragment in both the relational store and the graph.
func (f *fixture) fragment(t *testing.T, n int) string {
	t.Helper()
	id := testutil.FragmentKey(n)
	testutil.SeedFragment(t, f.ctx, f.db, f.project, id)
	f.graph.SeedFragment(f.project, id)
	return id
}

func ptr[T any](v T) *T { return &v }

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok, "expected api error, got %v", err)
	require.Equal(t, status, ae.Status)
	require.Equal(t, code, ae.Code)
}

func TestManualCandidateRoundTrip(t *testing.T) {
	f := newFixture(t)
	frag := f.fragment(t, 1)

	sub, err := f.uc.SubmitCandidates(f.ctx, coding.SubmitCandidatesInput{
		ProjectID: f.project,
		Actor:     "ana",
		Items:     []domainagg.CandidateDraft{{CodeText: "Poder local", FragmentID: &frag, Origin: "manual", Quote: "el poder del barrio"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, sub.InsertedCount)
	id := sub.Items[0].CandidateID

	_, err = f.uc.ValidateCandidate(f.ctx, coding.TransitionInput{ProjectID: f.project, CandidateID: id, Actor: "ana"})
	require.NoError(t, err)

	promo, err := f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, CandidateIDs: []uuid.UUID{id}, Actor: "ana"})
	require.NoError(t, err)
	require.False(t, promo.Queued)
	require.Equal(t, 1, promo.PromotedCount)
	require.Equal(t, 1, promo.GraphMerged)
	require.Zero(t, promo.GraphMissingFragments)
	require.False(t, promo.GraphDeferred)

	list, err := f.uc.ListCandidates(f.ctx, coding.ListCandidatesInput{ProjectID: f.project, Promoted: ptr(true)})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.Count)
	require.Equal(t, id, list.Candidates[0].ID)

	require.True(t, f.graph.HasRelation(f.project, "Poder local", frag))
	_, synced, err := f.repos.Definitive.Counts(f.dbc(), f.project)
	require.NoError(t, err)
	require.EqualValues(t, 1, synced)
	require.Contains(t, f.events.types(), services.EventCandidatePromoted)
	require.Contains(t, f.events.types(), services.EventGraphSynced)

	again, err := f.uc.SyncGraph(f.ctx, coding.SyncGraphInput{ProjectID: f.project})
	require.NoError(t, err)
	require.Zero(t, again.SyncedCodes)
	require.Zero(t, again.SyncedRelations)
	require.EqualValues(t, 1, again.CodesBefore)
}

func TestLiderazgoConsolidation(t *testing.T) {
	f := newFixture(t)
	f1, f2 := f.fragment(t, 1), f.fragment(t, 2)

	check, err := f.uc.CheckBatch(f.ctx, coding.CheckBatchInput{ProjectID: f.project, Codes: []string{"Liderazgo", "liderazgo "}, Threshold: 0.85})
	require.NoError(t, err)
	require.True(t, check.Items[0].DuplicateInBatch)
	require.True(t, check.Items[1].DuplicateInBatch)

	sub, err := f.uc.SubmitCandidates(f.ctx, coding.SubmitCandidatesInput{
		ProjectID: f.project,
		Items: []domainagg.CandidateDraft{
			{CodeText: "Liderazgo", FragmentID: &f1, Origin: "llm"},
			{CodeText: "liderazgo ", FragmentID: &f2, Origin: "llm"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, sub.InsertedCount)
	for _, item := range sub.Items {
		_, err := f.uc.ValidateCandidate(f.ctx, coding.TransitionInput{ProjectID: f.project, CandidateID: item.CandidateID, Actor: "ana"})
		require.NoError(t, err)
	}

	merge, err := f.uc.AutoMerge(f.ctx, coding.AutoMergeInput{
		ProjectID: f.project,
		Pairs:     []domainagg.MergePair{{Source: "liderazgo ", Target: "Liderazgo"}},
		Actor:     "ana",
	})
	require.NoError(t, err)
	require.Equal(t, 1, merge.TotalMerged)

	promo, err := f.uc.Promote(f.ctx, coding.PromoteInput{ProjectID: f.project, PromoteAllValidated: true, Actor: "ana"})
	require.NoError(t, err)
	require.Equal(t, 1, promo.InsertedCount)

	defs, err := f.repos.Definitive.ListForSync(f.dbc(), f.project, false)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	require.Equal(t, "Liderazgo", defs[0].CodeText)
	require.Equal(t, f1, defs[0].FragmentID)
	require.True(t, defs[0].Synced)
}

func TestOperationsRequireProject(t *testing.T) {
	f := newFixture(t)
	calls := map[string]func() error{
		"submit": func() error {
			_, err := f.uc.SubmitCandidates(f.ctx, coding.SubmitCandidatesInput{Items: []domainagg.CandidateDraft{{CodeText: "x", Origin: "manual"}}})
			return err
		},
		"check":  func() error { _, err := f.uc.CheckBatch(f.ctx, coding.CheckBatchInput{Codes: []string{"x"}}); return err },
		"list":   func() error { _, err := f.uc.ListCandidates(f.ctx, coding.ListCandidatesInput{}); return err },
		"stats":  func() error { _, err := f.uc.CandidateStats(f.ctx, " "); return err },
		"sync":   func() error { _, err := f.uc.SyncGraph(f.ctx, coding.SyncGraphInput{}); return err },
		"audit":  func() error { _, err := f.uc.Audit(f.ctx, ""); return err },
		"dups":   func() error { _, err := f.uc.DetectDuplicates(f.ctx, coding.DetectDuplicatesInput{}); return err },
		"revert": func() error { _, err := f.uc.RevertValidated(f.ctx, coding.RevertValidatedInput{}); return err },
		"backlog": func() error {
			_, err := f.uc.BacklogHealth(f.ctx, coding.BacklogHealthInput{})
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			requireAPIError(t, call(), http.StatusBadRequest, "missing_project")
		})
	}
}
