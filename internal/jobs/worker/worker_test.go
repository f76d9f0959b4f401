package worker_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/aggregates"
	"github.com/yungbote/groundwork-backend/internal/data/graph/graphtest"
	"github.com/yungbote/groundwork-backend/internal/data/repos"
	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	domaincoding "github.com/yungbote/groundwork-backend/internal/domain/coding"
	domain "github.com/yungbote/groundwork-backend/internal/domain/jobs"
	"github.com/yungbote/groundwork-backend/internal/jobs/pipeline/coding_promote"
	"github.com/yungbote/groundwork-backend/internal/jobs/pipeline/coherence_audit"
	"github.com/yungbote/groundwork-backend/internal/jobs/pipeline/graph_sync"
	"github.com/yungbote/groundwork-backend/internal/jobs/runtime"
	"github.com/yungbote/groundwork-backend/internal/jobs/worker"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/services"
)

type harness struct {
	db      *gorm.DB
	set     repos.Set
	graph   *graphtest.Memory
	jobs    services.JobService
	worker  *worker.Worker
	metrics *observability.Metrics
	project string
	ctx     context.Context
}

func newHarness(t *testing.T, extra ...runtime.Handler) *harness {
	t.Helper()
	t.Setenv("METRICS_ENABLED", "true")
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	notify := services.NewEventNotifier(log, nil, nil)
	h := &harness{
		db:      db,
		set:     set,
		graph:   graphtest.NewMemory(),
		project: testutil.ProjectID(t),
		ctx:     context.Background(),
		metrics: observability.Init(log),
	}
	h.jobs = services.NewJobService(db, log, set.JobRuns, notify, nil, "")
	uc := coding.New(coding.UsecasesDeps{
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
		Repos:  set,
		Graph:  h.graph,
		Jobs:   h.jobs,
		Events: notify,
		Config: coding.Config{GraphTimeout: time.Second},
	})

	reg, err := runtime.NewRegistry(append([]runtime.Handler{
		coding_promote.New(log, uc),
		graph_sync.New(log, uc),
		coherence_audit.New(log, uc),
	}, extra...)...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	h.worker = worker.NewWorker(db, log, set.JobRuns, reg, notify, h.metrics)
	return h
}

func (h *harness) enqueue(t *testing.T, jobType string, payload map[string]any) *domain.JobRun {
	t.Helper()
	job, err := h.jobs.Enqueue(dbctx.Context{Ctx: h.ctx}, h.project, jobType, "project", h.project, payload)
	if err != nil {
		t.Fatalf("enqueue %s: %v", jobType, err)
	}
	return job
}

func (h *harness) process(t *testing.T) {
	t.Helper()
	claimed, err := h.worker.ProcessNext(h.ctx)
	if err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	if !claimed {
		t.Fatalf("expected a runnable job")
	}
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *domain.JobRun {
	t.Helper()
	job, err := h.set.JobRuns.GetByID(dbctx.Context{Ctx: h.ctx}, id)
	if err != nil || job == nil {
		t.Fatalf("GetByID: %v", err)
	}
	return job
}

func TestPromoteJobPromotesAndProjects(t *testing.T) {
	h := newHarness(t)
	frag := testutil.FragmentKey(1)
	testutil.SeedFragment(t, h.ctx, h.db, h.project, frag)
	h.graph.SeedFragment(h.project, frag)
	c := testutil.SeedCandidate(t, h.ctx, h.db, h.project, "Redes de apoyo",
		testutil.WithFragment(frag), testutil.WithState(domaincoding.StateValidated))

	job := h.enqueue(t, coding.JobTypePromote, map[string]any{
		"candidate_ids": []string{c.ID.String()},
		"actor":         "ana",
	})
	h.process(t)

	got := h.reload(t, job.ID)
	if got.Status != domain.StatusSucceeded {
		t.Fatalf("status = %s (error %q), want succeeded", got.Status, got.Error)
	}
	if !h.graph.HasRelation(h.project, "Redes de apoyo", frag) {
		t.Fatalf("expected graph relation after promotion job")
	}
}

func TestPromoteJobWithoutActorFails(t *testing.T) {
	h := newHarness(t)
	job := h.enqueue(t, coding.JobTypePromote, map[string]any{"promote_all_validated": true})
	h.process(t)

	got := h.reload(t, job.ID)
	if got.Status != domain.StatusFailed || got.Stage != "promote" {
		t.Fatalf("status/stage = %s/%s, want failed/promote", got.Status, got.Stage)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
}

func TestPromoteJobRejectsMalformedCandidateIDs(t *testing.T) {
	h := newHarness(t)
	job := h.enqueue(t, coding.JobTypePromote, map[string]any{
		"candidate_ids": []string{uuid.NewString(), "not-an-id"},
		"actor":         "ana",
	})
	h.process(t)

	got := h.reload(t, job.ID)
	if got.Status != domain.StatusFailed || got.Stage != "validate" {
		t.Fatalf("status/stage = %s/%s, want failed/validate", got.Status, got.Stage)
	}
	if !strings.Contains(got.Error, "candidate_ids[1]") {
		t.Fatalf("error = %q, want the offending position", got.Error)
	}
}

func TestGraphSyncJobRetriesUntilGraphRecovers(t *testing.T) {
	h := newHarness(t)
	frag := testutil.FragmentKey(2)
	testutil.SeedFragment(t, h.ctx, h.db, h.project, frag)
	h.graph.SeedFragment(h.project, frag)
	testutil.SeedDefinitive(t, h.ctx, h.db, h.project, frag, "Memoria colectiva", false)
	h.graph.Err = errors.New("neo4j: connection refused")

	job := h.enqueue(t, coding.JobTypeGraphSync, nil)
	h.process(t)

	got := h.reload(t, job.ID)
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed while graph is down", got.Status)
	}

	// Skip the retry back-off.
	past := time.Now().UTC().Add(-2 * worker.RetryDelay)
	if err := h.set.JobRuns.UpdateFields(dbctx.Context{Ctx: h.ctx}, job.ID, map[string]interface{}{"last_error_at": past}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	h.graph.Err = nil
	h.process(t)

	got = h.reload(t, job.ID)
	if got.Status != domain.StatusSucceeded {
		t.Fatalf("status = %s (error %q), want succeeded", got.Status, got.Error)
	}
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", got.Attempts)
	}
	if !h.graph.HasRelation(h.project, "Memoria colectiva", frag) {
		t.Fatalf("expected relation after retry")
	}
}

func TestCoherenceAuditJobSucceedsWithDiscrepancies(t *testing.T) {
	h := newHarness(t)
	frag := testutil.FragmentKey(3)
	testutil.SeedFragment(t, h.ctx, h.db, h.project, frag)
	testutil.SeedDefinitive(t, h.ctx, h.db, h.project, frag, "Territorio", true)

	job := h.enqueue(t, coding.JobTypeCoherenceAudit, nil)
	h.process(t)

	got := h.reload(t, job.ID)
	if got.Status != domain.StatusSucceeded {
		t.Fatalf("status = %s (error %q), want succeeded", got.Status, got.Error)
	}
	if len(got.Result) == 0 {
		t.Fatalf("expected audit result to be stored")
	}
}

type panicking struct{}

func (panicking) Type() string               { return "explode" }
func (panicking) Run(*runtime.Context) error { panic("boom") }

func TestWorkerRecoversPanicsAndUnknownTypes(t *testing.T) {
	h := newHarness(t, panicking{})

	boom := h.enqueue(t, "explode", nil)
	h.process(t)
	if got := h.reload(t, boom.ID); got.Status != domain.StatusFailed || got.Stage != "panic" {
		t.Fatalf("status/stage = %s/%s, want failed/panic", got.Status, got.Stage)
	}

	unknown := h.enqueue(t, "nope", nil)
	// The panicked job is still inside its back-off window.
	h.process(t)
	if got := h.reload(t, unknown.ID); got.Status != domain.StatusFailed || got.Stage != "dispatch" {
		t.Fatalf("status/stage = %s/%s, want failed/dispatch", got.Status, got.Stage)
	}

	claimed, err := h.worker.ProcessNext(h.ctx)
	if err != nil || claimed {
		t.Fatalf("expected idle queue, claimed=%v err=%v", claimed, err)
	}
}

func TestWorkerRecordsActivityPerJobTypeAndStatus(t *testing.T) {
	h := newHarness(t, panicking{})
	failedBefore := h.metrics.ActivityCount(worker.ActivityPoll, "explode", domain.StatusFailed)
	okBefore := h.metrics.ActivityCount(worker.ActivityPoll, coding.JobTypeCoherenceAudit, domain.StatusSucceeded)

	h.enqueue(t, "explode", nil)
	h.process(t)
	h.enqueue(t, coding.JobTypeCoherenceAudit, nil)
	h.process(t)

	if got := h.metrics.ActivityCount(worker.ActivityPoll, "explode", domain.StatusFailed) - failedBefore; got != 1 {
		t.Fatalf("failed explode runs = %d, want 1", got)
	}
	if got := h.metrics.ActivityCount(worker.ActivityPoll, coding.JobTypeCoherenceAudit, domain.StatusSucceeded) - okBefore; got != 1 {
		t.Fatalf("succeeded audit runs = %d, want 1", got)
	}
}

func TestCanceledJobKeepsStatus(t *testing.T) {
	h := newHarness(t)
	job := h.enqueue(t, coding.JobTypeCoherenceAudit, nil)
	if _, err := h.jobs.Cancel(dbctx.Context{Ctx: h.ctx}, job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	claimed, err := h.worker.ProcessNext(h.ctx)
	if err != nil || claimed {
		t.Fatalf("canceled job must not be claimed, claimed=%v err=%v", claimed, err)
	}
	jc := runtime.NewContext(h.ctx, h.db, h.reload(t, job.ID), h.set.JobRuns, nil)
	jc.Succeed("done", nil)
	if got := h.reload(t, job.ID); got.Status != domain.StatusCanceled {
		t.Fatalf("status = %s, want canceled", got.Status)
	}
}
