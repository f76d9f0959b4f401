package jobs

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/groundwork-backend/internal/domain/jobs"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

func newJob(projectID, jobType, status string, created time.Time) *domain.JobRun {
	return &domain.JobRun{
		ProjectID:  projectID,
		JobType:    jobType,
		EntityType: "project",
		EntityID:   projectID,
		Status:     status,
		Stage:      status,
		Payload:    datatypes.JSON([]byte("{}")),
		Result:     datatypes.JSON([]byte("{}")),
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	repo := NewJobRunRepo(db, testutil.Logger(t))
	now := time.Now().UTC()
	projectID := testutil.ProjectID(t)

	queued := newJob(projectID, "graph_sync", domain.StatusQueued, now.Add(-3*time.Hour))
	failed := newJob(projectID, "graph_sync", domain.StatusFailed, now.Add(-2*time.Hour))
	lastErr := now.Add(-2 * time.Hour)
	failed.LastErrorAt = &lastErr
	staleRunning := newJob(projectID, "graph_sync", domain.StatusRunning, now.Add(-1*time.Hour))
	hb := now.Add(-10 * time.Hour)
	staleRunning.HeartbeatAt = &hb

	created, err := repo.Create(dbc, []*domain.JobRun{queued, failed, staleRunning})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("Create: expected 3, got %d", len(created))
	}

	latest, err := repo.GetLatestByEntity(dbc, projectID, "project", projectID, "graph_sync")
	if err != nil {
		t.Fatalf("GetLatestByEntity: %v", err)
	}
	if latest == nil || latest.ID != staleRunning.ID {
		t.Fatalf("GetLatestByEntity: expected %v got %v", staleRunning.ID, latest)
	}

	// Claims walk the runnable set in created_at order.
	for i, want := range []*domain.JobRun{queued, failed, staleRunning} {
		got, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour)
		if err != nil {
			t.Fatalf("ClaimNextRunnable #%d: %v", i+1, err)
		}
		if got == nil || got.ID != want.ID {
			t.Fatalf("ClaimNextRunnable #%d: expected %v got %v", i+1, want.ID, got)
		}
		if got.Status != domain.StatusRunning {
			t.Fatalf("ClaimNextRunnable #%d: status=%s", i+1, got.Status)
		}
	}
	if got, err := repo.ClaimNextRunnable(dbc, 3, time.Hour, time.Hour); err != nil || got != nil {
		t.Fatalf("ClaimNextRunnable #4: expected nil, got %v err=%v", got, err)
	}

	ok, err := repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{domain.StatusCanceled}, map[string]interface{}{
		"status": domain.StatusSucceeded,
		"stage":  "done",
	})
	if err != nil || !ok {
		t.Fatalf("UpdateFieldsUnlessStatus: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{domain.StatusSucceeded}, map[string]interface{}{"stage": "again"})
	if err != nil || ok {
		t.Fatalf("UpdateFieldsUnlessStatus guarded: ok=%v err=%v", ok, err)
	}

	if err := repo.Heartbeat(dbc, failed.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	has, err := repo.HasRunnableForEntity(dbc, projectID, "project", projectID, "graph_sync")
	if err != nil {
		t.Fatalf("HasRunnableForEntity: %v", err)
	}
	if !has {
		t.Fatalf("HasRunnableForEntity: expected true while jobs are running")
	}
	has, err = repo.HasRunnableForEntity(dbc, projectID, "project", projectID, "coherence_audit")
	if err != nil || has {
		t.Fatalf("HasRunnableForEntity other type: has=%v err=%v", has, err)
	}
}

func TestJobRunRepoClaimByID(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))
	projectID := testutil.ProjectID(t)

	job := newJob(projectID, "coding_promote", domain.StatusQueued, time.Now().UTC())
	if _, err := repo.Create(dbc, []*domain.JobRun{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.ClaimByID(dbc, job.ID, 3, time.Hour)
	if err != nil || got == nil {
		t.Fatalf("ClaimByID: got=%v err=%v", got, err)
	}
	if got.Attempts != 1 {
		t.Fatalf("ClaimByID attempts: %d", got.Attempts)
	}
	again, err := repo.ClaimByID(dbc, job.ID, 3, time.Hour)
	if err != nil || again != nil {
		t.Fatalf("ClaimByID on fresh running job: got=%v err=%v", again, err)
	}
}
