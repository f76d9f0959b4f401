package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/yungbote/groundwork-backend/internal/data/repos"
	domain "github.com/yungbote/groundwork-backend/internal/domain/jobs"
	"github.com/yungbote/groundwork-backend/internal/jobs/worker"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type Activities struct {
	Log      *logger.Logger
	Jobs     repos.JobRunRepo
	Executor *worker.Worker
}

// Tick claims the job row and runs its handler once. Rows that are not runnable are
// reported as they are so the workflow can decide whether to wait or stop.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.Jobs == nil || a.Executor == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id %q", jobID)
	}

	claimed, err := a.Jobs.ClaimByID(dbctx.Context{Ctx: ctx}, id, worker.MaxAttempts, worker.StaleRunning)
	if err != nil {
		return res, err
	}
	if claimed != nil {
		stopHB := a.startHeartbeat(ctx, id)
		a.Executor.RunActivity(ctx, claimed, ActivityTick)
		stopHB()
		res.Ran = true
	}

	job, err := a.Jobs.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job %s not found", id)
	}
	res.Status = job.Status
	res.Stage = job.Stage
	res.Progress = job.Progress
	res.Error = job.Error
	if claimed == nil && job.Status == domain.StatusFailed && job.Attempts >= worker.MaxAttempts && a.Log != nil {
		a.Log.Warn("job exhausted its attempts", "job_id", id, "job_type", job.JobType, "error", job.Error)
	}
	return res, nil
}

func (a *Activities) startHeartbeat(ctx context.Context, jobID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(10 * time.Second)
		defer temporalHB.Stop()
		dbHB := time.NewTicker(30 * time.Second)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				if activity.IsActivity(ctx) {
					activity.RecordHeartbeat(ctx)
				}
			case <-dbHB.C:
				_ = a.Jobs.Heartbeat(dbctx.Context{Ctx: ctx}, jobID)
			}
		}
	}()
	return func() { close(done) }
}
