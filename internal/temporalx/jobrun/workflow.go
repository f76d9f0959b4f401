package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"

	domain "github.com/yungbote/groundwork-backend/internal/domain/jobs"
)

const (
	pollInterval         = 2 * time.Second
	continueTickLimit    = 2000
	continueHistoryLimit = 15000
)

// Workflow drives one job_run row to a terminal status. A failed attempt fails the
// workflow so the start-time retry policy schedules the next attempt.
func Workflow(ctx workflow.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		jobID = strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	}
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    30 * time.Second,
	})

	for tick := 1; ; tick++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, jobID).Get(ctx, &out); err != nil {
			return err
		}

		switch strings.ToLower(strings.TrimSpace(out.Status)) {
		case domain.StatusSucceeded, domain.StatusCanceled:
			return nil
		case domain.StatusFailed:
			return fmt.Errorf("job failed (stage=%s): %s", strings.TrimSpace(out.Stage), out.Error)
		}

		if err := workflow.Sleep(ctx, pollInterval); err != nil {
			return err
		}
		if shouldContinueAsNew(ctx, tick) {
			return workflow.NewContinueAsNewError(ctx, Workflow, jobID)
		}
	}
}

func shouldContinueAsNew(ctx workflow.Context, ticks int) bool {
	if ticks >= continueTickLimit {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil {
		return false
	}
	return info.GetCurrentHistoryLength() >= continueHistoryLimit
}
