package graph_sync

import (
	"fmt"

	jobrt "github.com/yungbote/groundwork-backend/internal/jobs/runtime"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
)

// Run replays unsynced definitive codes. A deferred projection fails the attempt so the
// worker retries it after the back-off.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	projectID := jc.ProjectID()
	if projectID == "" {
		jc.Fail("validate", fmt.Errorf("missing project_id"))
		return nil
	}

	jc.Progress("sync", 5)
	out, err := p.coding.SyncGraph(jc.Ctx, coding.SyncGraphInput{
		ProjectID:    projectID,
		OnlyUnsynced: true,
		Trigger:      coding.SyncTriggerJob,
	})
	if err != nil {
		jc.Fail("sync", err)
		return nil
	}
	if out.Deferred {
		p.log.Info("graph still unavailable, will retry", "job_id", jc.Job.ID, "project_id", projectID, "reason", out.DeferredReason)
		jc.Fail("sync", fmt.Errorf("graph sync deferred: %s", out.DeferredReason))
		return nil
	}

	jc.Succeed("done", out)
	return nil
}
