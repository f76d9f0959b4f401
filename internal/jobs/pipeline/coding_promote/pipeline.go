package coding_promote

import (
	"fmt"
	"strings"

	jobrt "github.com/yungbote/groundwork-backend/internal/jobs/runtime"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	var payload coding.PromoteJobPayload
	if err := jc.DecodePayload(&payload); err != nil {
		jc.Fail("validate", err)
		return nil
	}
	if strings.TrimSpace(payload.ProjectID) == "" {
		payload.ProjectID = jc.ProjectID()
	}
	if payload.ProjectID == "" {
		jc.Fail("validate", fmt.Errorf("missing project_id"))
		return nil
	}
	ids, err := jc.PayloadUUIDs("candidate_ids")
	if err != nil {
		jc.Fail("validate", err)
		return nil
	}
	payload.CandidateIDs = ids

	jc.Progress("promote", 5)
	out, err := p.coding.RunPromote(jc.Ctx, payload.Input())
	if err != nil {
		p.log.Warn("promotion job failed", "job_id", jc.Job.ID, "project_id", payload.ProjectID, "error", err)
		jc.Fail("promote", err)
		return nil
	}

	jc.Succeed("done", out)
	return nil
}
