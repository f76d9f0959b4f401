package coherence_audit

import (
	"fmt"

	jobrt "github.com/yungbote/groundwork-backend/internal/jobs/runtime"
)

// Run audits one project. Discrepancies are reported in the result, not as a failure.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	projectID := jc.ProjectID()
	if projectID == "" {
		jc.Fail("validate", fmt.Errorf("missing project_id"))
		return nil
	}

	jc.Progress("audit", 5)
	out, err := p.coding.AuditAndNotify(jc.Ctx, projectID)
	if err != nil {
		jc.Fail("audit", err)
		return nil
	}

	jc.Succeed("done", out)
	return nil
}
