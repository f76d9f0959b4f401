package coherence_audit

import (
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type Pipeline struct {
	log    *logger.Logger
	coding coding.Usecases
}

func New(baseLog *logger.Logger, uc coding.Usecases) *Pipeline {
	log := baseLog.With("job", coding.JobTypeCoherenceAudit)
	return &Pipeline{
		log:    log,
		coding: uc.WithLog(log),
	}
}

func (p *Pipeline) Type() string { return coding.JobTypeCoherenceAudit }
