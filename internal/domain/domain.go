package domain

import (
	"github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/domain/jobs"
)

type (
	CandidateCode     = coding.CandidateCode
	CodeVersion       = coding.CodeVersion
	DefinitiveCode    = coding.DefinitiveCode
	Fragment          = coding.Fragment
	IdempotencyRecord = coding.IdempotencyRecord

	JobRun = jobs.JobRun
)
