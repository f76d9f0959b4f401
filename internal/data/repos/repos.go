package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/repos/coding"
	"github.com/yungbote/groundwork-backend/internal/data/repos/jobs"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type CandidateCodeRepo = coding.CandidateCodeRepo
type CodeVersionRepo = coding.CodeVersionRepo
type DefinitiveCodeRepo = coding.DefinitiveCodeRepo
type FragmentRepo = coding.FragmentRepo
type IdempotencyRecordRepo = coding.IdempotencyRecordRepo

type CandidateFilter = coding.CandidateFilter
type CandidateBucketRow = coding.CandidateBucketRow

type JobRunRepo = jobs.JobRunRepo

func NewCandidateCodeRepo(db *gorm.DB, baseLog *logger.Logger) CandidateCodeRepo {
	return coding.NewCandidateCodeRepo(db, baseLog)
}
func NewCodeVersionRepo(db *gorm.DB, baseLog *logger.Logger) CodeVersionRepo {
	return coding.NewCodeVersionRepo(db, baseLog)
}
func NewDefinitiveCodeRepo(db *gorm.DB, baseLog *logger.Logger) DefinitiveCodeRepo {
	return coding.NewDefinitiveCodeRepo(db, baseLog)
}
func NewFragmentRepo(db *gorm.DB, baseLog *logger.Logger) FragmentRepo {
	return coding.NewFragmentRepo(db, baseLog)
}
func NewIdempotencyRecordRepo(db *gorm.DB, baseLog *logger.Logger) IdempotencyRecordRepo {
	return coding.NewIdempotencyRecordRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

// Set bundles every repository for the composition root.
type Set struct {
	Candidates  CandidateCodeRepo
	Versions    CodeVersionRepo
	Definitive  DefinitiveCodeRepo
	Fragments   FragmentRepo
	Idempotency IdempotencyRecordRepo
	JobRuns     JobRunRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Candidates:  NewCandidateCodeRepo(db, baseLog),
		Versions:    NewCodeVersionRepo(db, baseLog),
		Definitive:  NewDefinitiveCodeRepo(db, baseLog),
		Fragments:   NewFragmentRepo(db, baseLog),
		Idempotency: NewIdempotencyRecordRepo(db, baseLog),
		JobRuns:     NewJobRunRepo(db, baseLog),
	}
}
