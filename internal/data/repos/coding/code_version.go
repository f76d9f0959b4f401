package coding

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type CodeVersionRepo interface {
	// LockCodes serialises version allocation for the given code texts until the transaction ends.
	// Locks are taken in sorted order. It is a no-op outside Postgres.
	LockCodes(dbc dbctx.Context, projectID string, codeTexts []string) error
	// Append assigns Version = max(version)+1 for (project_id, code_text) and inserts the row.
	Append(dbc dbctx.Context, v *domain.CodeVersion) error
	History(dbc dbctx.Context, projectID, codeText string) ([]*domain.CodeVersion, error)
	CountForCandidate(dbc dbctx.Context, projectID string, candidateID uuid.UUID, action domain.Action) (int64, error)
}

type codeVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCodeVersionRepo(db *gorm.DB, baseLog *logger.Logger) CodeVersionRepo {
	return &codeVersionRepo{
		db:  db,
		log: baseLog.With("repo", "CodeVersionRepo"),
	}
}

func advisoryKey(projectID, codeText string) string {
	return "code_version:" + projectID + "\x00" + codeText
}

func (r *codeVersionRepo) LockCodes(dbc dbctx.Context, projectID string, codeTexts []string) error {
	if dbc.Tx == nil {
		return fmt.Errorf("code version lock requires a transaction")
	}
	if dbc.Tx.Dialector.Name() != "postgres" {
		return nil
	}
	seen := map[string]bool{}
	keys := make([]string, 0, len(codeTexts))
	for _, ct := range codeTexts {
		if seen[ct] {
			continue
		}
		seen[ct] = true
		keys = append(keys, ct)
	}
	sort.Strings(keys)
	tx := dbc.DB(nil)
	for _, ct := range keys {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", advisoryKey(projectID, ct)).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *codeVersionRepo) Append(dbc dbctx.Context, v *domain.CodeVersion) error {
	if v == nil {
		return nil
	}
	if dbc.Tx == nil {
		return fmt.Errorf("code version append requires a transaction")
	}
	if v.ProjectID == "" || v.CodeText == "" {
		return fmt.Errorf("code version requires project_id and code_text")
	}
	if err := r.LockCodes(dbc, v.ProjectID, []string{v.CodeText}); err != nil {
		return err
	}
	tx := dbc.DB(nil)
	var current int
	err := tx.Model(&domain.CodeVersion{}).
		Select("COALESCE(MAX(version), 0)").
		Where("project_id = ? AND code_text = ?", v.ProjectID, v.CodeText).
		Scan(&current).Error
	if err != nil {
		return err
	}
	v.Version = current + 1
	return tx.Create(v).Error
}

func (r *codeVersionRepo) History(dbc dbctx.Context, projectID, codeText string) ([]*domain.CodeVersion, error) {
	var out []*domain.CodeVersion
	if projectID == "" || codeText == "" {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("project_id = ? AND code_text = ?", projectID, codeText).
		Order("version ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *codeVersionRepo) CountForCandidate(dbc dbctx.Context, projectID string, candidateID uuid.UUID, action domain.Action) (int64, error) {
	var n int64
	q := dbc.DB(r.db).Model(&domain.CodeVersion{}).
		Where("project_id = ? AND candidate_id = ?", projectID, candidateID)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
