package coding

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type DefinitiveCodeRepo interface {
	// InsertIgnoreConflicts inserts rows one by one and returns only those that were new.
	// Rows colliding on (project_id, fragment_id, code_text) are skipped silently.
	InsertIgnoreConflicts(dbc dbctx.Context, rows []*domain.DefinitiveCode) ([]*domain.DefinitiveCode, error)
	ListByIDs(dbc dbctx.Context, projectID string, ids []uuid.UUID) ([]*domain.DefinitiveCode, error)
	// ListForSync returns rows in id order; onlyUnsynced restricts to synced = false.
	ListForSync(dbc dbctx.Context, projectID string, onlyUnsynced bool) ([]*domain.DefinitiveCode, error)
	MarkSynced(dbc dbctx.Context, projectID string, ids []uuid.UUID, at time.Time) error
	MarkSyncError(dbc dbctx.Context, projectID string, ids []uuid.UUID, msg string) error
	Counts(dbc dbctx.Context, projectID string) (total int64, synced int64, err error)
	DistinctCodes(dbc dbctx.Context, projectID string) ([]string, error)
	// ListByNormalized returns rows whose normalized text is one of normalized, oldest first.
	ListByNormalized(dbc dbctx.Context, projectID string, normalized []string) ([]*domain.DefinitiveCode, error)
}

type definitiveCodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDefinitiveCodeRepo(db *gorm.DB, baseLog *logger.Logger) DefinitiveCodeRepo {
	return &definitiveCodeRepo{
		db:  db,
		log: baseLog.With("repo", "DefinitiveCodeRepo"),
	}
}

func (r *definitiveCodeRepo) InsertIgnoreConflicts(dbc dbctx.Context, rows []*domain.DefinitiveCode) ([]*domain.DefinitiveCode, error) {
	inserted := make([]*domain.DefinitiveCode, 0, len(rows))
	tx := dbc.DB(r.db)
	for _, row := range rows {
		if row == nil {
			continue
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "fragment_id"}, {Name: "code_text"}},
			DoNothing: true,
		}).Create(row)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected > 0 {
			inserted = append(inserted, row)
		}
	}
	return inserted, nil
}

func (r *definitiveCodeRepo) ListByIDs(dbc dbctx.Context, projectID string, ids []uuid.UUID) ([]*domain.DefinitiveCode, error) {
	var out []*domain.DefinitiveCode
	if projectID == "" || len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("project_id = ? AND id IN ?", projectID, ids).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *definitiveCodeRepo) ListForSync(dbc dbctx.Context, projectID string, onlyUnsynced bool) ([]*domain.DefinitiveCode, error) {
	var out []*domain.DefinitiveCode
	if projectID == "" {
		return out, nil
	}
	q := dbc.DB(r.db).Where("project_id = ?", projectID)
	if onlyUnsynced {
		q = q.Where("synced = ?", false)
	}
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *definitiveCodeRepo) MarkSynced(dbc dbctx.Context, projectID string, ids []uuid.UUID, at time.Time) error {
	if projectID == "" || len(ids) == 0 {
		return nil
	}
	return dbc.DB(r.db).
		Model(&domain.DefinitiveCode{}).
		Where("project_id = ? AND id IN ?", projectID, ids).
		Updates(map[string]interface{}{
			"synced":     true,
			"synced_at":  at,
			"sync_error": "",
			"updated_at": at,
		}).Error
}

func (r *definitiveCodeRepo) MarkSyncError(dbc dbctx.Context, projectID string, ids []uuid.UUID, msg string) error {
	if projectID == "" || len(ids) == 0 {
		return nil
	}
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return dbc.DB(r.db).
		Model(&domain.DefinitiveCode{}).
		Where("project_id = ? AND id IN ?", projectID, ids).
		Updates(map[string]interface{}{
			"synced":     false,
			"sync_error": msg,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *definitiveCodeRepo) Counts(dbc dbctx.Context, projectID string) (int64, int64, error) {
	var total, synced int64
	if projectID == "" {
		return 0, 0, nil
	}
	q := dbc.DB(r.db)
	if err := q.Model(&domain.DefinitiveCode{}).Where("project_id = ?", projectID).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err := dbc.DB(r.db).Model(&domain.DefinitiveCode{}).
		Where("project_id = ? AND synced = ?", projectID, true).
		Count(&synced).Error; err != nil {
		return 0, 0, err
	}
	return total, synced, nil
}

func (r *definitiveCodeRepo) DistinctCodes(dbc dbctx.Context, projectID string) ([]string, error) {
	var out []string
	if projectID == "" {
		return out, nil
	}
	err := dbc.DB(r.db).
		Model(&domain.DefinitiveCode{}).
		Where("project_id = ?", projectID).
		Distinct("code_text").
		Order("code_text ASC").
		Pluck("code_text", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *definitiveCodeRepo) ListByNormalized(dbc dbctx.Context, projectID string, normalized []string) ([]*domain.DefinitiveCode, error) {
	var out []*domain.DefinitiveCode
	if projectID == "" || len(normalized) == 0 {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("project_id = ? AND normalized_text IN ?", projectID, normalized).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
