package coding

import (
	"errors"
	"time"

	"gorm.io/gorm"

	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type IdempotencyRecordRepo interface {
	Get(dbc dbctx.Context, projectID, scope, key string) (*domain.IdempotencyRecord, error)
	// Put stores rec, replacing an expired record with the same key. A live record yields a unique violation.
	Put(dbc dbctx.Context, rec *domain.IdempotencyRecord, now time.Time) error
	// DeleteExpired removes records past expiry; an empty projectID sweeps every project.
	DeleteExpired(dbc dbctx.Context, projectID string, now time.Time) (int64, error)
}

type idempotencyRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIdempotencyRecordRepo(db *gorm.DB, baseLog *logger.Logger) IdempotencyRecordRepo {
	return &idempotencyRecordRepo{
		db:  db,
		log: baseLog.With("repo", "IdempotencyRecordRepo"),
	}
}

func (r *idempotencyRecordRepo) Get(dbc dbctx.Context, projectID, scope, key string) (*domain.IdempotencyRecord, error) {
	if projectID == "" || scope == "" || key == "" {
		return nil, nil
	}
	var rec domain.IdempotencyRecord
	err := dbc.DB(r.db).
		Where("project_id = ? AND scope = ? AND key = ?", projectID, scope, key).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *idempotencyRecordRepo) Put(dbc dbctx.Context, rec *domain.IdempotencyRecord, now time.Time) error {
	if rec == nil {
		return nil
	}
	tx := dbc.DB(r.db)
	if err := tx.
		Where("project_id = ? AND scope = ? AND key = ? AND expires_at <= ?", rec.ProjectID, rec.Scope, rec.Key, now).
		Delete(&domain.IdempotencyRecord{}).Error; err != nil {
		return err
	}
	return tx.Create(rec).Error
}

func (r *idempotencyRecordRepo) DeleteExpired(dbc dbctx.Context, projectID string, now time.Time) (int64, error) {
	q := dbc.DB(r.db).Where("expires_at <= ?", now)
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	res := q.Delete(&domain.IdempotencyRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
