package coding

import (
	"gorm.io/gorm"

	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

// FragmentRepo is a read view over the fragment table; ingestion owns writes.
type FragmentRepo interface {
	ExistingIDs(dbc dbctx.Context, projectID string, fragmentIDs []string) (map[string]bool, error)
	Count(dbc dbctx.Context, projectID string) (int64, error)
}

type fragmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFragmentRepo(db *gorm.DB, baseLog *logger.Logger) FragmentRepo {
	return &fragmentRepo{
		db:  db,
		log: baseLog.With("repo", "FragmentRepo"),
	}
}

func (r *fragmentRepo) ExistingIDs(dbc dbctx.Context, projectID string, fragmentIDs []string) (map[string]bool, error) {
	out := map[string]bool{}
	if projectID == "" || len(fragmentIDs) == 0 {
		return out, nil
	}
	var found []string
	err := dbc.DB(r.db).
		Model(&domain.Fragment{}).
		Where("project_id = ? AND fragment_id IN ?", projectID, fragmentIDs).
		Pluck("fragment_id", &found).Error
	if err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = true
	}
	return out, nil
}

func (r *fragmentRepo) Count(dbc dbctx.Context, projectID string) (int64, error) {
	var n int64
	if projectID == "" {
		return 0, nil
	}
	if err := dbc.DB(r.db).Model(&domain.Fragment{}).Where("project_id = ?", projectID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
