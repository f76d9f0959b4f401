package coding

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

// CandidateFilter narrows List. Zero values mean "any".
type CandidateFilter struct {
	ProjectID  string
	State      domain.State
	Origin     domain.Origin
	SourceFile string
	Promoted   *bool
	Limit      int
	Offset     int
	Desc       bool
}

// CandidateBucketRow is one group of CandidateCodeRepo.BucketCounts.
type CandidateBucketRow struct {
	Origin     string `gorm:"column:origin"`
	SourceFile string `gorm:"column:source_file"`
	State      string `gorm:"column:state"`
	Promoted   int64  `gorm:"column:promoted"`
	Count      int64  `gorm:"column:n"`
}

type CandidateCodeRepo interface {
	Create(dbc dbctx.Context, rows []*domain.CandidateCode) ([]*domain.CandidateCode, error)
	GetByID(dbc dbctx.Context, projectID string, id uuid.UUID) (*domain.CandidateCode, error)
	// ListByIDs returns the rows of projectID among ids. With lock set, rows are locked FOR UPDATE in id order.
	ListByIDs(dbc dbctx.Context, projectID string, ids []uuid.UUID, lock bool) ([]*domain.CandidateCode, error)
	List(dbc dbctx.Context, f CandidateFilter) ([]*domain.CandidateCode, int64, error)
	// ListMergeable returns rows whose normalized text equals normalized and that can still be merged.
	ListMergeable(dbc dbctx.Context, projectID, normalized string, lock bool) ([]*domain.CandidateCode, error)
	// ListValidatedUnpromoted restricts to ids when non-empty.
	ListValidatedUnpromoted(dbc dbctx.Context, projectID string, ids []uuid.UUID, lock bool) ([]*domain.CandidateCode, error)
	ListByNormalized(dbc dbctx.Context, projectID string, normalized []string) ([]*domain.CandidateCode, error)
	// UpdateIfState applies updates only while the row is unpromoted and in one of fromStates.
	UpdateIfState(dbc dbctx.Context, projectID string, id uuid.UUID, fromStates []domain.State, updates map[string]interface{}) (bool, error)
	MarkPromoted(dbc dbctx.Context, projectID string, id uuid.UUID, actor string, at time.Time) (bool, error)
	PendingCreatedAt(dbc dbctx.Context, projectID string) ([]time.Time, error)
	BucketCounts(dbc dbctx.Context, projectID string) ([]CandidateBucketRow, error)
	DistinctVocabulary(dbc dbctx.Context, projectID string) ([]string, error)
}

type candidateCodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCandidateCodeRepo(db *gorm.DB, baseLog *logger.Logger) CandidateCodeRepo {
	return &candidateCodeRepo{
		db:  db,
		log: baseLog.With("repo", "CandidateCodeRepo"),
	}
}

var inactiveStates = []domain.State{domain.StateRejected, domain.StateMerged}

func (r *candidateCodeRepo) Create(dbc dbctx.Context, rows []*domain.CandidateCode) ([]*domain.CandidateCode, error) {
	if len(rows) == 0 {
		return []*domain.CandidateCode{}, nil
	}
	if err := dbc.DB(r.db).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *candidateCodeRepo) GetByID(dbc dbctx.Context, projectID string, id uuid.UUID) (*domain.CandidateCode, error) {
	if projectID == "" || id == uuid.Nil {
		return nil, nil
	}
	var row domain.CandidateCode
	err := dbc.DB(r.db).
		Where("project_id = ? AND id = ?", projectID, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *candidateCodeRepo) ListByIDs(dbc dbctx.Context, projectID string, ids []uuid.UUID, lock bool) ([]*domain.CandidateCode, error) {
	var out []*domain.CandidateCode
	if projectID == "" || len(ids) == 0 {
		return out, nil
	}
	q := dbc.DB(r.db).Where("project_id = ? AND id IN ?", projectID, ids).Order("id ASC")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *candidateCodeRepo) List(dbc dbctx.Context, f CandidateFilter) ([]*domain.CandidateCode, int64, error) {
	var out []*domain.CandidateCode
	if f.ProjectID == "" {
		return out, 0, nil
	}
	q := dbc.DB(r.db).Model(&domain.CandidateCode{}).Where("project_id = ?", f.ProjectID)
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.Origin != "" {
		q = q.Where("origin = ?", f.Origin)
	}
	if s := strings.TrimSpace(f.SourceFile); s != "" {
		q = q.Where("source_file = ?", s)
	}
	if f.Promoted != nil {
		if *f.Promoted {
			q = q.Where("promoted_at IS NOT NULL")
		} else {
			q = q.Where("promoted_at IS NULL")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at ASC, id ASC"
	if f.Desc {
		order = "created_at DESC, id DESC"
	}
	q = q.Order(order)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *candidateCodeRepo) ListMergeable(dbc dbctx.Context, projectID, normalized string, lock bool) ([]*domain.CandidateCode, error) {
	var out []*domain.CandidateCode
	if projectID == "" || normalized == "" {
		return out, nil
	}
	q := dbc.DB(r.db).
		Where("project_id = ? AND normalized_text = ? AND promoted_at IS NULL AND state NOT IN ?", projectID, normalized, inactiveStates).
		Order("id ASC")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *candidateCodeRepo) ListValidatedUnpromoted(dbc dbctx.Context, projectID string, ids []uuid.UUID, lock bool) ([]*domain.CandidateCode, error) {
	var out []*domain.CandidateCode
	if projectID == "" {
		return out, nil
	}
	q := dbc.DB(r.db).
		Where("project_id = ? AND state = ? AND promoted_at IS NULL", projectID, domain.StateValidated)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	q = q.Order("id ASC")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *candidateCodeRepo) ListByNormalized(dbc dbctx.Context, projectID string, normalized []string) ([]*domain.CandidateCode, error) {
	var out []*domain.CandidateCode
	if projectID == "" || len(normalized) == 0 {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("project_id = ? AND normalized_text IN ? AND state NOT IN ?", projectID, normalized, inactiveStates).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *candidateCodeRepo) UpdateIfState(dbc dbctx.Context, projectID string, id uuid.UUID, fromStates []domain.State, updates map[string]interface{}) (bool, error) {
	if projectID == "" || id == uuid.Nil || len(fromStates) == 0 {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.DB(r.db).
		Model(&domain.CandidateCode{}).
		Where("project_id = ? AND id = ? AND promoted_at IS NULL AND state IN ?", projectID, id, fromStates).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *candidateCodeRepo) MarkPromoted(dbc dbctx.Context, projectID string, id uuid.UUID, actor string, at time.Time) (bool, error) {
	if projectID == "" || id == uuid.Nil {
		return false, nil
	}
	res := dbc.DB(r.db).
		Model(&domain.CandidateCode{}).
		Where("project_id = ? AND id = ? AND state = ? AND promoted_at IS NULL", projectID, id, domain.StateValidated).
		Updates(map[string]interface{}{
			"promoted_by": actor,
			"promoted_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *candidateCodeRepo) PendingCreatedAt(dbc dbctx.Context, projectID string) ([]time.Time, error) {
	var out []time.Time
	if projectID == "" {
		return out, nil
	}
	err := dbc.DB(r.db).
		Model(&domain.CandidateCode{}).
		Where("project_id = ? AND state = ?", projectID, domain.StatePending).
		Order("created_at ASC").
		Pluck("created_at", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *candidateCodeRepo) BucketCounts(dbc dbctx.Context, projectID string) ([]CandidateBucketRow, error) {
	var out []CandidateBucketRow
	if projectID == "" {
		return out, nil
	}
	err := dbc.DB(r.db).
		Model(&domain.CandidateCode{}).
		Select(`origin, COALESCE(source_file, '') AS source_file, state,
      CASE WHEN promoted_at IS NULL THEN 0 ELSE 1 END AS promoted, COUNT(*) AS n`).
		Where("project_id = ?", projectID).
		Group("origin, COALESCE(source_file, ''), state, CASE WHEN promoted_at IS NULL THEN 0 ELSE 1 END").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *candidateCodeRepo) DistinctVocabulary(dbc dbctx.Context, projectID string) ([]string, error) {
	var out []string
	if projectID == "" {
		return out, nil
	}
	err := dbc.DB(r.db).
		Model(&domain.CandidateCode{}).
		Where("project_id = ? AND state NOT IN ?", projectID, inactiveStates).
		Distinct("code_text").
		Order("code_text ASC").
		Pluck("code_text", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
