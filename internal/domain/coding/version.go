package coding

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Action string

const (
	ActionCreate     Action = "create"
	ActionValidate   Action = "validate"
	ActionReject     Action = "reject"
	ActionMerge      Action = "merge"
	ActionPromote    Action = "promote"
	ActionRevert     Action = "revert"
	ActionHypothesis Action = "hypothesis"
)

// CodeVersion is append-only. Version is strictly increasing per (project_id, code_text).
type CodeVersion struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   string     `gorm:"column:project_id;not null;uniqueIndex:idx_code_version_seq,priority:1" json:"project_id"`
	CodeText    string     `gorm:"column:code_text;not null;uniqueIndex:idx_code_version_seq,priority:2" json:"code_text"`
	Version     int        `gorm:"column:version;not null;uniqueIndex:idx_code_version_seq,priority:3" json:"version"`
	CandidateID *uuid.UUID `gorm:"type:uuid;column:candidate_id;index" json:"candidate_id,omitempty"`
	MemoBefore  string     `gorm:"column:memo_before" json:"memo_before,omitempty"`
	MemoAfter   string     `gorm:"column:memo_after" json:"memo_after,omitempty"`
	Action      Action     `gorm:"column:action;not null;index" json:"action"`
	ChangedBy   string     `gorm:"column:changed_by" json:"changed_by,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
}

func (CodeVersion) TableName() string { return "code_version" }

func (v *CodeVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
