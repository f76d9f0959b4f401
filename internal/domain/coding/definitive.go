package coding

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefinitiveCode is an accepted code-to-fragment assignment and the unit projected into the graph.
// Synced tracks whether the projection has caught up with this row.
type DefinitiveCode struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID      string     `gorm:"column:project_id;not null;uniqueIndex:idx_definitive_assignment,priority:1;index:idx_definitive_sync,priority:1;index:idx_definitive_project_norm,priority:1" json:"project_id"`
	FragmentID     string     `gorm:"column:fragment_id;not null;uniqueIndex:idx_definitive_assignment,priority:2" json:"fragment_id"`
	CodeText       string     `gorm:"column:code_text;not null;uniqueIndex:idx_definitive_assignment,priority:3" json:"code_text"`
	// NormalizedText is derived from CodeText on insert.
	NormalizedText string     `gorm:"column:normalized_text;not null;default:'';index:idx_definitive_project_norm,priority:2" json:"normalized_text"`
	Quote          string     `gorm:"column:quote" json:"quote,omitempty"`
	SourceFile     string     `gorm:"column:source_file" json:"source_file,omitempty"`
	CandidateID    *uuid.UUID `gorm:"type:uuid;column:candidate_id;index" json:"candidate_id,omitempty"`
	Synced         bool       `gorm:"column:synced;not null;default:false;index:idx_definitive_sync,priority:2" json:"synced"`
	SyncedAt       *time.Time `gorm:"column:synced_at" json:"synced_at,omitempty"`
	SyncError      string     `gorm:"column:sync_error" json:"sync_error,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

func (DefinitiveCode) TableName() string { return "definitive_code" }

func (d *DefinitiveCode) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.NormalizedText == "" {
		d.NormalizedText = NormalizeCodeText(d.CodeText)
	}
	return nil
}
