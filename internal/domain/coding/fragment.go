package coding

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Fragment is an immutable transcript excerpt. The ingestion service owns writes.
type Fragment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  string    `gorm:"column:project_id;not null;uniqueIndex:idx_fragment_project_key,priority:1" json:"project_id"`
	FragmentID string    `gorm:"column:fragment_id;not null;uniqueIndex:idx_fragment_project_key,priority:2" json:"fragment_id"`
	SourceFile string    `gorm:"column:source_file;index" json:"source_file,omitempty"`
	Text       string    `gorm:"column:text" json:"text,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (Fragment) TableName() string { return "fragment" }

func (f *Fragment) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
