package coding

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	IdempotencyScopeMerge     = "merge"
	IdempotencyScopeAutoMerge = "auto_merge"
)

// IdempotencyRecord remembers the result of a keyed mutation so a retried call can replay it.
type IdempotencyRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID   string         `gorm:"column:project_id;not null;uniqueIndex:idx_idempotency_key,priority:1" json:"project_id"`
	Scope       string         `gorm:"column:scope;not null;uniqueIndex:idx_idempotency_key,priority:2" json:"scope"`
	Key         string         `gorm:"column:key;not null;uniqueIndex:idx_idempotency_key,priority:3" json:"key"`
	RequestHash string         `gorm:"column:request_hash;not null" json:"request_hash"`
	Result      datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	ExpiresAt   time.Time      `gorm:"column:expires_at;not null;index" json:"expires_at"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_record" }

func (r *IdempotencyRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return r == nil || !now.Before(r.ExpiresAt)
}
