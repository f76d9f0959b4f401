package coding

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type State string

const (
	StatePending    State = "pending"
	StateHypothesis State = "hypothesis"
	StateValidated  State = "validated"
	StateRejected   State = "rejected"
	StateMerged     State = "merged"
)

var States = []State{StatePending, StateHypothesis, StateValidated, StateRejected, StateMerged}

func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}
	return false
}

type Origin string

const (
	OriginLLM                Origin = "llm"
	OriginManual             Origin = "manual"
	OriginDiscovery          Origin = "discovery"
	OriginSemanticSuggestion Origin = "semantic_suggestion"
	OriginDiscoveryAI        Origin = "discovery_ai"
	OriginLinkPrediction     Origin = "link_prediction"
)

var Origins = []Origin{
	OriginLLM, OriginManual, OriginDiscovery, OriginSemanticSuggestion, OriginDiscoveryAI, OriginLinkPrediction,
}

func (o Origin) Valid() bool {
	for _, known := range Origins {
		if o == known {
			return true
		}
	}
	return false
}

// Promotable is false for origins whose candidates describe code-to-code relations rather than fragment evidence.
func (o Origin) Promotable() bool {
	return o != OriginLinkPrediction
}

// MinFragmentIDLength is the shortest fragment id accepted as evidence.
const MinFragmentIDLength = 11

// CandidateCode is one proposed code. Rows are never deleted; state transitions are the only mutation path.
type CandidateCode struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID       string         `gorm:"column:project_id;not null;index:idx_candidate_project_state,priority:1;index:idx_candidate_project_norm,priority:1" json:"project_id"`
	CodeText        string         `gorm:"column:code_text;not null" json:"code_text"`
	NormalizedText  string         `gorm:"column:normalized_text;not null;index:idx_candidate_project_norm,priority:2" json:"normalized_text"`
	Quote           string         `gorm:"column:quote" json:"quote,omitempty"`
	FragmentID      *string        `gorm:"column:fragment_id;index" json:"fragment_id,omitempty"`
	SourceFile      string         `gorm:"column:source_file;index" json:"source_file,omitempty"`
	Origin          Origin         `gorm:"column:origin;not null;index" json:"origin"`
	OriginDetail    string         `gorm:"column:origin_detail" json:"origin_detail,omitempty"`
	ConfidenceScore *float64       `gorm:"column:confidence_score" json:"confidence_score,omitempty"`
	State           State          `gorm:"column:state;not null;index:idx_candidate_project_state,priority:2" json:"state"`
	ValidatedBy     string         `gorm:"column:validated_by" json:"validated_by,omitempty"`
	ValidatedAt     *time.Time     `gorm:"column:validated_at" json:"validated_at,omitempty"`
	MergedInto      *string        `gorm:"column:merged_into" json:"merged_into,omitempty"`
	Memo            string         `gorm:"column:memo" json:"memo,omitempty"`
	PromotedBy      string         `gorm:"column:promoted_by" json:"promoted_by,omitempty"`
	PromotedAt      *time.Time     `gorm:"column:promoted_at;index" json:"promoted_at,omitempty"`
	Metadata        datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (CandidateCode) TableName() string { return "candidate_code" }

func (c *CandidateCode) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *CandidateCode) Promoted() bool { return c != nil && c.PromotedAt != nil }

// HasEvidence reports whether the candidate carries a well-formed fragment reference.
func (c *CandidateCode) HasEvidence() bool {
	return c != nil && ValidFragmentID(c.FragmentID)
}

func ValidFragmentID(id *string) bool {
	return id != nil && len(*id) >= MinFragmentIDLength
}
