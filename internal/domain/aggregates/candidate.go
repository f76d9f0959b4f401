package aggregates

import (
	"context"
	"time"

	"github.com/google/uuid"
)

var CandidateAggregateContract = Contract{
	Name:   "Coding.CandidateAggregate",
	Tables: []string{"candidate_code", "code_version", "definitive_code", "idempotency_record"},
	Notes:  "Owns candidate lifecycle, merge and promotion together with the code_version audit trail.",
}

// CandidateAggregate owns every write to the candidate ledger and the definitive code store.
//
// Batch methods report per-item outcomes and only fail as a whole on malformed input or
// infrastructure errors. Failures are *aggregates.Error with codes
// CodeValidation, CodeNotFound, CodeConflict, CodeInvariantViolation, CodeRetryable, CodeInternal.
type CandidateAggregate interface {
	Aggregate

	Submit(ctx context.Context, in SubmitCandidatesInput) (SubmitCandidatesResult, error)

	// Transition moves one candidate to ToState. Moving to the current state is a no-op success.
	Transition(ctx context.Context, in TransitionCandidateInput) (TransitionCandidateResult, error)

	// RevertValidated returns every unpromoted validated candidate of a project to pending.
	RevertValidated(ctx context.Context, in RevertValidatedInput) (RevertValidatedResult, error)

	MergeByID(ctx context.Context, in MergeByIDInput) (MergeByIDResult, error)
	MergeByName(ctx context.Context, in MergeByNameInput) (MergeByNameResult, error)

	// Promote copies validated candidates with valid evidence into the definitive store.
	Promote(ctx context.Context, in PromoteCandidatesInput) (PromoteCandidatesResult, error)
}

// Skip reasons reported on per-item results.
const (
	SkipInvalidFragmentID     = "invalid_fragment_id"
	SkipFragmentNotFound      = "fragment_not_found"
	SkipMissingEvidence       = "missing_evidence"
	SkipInvalidOrigin         = "invalid_origin"
	SkipInvalidMetadata       = "invalid_metadata"
	SkipInvalidConfidence     = "invalid_confidence"
	SkipEmptyCodeText         = "empty_code_text"
	SkipNotFound              = "not_found"
	SkipAlreadyMerged         = "already_merged"
	SkipAlreadyPromoted       = "already_promoted"
	SkipRejected              = "rejected"
	SkipNotValidated          = "not_validated"
	SkipTargetEqualsSource    = "target_equals_source"
	SkipNoMatchingCandidates  = "no_matching_candidates"
	SkipLinkPredictionExclude = "link_prediction_excluded"
)

type CandidateDraft struct {
	CodeText     string         `json:"code_text"`
	Quote        string         `json:"quote,omitempty"`
	FragmentID   *string        `json:"fragment_id,omitempty"`
	SourceFile   string         `json:"source_file,omitempty"`
	Origin       string         `json:"origin"`
	OriginDetail string         `json:"origin_detail,omitempty"`
	Confidence   *float64       `json:"confidence,omitempty"`
	Memo         string         `json:"memo,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type SubmitCandidatesInput struct {
	ProjectID string
	Actor     string
	Items     []CandidateDraft
	At        time.Time
}

type SubmitItemResult struct {
	Index       int       `json:"index"`
	CandidateID uuid.UUID `json:"candidate_id,omitempty"`
	Skipped     string    `json:"skipped,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

type SubmitCandidatesResult struct {
	InsertedCount int                `json:"inserted_count"`
	Items         []SubmitItemResult `json:"items"`
}

type TransitionCandidateInput struct {
	ProjectID   string
	CandidateID uuid.UUID
	ToState     string
	Actor       string
	Memo        *string
	At          time.Time
}

type TransitionCandidateResult struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	State       string    `json:"state"`
	Changed     bool      `json:"changed"`
	Version     int       `json:"version,omitempty"`
}

type RevertValidatedInput struct {
	ProjectID string
	Actor     string
	Memo      *string
	DryRun    bool
	At        time.Time
}

type RevertValidatedResult struct {
	RevertedCount int         `json:"reverted_count"`
	WouldRevert   int         `json:"would_revert"`
	DryRun        bool        `json:"dry_run"`
	CandidateIDs  []uuid.UUID `json:"candidate_ids,omitempty"`
}

type MergeByIDInput struct {
	ProjectID      string
	SourceIDs      []uuid.UUID
	TargetCodeText string
	Memo           *string
	DryRun         bool
	IdempotencyKey string
	Actor          string
	At             time.Time
}

type MergeItemResult struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Skipped     string    `json:"skipped,omitempty"`
}

type MergeByIDResult struct {
	MergedCount int               `json:"merged_count"`
	DryRun      bool              `json:"dry_run"`
	Replayed    bool              `json:"replayed"`
	Items       []MergeItemResult `json:"items"`
}

type MergePair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type MergeByNameInput struct {
	ProjectID      string
	Pairs          []MergePair
	Memo           *string
	DryRun         bool
	IdempotencyKey string
	Actor          string
	At             time.Time
}

type MergePairResult struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	MergedCount int    `json:"merged_count"`
	Skipped     string `json:"skipped,omitempty"`
}

type MergeByNameResult struct {
	TotalMerged int               `json:"total_merged"`
	PerPair     []MergePairResult `json:"per_pair"`
	DryRun      bool              `json:"dry_run"`
	Replayed    bool              `json:"replayed"`
}

type PromoteCandidatesInput struct {
	ProjectID           string
	CandidateIDs        []uuid.UUID
	PromoteAllValidated bool
	Actor               string
	At                  time.Time
}

type PromoteSkip struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Reason      string    `json:"reason"`
}

// PromoteCandidatesResult counts: ValidatedTotal is the validated, unpromoted part of the selection;
// EligibleTotal is the subset that was promoted. SkippedTotal counts rows held back for missing or
// unresolvable evidence and ExcludedTotal the link_prediction rows, which never promote.
// Skipped lists every excluded id, including ones that were never validated.
type PromoteCandidatesResult struct {
	PromotedCount  int           `json:"promoted_count"`
	ValidatedTotal int           `json:"validated_total"`
	EligibleTotal  int           `json:"eligible_total"`
	SkippedTotal   int           `json:"skipped_total"`
	ExcludedTotal  int           `json:"excluded_total"`
	InsertedCount  int           `json:"inserted_count"`
	Skipped        []PromoteSkip `json:"skipped,omitempty"`
	DefinitiveIDs  []uuid.UUID   `json:"-"`
}
