package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/domain/coding"
)

// FragmentKey builds a fragment id that passes the evidence length check.
func FragmentKey(n int) string {
	return fmt.Sprintf("frag-%06d", n)
}

func SeedFragment(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID, fragmentID string) *coding.Fragment {
	tb.Helper()
	f := &coding.Fragment{
		ProjectID:  projectID,
		FragmentID: fragmentID,
		SourceFile: "interview_01.txt",
		Text:       "texto del fragmento " + fragmentID,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed fragment: %v", err)
	}
	return f
}

type CandidateOpt func(*coding.CandidateCode)

func WithFragment(id string) CandidateOpt {
	return func(c *coding.CandidateCode) { c.FragmentID = &id }
}

func WithState(s coding.State) CandidateOpt {
	return func(c *coding.CandidateCode) { c.State = s }
}

func WithOrigin(o coding.Origin) CandidateOpt {
	return func(c *coding.CandidateCode) { c.Origin = o }
}

func WithCreatedAt(t time.Time) CandidateOpt {
	return func(c *coding.CandidateCode) { c.CreatedAt = t; c.UpdatedAt = t }
}

func WithPromotedAt(t time.Time) CandidateOpt {
	return func(c *coding.CandidateCode) { c.PromotedAt = &t; c.PromotedBy = "seed" }
}

func SeedCandidate(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID, codeText string, opts ...CandidateOpt) *coding.CandidateCode {
	tb.Helper()
	c := &coding.CandidateCode{
		ProjectID:      projectID,
		CodeText:       codeText,
		NormalizedText: coding.NormalizeCodeText(codeText),
		Origin:         coding.OriginManual,
		State:          coding.StatePending,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed candidate: %v", err)
	}
	return c
}

func SeedDefinitive(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID, fragmentID, codeText string, synced bool) *coding.DefinitiveCode {
	tb.Helper()
	d := &coding.DefinitiveCode{
		ProjectID:  projectID,
		FragmentID: fragmentID,
		CodeText:   codeText,
		Synced:     synced,
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed definitive code: %v", err)
	}
	return d
}
