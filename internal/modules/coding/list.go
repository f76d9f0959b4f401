package coding

import (
	"context"
	"strings"

	"github.com/yungbote/groundwork-backend/internal/data/repos"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type ListCandidatesInput struct {
	ProjectID  string
	State      string
	Origin     string
	SourceFile string
	Promoted   *bool
	Limit      int
	Offset     int
	SortOrder  string
}

type ListCandidatesOutput struct {
	Candidates []*domain.CandidateCode `json:"candidates"`
	Count      int64                   `json:"count"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
}

func (u Usecases) ListCandidates(ctx context.Context, in ListCandidatesInput) (ListCandidatesOutput, error) {
	if err := requireProject(in.ProjectID); err != nil {
		return ListCandidatesOutput{}, err
	}
	f := repos.CandidateFilter{
		ProjectID:  strings.TrimSpace(in.ProjectID),
		SourceFile: strings.TrimSpace(in.SourceFile),
		Promoted:   in.Promoted,
		Limit:      clampLimit(in.Limit),
		Offset:     in.Offset,
		Desc:       true,
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if s := strings.ToLower(strings.TrimSpace(in.State)); s != "" {
		f.State = domain.State(s)
		if !f.State.Valid() {
			return ListCandidatesOutput{}, apierr.BadRequest("invalid_state", "unknown state %q", in.State)
		}
	}
	if o := strings.ToLower(strings.TrimSpace(in.Origin)); o != "" {
		f.Origin = domain.Origin(o)
		if !f.Origin.Valid() {
			return ListCandidatesOutput{}, apierr.BadRequest("invalid_origin", "unknown origin %q", in.Origin)
		}
	}
	switch strings.ToLower(strings.TrimSpace(in.SortOrder)) {
	case "", "desc":
	case "asc":
		f.Desc = false
	default:
		return ListCandidatesOutput{}, apierr.BadRequest("invalid_sort_order", "sort_order must be asc or desc")
	}

	rows, total, err := u.deps.Repos.Candidates.List(dbctx.Context{Ctx: ctx}, f)
	if err != nil {
		return ListCandidatesOutput{}, internal("list_failed", err)
	}
	if rows == nil {
		rows = []*domain.CandidateCode{}
	}
	return ListCandidatesOutput{Candidates: rows, Count: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}

// Buckets counts candidates per lifecycle bucket. Promoted rows count only under Promoted.
type Buckets struct {
	Pending    int64 `json:"pending"`
	Hypothesis int64 `json:"hypothesis"`
	Validated  int64 `json:"validated"`
	Promoted   int64 `json:"promoted"`
	Rejected   int64 `json:"rejected"`
	Merged     int64 `json:"merged"`
	Total      int64 `json:"total"`
}

func (b *Buckets) add(row repos.CandidateBucketRow) {
	b.Total += row.Count
	if row.Promoted > 0 {
		b.Promoted += row.Count
		return
	}
	switch domain.State(row.State) {
	case domain.StatePending:
		b.Pending += row.Count
	case domain.StateHypothesis:
		b.Hypothesis += row.Count
	case domain.StateValidated:
		b.Validated += row.Count
	case domain.StateRejected:
		b.Rejected += row.Count
	case domain.StateMerged:
		b.Merged += row.Count
	}
}

type CandidateStatsOutput struct {
	ProjectID    string             `json:"project_id"`
	Totals       Buckets            `json:"totals"`
	ByOrigin     map[string]Buckets `json:"by_origin"`
	BySourceFile map[string]Buckets `json:"by_source_file"`
}

// UnspecifiedSourceFile keys candidates submitted without a source file.
const UnspecifiedSourceFile = "(unspecified)"

func (u Usecases) CandidateStats(ctx context.Context, projectID string) (CandidateStatsOutput, error) {
	if err := requireProject(projectID); err != nil {
		return CandidateStatsOutput{}, err
	}
	rows, err := u.deps.Repos.Candidates.BucketCounts(dbctx.Context{Ctx: ctx}, projectID)
	if err != nil {
		return CandidateStatsOutput{}, internal("stats_failed", err)
	}
	out := CandidateStatsOutput{
		ProjectID:    projectID,
		ByOrigin:     map[string]Buckets{},
		BySourceFile: map[string]Buckets{},
	}
	for _, row := range rows {
		out.Totals.add(row)

		o := out.ByOrigin[row.Origin]
		o.add(row)
		out.ByOrigin[row.Origin] = o

		key := row.SourceFile
		if key == "" {
			key = UnspecifiedSourceFile
		}
		sf := out.BySourceFile[key]
		sf.add(row)
		out.BySourceFile[key] = sf
	}
	return out, nil
}

type CodeHistoryOutput struct {
	ProjectID string                `json:"project_id"`
	CodeText  string                `json:"code_text"`
	Versions  []*domain.CodeVersion `json:"versions"`
}

// CodeHistory returns the audit trail of one code text, oldest first.
func (u Usecases) CodeHistory(ctx context.Context, projectID, codeText string) (CodeHistoryOutput, error) {
	if err := requireProject(projectID); err != nil {
		return CodeHistoryOutput{}, err
	}
	text := domain.CleanCodeText(codeText)
	if text == "" {
		return CodeHistoryOutput{}, apierr.BadRequest("missing_code_text", "code_text is required")
	}
	versions, err := u.deps.Repos.Versions.History(dbctx.Context{Ctx: ctx}, projectID, text)
	if err != nil {
		return CodeHistoryOutput{}, internal("history_failed", err)
	}
	if versions == nil {
		versions = []*domain.CodeVersion{}
	}
	return CodeHistoryOutput{ProjectID: projectID, CodeText: text, Versions: versions}, nil
}
