package aggregates

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/groundwork-backend/internal/data/repos"
	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	"github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

// ErrIdempotencyKeyReused marks a keyed merge whose payload differs from the first application.
var ErrIdempotencyKeyReused = errors.New("idempotency key reused with a different payload")

const defaultIdempotencyTTL = 24 * time.Hour

type CandidateAggregateDeps struct {
	Base BaseDeps

	Candidates  repos.CandidateCodeRepo
	Versions    repos.CodeVersionRepo
	Definitive  repos.DefinitiveCodeRepo
	Fragments   repos.FragmentRepo
	Idempotency repos.IdempotencyRecordRepo

	Machine        *coding.LifecycleMachine
	IdempotencyTTL time.Duration
}

type candidateAggregate struct {
	deps CandidateAggregateDeps
}

func NewCandidateAggregate(deps CandidateAggregateDeps) domainagg.CandidateAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.Machine == nil {
		deps.Machine = coding.NewLifecycleMachine()
	}
	if deps.IdempotencyTTL <= 0 {
		deps.IdempotencyTTL = defaultIdempotencyTTL
	}
	return &candidateAggregate{deps: deps}
}

func (a *candidateAggregate) Contract() domainagg.Contract {
	return domainagg.CandidateAggregateContract
}

func (a *candidateAggregate) configured(op string) error {
	d := a.deps
	if d.Candidates == nil || d.Versions == nil || d.Definitive == nil || d.Fragments == nil || d.Idempotency == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "candidate aggregate repos not configured", nil)
	}
	return nil
}

func stamp(at time.Time) time.Time {
	if at.IsZero() {
		return time.Now().UTC()
	}
	return at.UTC()
}

func requireProject(op, projectID string) error {
	if strings.TrimSpace(projectID) == "" {
		return domainagg.NewError(domainagg.CodeValidation, op, "missing project_id", nil)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Submit
// ---------------------------------------------------------------------------

type preparedDraft struct {
	index int
	row   *coding.CandidateCode
}

func (a *candidateAggregate) Submit(ctx context.Context, in domainagg.SubmitCandidatesInput) (domainagg.SubmitCandidatesResult, error) {
	const op = "Coding.Candidate.Submit"
	out := domainagg.SubmitCandidatesResult{Items: make([]domainagg.SubmitItemResult, len(in.Items))}
	if err := requireProject(op, in.ProjectID); err != nil {
		return out, err
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	if len(in.Items) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "no candidates supplied", nil)
	}
	at := stamp(in.At)

	prepared := make([]preparedDraft, 0, len(in.Items))
	for i, item := range in.Items {
		out.Items[i].Index = i
		row, reason, detail := prepareDraft(in.ProjectID, item, at)
		if reason != "" {
			out.Items[i].Skipped = reason
			out.Items[i].Detail = detail
			continue
		}
		prepared = append(prepared, preparedDraft{index: i, row: row})
	}

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		fragIDs := make([]string, 0, len(prepared))
		for _, p := range prepared {
			if p.row.FragmentID != nil {
				fragIDs = append(fragIDs, *p.row.FragmentID)
			}
		}
		existing, err := a.deps.Fragments.ExistingIDs(dbc, in.ProjectID, fragIDs)
		if err != nil {
			return err
		}

		rows := make([]*coding.CandidateCode, 0, len(prepared))
		kept := make([]preparedDraft, 0, len(prepared))
		codes := make([]string, 0, len(prepared))
		for _, p := range prepared {
			if p.row.FragmentID != nil && !existing[*p.row.FragmentID] {
				out.Items[p.index].Skipped = domainagg.SkipFragmentNotFound
				out.Items[p.index].Detail = *p.row.FragmentID
				continue
			}
			rows = append(rows, p.row)
			kept = append(kept, p)
			codes = append(codes, p.row.CodeText)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := a.deps.Versions.LockCodes(dbc, in.ProjectID, codes); err != nil {
			return err
		}
		if _, err := a.deps.Candidates.Create(dbc, rows); err != nil {
			return err
		}
		for _, p := range kept {
			id := p.row.ID
			if err := a.deps.Versions.Append(dbc, &coding.CodeVersion{
				ProjectID:   in.ProjectID,
				CodeText:    p.row.CodeText,
				CandidateID: &id,
				MemoAfter:   p.row.Memo,
				Action:      coding.ActionCreate,
				ChangedBy:   in.Actor,
				CreatedAt:   at,
			}); err != nil {
				return err
			}
			out.Items[p.index].CandidateID = id
			out.InsertedCount++
		}
		return nil
	})
	if err != nil {
		return domainagg.SubmitCandidatesResult{}, err
	}
	return out, nil
}

func prepareDraft(projectID string, d domainagg.CandidateDraft, at time.Time) (*coding.CandidateCode, string, string) {
	text := coding.CleanCodeText(d.CodeText)
	norm := coding.NormalizeCodeText(d.CodeText)
	if text == "" || norm == "" {
		return nil, domainagg.SkipEmptyCodeText, ""
	}
	origin := coding.Origin(strings.ToLower(strings.TrimSpace(d.Origin)))
	if !origin.Valid() {
		return nil, domainagg.SkipInvalidOrigin, d.Origin
	}
	if d.Confidence != nil && (*d.Confidence < 0 || *d.Confidence > 1) {
		return nil, domainagg.SkipInvalidConfidence, fmt.Sprintf("%v", *d.Confidence)
	}
	var fragmentID *string
	if d.FragmentID != nil {
		if f := strings.TrimSpace(*d.FragmentID); f != "" {
			if !coding.ValidFragmentID(&f) {
				return nil, domainagg.SkipInvalidFragmentID, f
			}
			fragmentID = &f
		}
	}
	md, err := coding.EncodeMetadata(origin, d.Metadata)
	if err != nil {
		return nil, domainagg.SkipInvalidMetadata, err.Error()
	}
	return &coding.CandidateCode{
		ProjectID:       projectID,
		CodeText:        text,
		NormalizedText:  norm,
		Quote:           strings.TrimSpace(d.Quote),
		FragmentID:      fragmentID,
		SourceFile:      strings.TrimSpace(d.SourceFile),
		Origin:          origin,
		OriginDetail:    strings.TrimSpace(d.OriginDetail),
		ConfidenceScore: d.Confidence,
		State:           coding.StatePending,
		Memo:            strings.TrimSpace(d.Memo),
		Metadata:        md,
		CreatedAt:       at,
		UpdatedAt:       at,
	}, "", ""
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (a *candidateAggregate) Transition(ctx context.Context, in domainagg.TransitionCandidateInput) (domainagg.TransitionCandidateResult, error) {
	const op = "Coding.Candidate.Transition"
	var out domainagg.TransitionCandidateResult
	if err := requireProject(op, in.ProjectID); err != nil {
		return out, err
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	if in.CandidateID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing candidate_id", nil)
	}
	to := coding.State(strings.ToLower(strings.TrimSpace(in.ToState)))
	if !to.Valid() || to == coding.StateMerged {
		return out, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("unsupported target state %q", in.ToState), nil)
	}
	if to == coding.StateValidated && strings.TrimSpace(in.Actor) == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "validation requires an actor", nil)
	}
	at := stamp(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rows, err := a.deps.Candidates.ListByIDs(dbc, in.ProjectID, []uuid.UUID{in.CandidateID}, true)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("candidate not found: %s", in.CandidateID), nil)
		}
		row := rows[0]
		if row.State == to {
			out = domainagg.TransitionCandidateResult{CandidateID: row.ID, State: string(row.State)}
			return nil
		}
		if err := a.deps.Machine.ValidateCandidateTransition(row, to); err != nil {
			return errors.Join(ErrConflict, err)
		}
		action, _ := a.deps.Machine.ActionFor(row.State, to)

		v, err := a.applyTransition(dbc, row, to, action, in.Actor, in.Memo, at, nil)
		if err != nil {
			return err
		}
		out = domainagg.TransitionCandidateResult{CandidateID: row.ID, State: string(to), Changed: true, Version: v}
		return nil
	})
	if err != nil {
		return domainagg.TransitionCandidateResult{}, err
	}
	return out, nil
}

// applyTransition CAS-updates row from its current state and appends the audit version.
func (a *candidateAggregate) applyTransition(dbc dbctx.Context, row *coding.CandidateCode, to coding.State, action coding.Action, actor string, memo *string, at time.Time, extra map[string]interface{}) (int, error) {
	updates := map[string]interface{}{
		"state":      to,
		"updated_at": at,
	}
	switch to {
	case coding.StateValidated:
		updates["validated_by"] = actor
		updates["validated_at"] = at
	case coding.StatePending:
		if row.State == coding.StateValidated {
			updates["validated_by"] = ""
			updates["validated_at"] = nil
		}
	}
	memoAfter := row.Memo
	if memo != nil {
		memoAfter = strings.TrimSpace(*memo)
		updates["memo"] = memoAfter
	}
	for k, v := range extra {
		updates[k] = v
	}

	if err := a.deps.Versions.LockCodes(dbc, row.ProjectID, []string{row.CodeText}); err != nil {
		return 0, err
	}
	ok, err := a.deps.Candidates.UpdateIfState(dbc, row.ProjectID, row.ID, []coding.State{row.State}, updates)
	if err != nil {
		return 0, err
	}
	if err := RequireCASSuccess(ok, fmt.Sprintf("candidate %s changed concurrently", row.ID)); err != nil {
		return 0, err
	}
	id := row.ID
	v := &coding.CodeVersion{
		ProjectID:   row.ProjectID,
		CodeText:    row.CodeText,
		CandidateID: &id,
		MemoBefore:  row.Memo,
		MemoAfter:   memoAfter,
		Action:      action,
		ChangedBy:   actor,
		CreatedAt:   at,
	}
	if err := a.deps.Versions.Append(dbc, v); err != nil {
		return 0, err
	}
	row.State = to
	row.Memo = memoAfter
	return v.Version, nil
}

func (a *candidateAggregate) RevertValidated(ctx context.Context, in domainagg.RevertValidatedInput) (domainagg.RevertValidatedResult, error) {
	const op = "Coding.Candidate.RevertValidated"
	out := domainagg.RevertValidatedResult{DryRun: in.DryRun}
	if err := requireProject(op, in.ProjectID); err != nil {
		return out, err
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	at := stamp(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		rows, err := a.deps.Candidates.ListValidatedUnpromoted(dbc, in.ProjectID, nil, !in.DryRun)
		if err != nil {
			return err
		}
		if in.DryRun {
			out.WouldRevert = len(rows)
			for _, r := range rows {
				out.CandidateIDs = append(out.CandidateIDs, r.ID)
			}
			return nil
		}
		codes := make([]string, 0, len(rows))
		for _, r := range rows {
			codes = append(codes, r.CodeText)
		}
		if err := a.deps.Versions.LockCodes(dbc, in.ProjectID, codes); err != nil {
			return err
		}
		for _, r := range rows {
			if _, err := a.applyTransition(dbc, r, coding.StatePending, coding.ActionRevert, in.Actor, in.Memo, at, nil); err != nil {
				return err
			}
			out.RevertedCount++
			out.CandidateIDs = append(out.CandidateIDs, r.ID)
		}
		return nil
	})
	if err != nil {
		return domainagg.RevertValidatedResult{DryRun: in.DryRun}, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Merge
// ---------------------------------------------------------------------------

// mergeSkipReason reports why row cannot be merged into target, or "" when it can.
func (a *candidateAggregate) mergeSkipReason(row *coding.CandidateCode, target string) string {
	switch {
	case row.Promoted():
		return domainagg.SkipAlreadyPromoted
	case row.State == coding.StateMerged:
		return domainagg.SkipAlreadyMerged
	case row.State == coding.StateRejected:
		return domainagg.SkipRejected
	case coding.CleanCodeText(row.CodeText) == target:
		return domainagg.SkipTargetEqualsSource
	}
	if err := a.deps.Machine.ValidateCandidateTransition(row, coding.StateMerged); err != nil {
		return domainagg.SkipAlreadyMerged
	}
	return ""
}

func (a *candidateAggregate) mergeRow(dbc dbctx.Context, row *coding.CandidateCode, target, actor string, memo *string, at time.Time) error {
	_, err := a.applyTransition(dbc, row, coding.StateMerged, coding.ActionMerge, actor, memo, at, map[string]interface{}{
		"merged_into": target,
	})
	return err
}

func (a *candidateAggregate) MergeByID(ctx context.Context, in domainagg.MergeByIDInput) (domainagg.MergeByIDResult, error) {
	const op = "Coding.Candidate.MergeByID"
	out := domainagg.MergeByIDResult{DryRun: in.DryRun}
	if err := requireProject(op, in.ProjectID); err != nil {
		return out, err
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	target := coding.CleanCodeText(in.TargetCodeText)
	if target == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing target_code_text", nil)
	}
	ids := dedupeIDs(in.SourceIDs)
	if len(ids) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "no source candidate ids supplied", nil)
	}
	at := stamp(in.At)
	key := strings.TrimSpace(in.IdempotencyKey)
	hash := requestHash(struct {
		Sources []uuid.UUID `json:"sources"`
		Target  string      `json:"target"`
		Memo    *string     `json:"memo"`
	}{sortedIDs(ids), target, in.Memo})

	run := func(dbc dbctx.Context) error {
		if key != "" && !in.DryRun {
			replayed, err := a.replay(dbc, in.ProjectID, coding.IdempotencyScopeMerge, key, hash, at, &out)
			if err != nil || replayed {
				return err
			}
		}
		rows, err := a.deps.Candidates.ListByIDs(dbc, in.ProjectID, ids, !in.DryRun)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*coding.CandidateCode, len(rows))
		for _, r := range rows {
			byID[r.ID] = r
		}
		out.Items = make([]domainagg.MergeItemResult, 0, len(ids))
		for _, id := range ids {
			item := domainagg.MergeItemResult{CandidateID: id}
			row := byID[id]
			if row == nil {
				item.Skipped = domainagg.SkipNotFound
			} else if reason := a.mergeSkipReason(row, target); reason != "" {
				item.Skipped = reason
			} else {
				if !in.DryRun {
					if err := a.mergeRow(dbc, row, target, in.Actor, in.Memo, at); err != nil {
						return err
					}
				}
				out.MergedCount++
			}
			out.Items = append(out.Items, item)
		}
		if key != "" && !in.DryRun {
			return a.remember(dbc, in.ProjectID, coding.IdempotencyScopeMerge, key, hash, at, out)
		}
		return nil
	}

	err := executeWrite(ctx, a.deps.Base, op, run)
	if err != nil && key != "" && !in.DryRun && domainagg.IsCode(err, domainagg.CodeConflict) && !errors.Is(err, ErrIdempotencyKeyReused) {
		// A concurrent request with the same key committed first.
		var replay domainagg.MergeByIDResult
		if ok, rErr := a.replayAfterRace(ctx, in.ProjectID, coding.IdempotencyScopeMerge, key, hash, at, &replay); rErr == nil && ok {
			return replay, nil
		}
	}
	if err != nil {
		return domainagg.MergeByIDResult{DryRun: in.DryRun}, err
	}
	return out, nil
}

func (a *candidateAggregate) MergeByName(ctx context.Context, in domainagg.MergeByNameInput) (domainagg.MergeByNameResult, error) {
	const op = "Coding.Candidate.MergeByName"
	out := domainagg.MergeByNameResult{DryRun: in.DryRun}
	if err := requireProject(op, in.ProjectID); err != nil {
		return out, err
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	if len(in.Pairs) == 0 {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "no merge pairs supplied", nil)
	}
	at := stamp(in.At)
	key := strings.TrimSpace(in.IdempotencyKey)
	pairs := make([]domainagg.MergePair, len(in.Pairs))
	for i, p := range in.Pairs {
		pairs[i] = domainagg.MergePair{Source: coding.CleanCodeText(p.Source), Target: coding.CleanCodeText(p.Target)}
	}
	hash := requestHash(struct {
		Pairs []domainagg.MergePair `json:"pairs"`
		Memo  *string               `json:"memo"`
	}{pairs, in.Memo})

	run := func(dbc dbctx.Context) error {
		if key != "" && !in.DryRun {
			replayed, err := a.replay(dbc, in.ProjectID, coding.IdempotencyScopeAutoMerge, key, hash, at, &out)
			if err != nil || replayed {
				return err
			}
		}
		counted := map[uuid.UUID]bool{}
		out.PerPair = make([]domainagg.MergePairResult, 0, len(pairs))
		for i, p := range pairs {
			res := domainagg.MergePairResult{Source: in.Pairs[i].Source, Target: in.Pairs[i].Target}
			switch {
			case p.Source == "" || p.Target == "":
				res.Skipped = domainagg.SkipEmptyCodeText
			case p.Source == p.Target:
				res.Skipped = domainagg.SkipTargetEqualsSource
			default:
				rows, err := a.deps.Candidates.ListMergeable(dbc, in.ProjectID, coding.NormalizeCodeText(p.Source), !in.DryRun)
				if err != nil {
					return err
				}
				for _, row := range rows {
					if counted[row.ID] || a.mergeSkipReason(row, p.Target) != "" {
						continue
					}
					if !in.DryRun {
						if err := a.mergeRow(dbc, row, p.Target, in.Actor, in.Memo, at); err != nil {
							return err
						}
					}
					counted[row.ID] = true
					res.MergedCount++
				}
				if res.MergedCount == 0 {
					res.Skipped = domainagg.SkipNoMatchingCandidates
				}
			}
			out.TotalMerged += res.MergedCount
			out.PerPair = append(out.PerPair, res)
		}
		if key != "" && !in.DryRun {
			return a.remember(dbc, in.ProjectID, coding.IdempotencyScopeAutoMerge, key, hash, at, out)
		}
		return nil
	}

	err := executeWrite(ctx, a.deps.Base, op, run)
	if err != nil && key != "" && !in.DryRun && domainagg.IsCode(err, domainagg.CodeConflict) && !errors.Is(err, ErrIdempotencyKeyReused) {
		var replay domainagg.MergeByNameResult
		if ok, rErr := a.replayAfterRace(ctx, in.ProjectID, coding.IdempotencyScopeAutoMerge, key, hash, at, &replay); rErr == nil && ok {
			return replay, nil
		}
	}
	if err != nil {
		return domainagg.MergeByNameResult{DryRun: in.DryRun}, err
	}
	return out, nil
}

// replay loads a live record for key into dst and flags it replayed. A live record with a different
// request hash is ErrIdempotencyKeyReused.
func (a *candidateAggregate) replay(dbc dbctx.Context, projectID, scope, key, hash string, now time.Time, dst any) (bool, error) {
	rec, err := a.deps.Idempotency.Get(dbc, projectID, scope, key)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.Expired(now) {
		return false, nil
	}
	if rec.RequestHash != hash {
		return false, errors.Join(ErrConflict, ErrIdempotencyKeyReused)
	}
	if err := json.Unmarshal(rec.Result, dst); err != nil {
		return false, fmt.Errorf("decode idempotency result: %w", err)
	}
	switch v := dst.(type) {
	case *domainagg.MergeByIDResult:
		v.Replayed = true
	case *domainagg.MergeByNameResult:
		v.Replayed = true
	}
	return true, nil
}

func (a *candidateAggregate) replayAfterRace(ctx context.Context, projectID, scope, key, hash string, now time.Time, dst any) (bool, error) {
	return a.replay(dbctx.Context{Ctx: ctx}, projectID, scope, key, hash, now, dst)
}

func (a *candidateAggregate) remember(dbc dbctx.Context, projectID, scope, key, hash string, now time.Time, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return a.deps.Idempotency.Put(dbc, &coding.IdempotencyRecord{
		ProjectID:   projectID,
		Scope:       scope,
		Key:         key,
		RequestHash: hash,
		Result:      datatypes.JSON(raw),
		ExpiresAt:   now.Add(a.deps.IdempotencyTTL),
		CreatedAt:   now,
	}, now)
}

// ---------------------------------------------------------------------------
// Promote
// ---------------------------------------------------------------------------

func (a *candidateAggregate) Promote(ctx context.Context, in domainagg.PromoteCandidatesInput) (domainagg.PromoteCandidatesResult, error) {
	const op = "Coding.Candidate.Promote"
	var out domainagg.PromoteCandidatesResult
	if err := requireProject(op, in.ProjectID); err != nil {
		return out, err
	}
	if err := a.configured(op); err != nil {
		return out, err
	}
	ids := dedupeIDs(in.CandidateIDs)
	if len(ids) == 0 && !in.PromoteAllValidated {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "supply candidate ids or promote_all_validated", nil)
	}
	at := stamp(in.At)

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		var selection []*coding.CandidateCode
		if in.PromoteAllValidated {
			rows, err := a.deps.Candidates.ListValidatedUnpromoted(dbc, in.ProjectID, nil, true)
			if err != nil {
				return err
			}
			selection = rows
		} else {
			rows, err := a.deps.Candidates.ListByIDs(dbc, in.ProjectID, ids, true)
			if err != nil {
				return err
			}
			byID := make(map[uuid.UUID]*coding.CandidateCode, len(rows))
			for _, r := range rows {
				byID[r.ID] = r
			}
			for _, id := range ids {
				row := byID[id]
				switch {
				case row == nil:
					out.Skipped = append(out.Skipped, domainagg.PromoteSkip{CandidateID: id, Reason: domainagg.SkipNotFound})
				case row.Promoted():
					out.Skipped = append(out.Skipped, domainagg.PromoteSkip{CandidateID: id, Reason: domainagg.SkipAlreadyPromoted})
				case row.State != coding.StateValidated:
					out.Skipped = append(out.Skipped, domainagg.PromoteSkip{CandidateID: id, Reason: domainagg.SkipNotValidated})
				default:
					selection = append(selection, row)
				}
			}
		}
		out.ValidatedTotal = len(selection)

		fragIDs := make([]string, 0, len(selection))
		for _, r := range selection {
			if r.HasEvidence() {
				fragIDs = append(fragIDs, *r.FragmentID)
			}
		}
		existing, err := a.deps.Fragments.ExistingIDs(dbc, in.ProjectID, fragIDs)
		if err != nil {
			return err
		}

		eligible := make([]*coding.CandidateCode, 0, len(selection))
		codes := make([]string, 0, len(selection))
		for _, r := range selection {
			if reason := promoteSkipReason(r, existing); reason != "" {
				out.Skipped = append(out.Skipped, domainagg.PromoteSkip{CandidateID: r.ID, Reason: reason})
				if reason == domainagg.SkipLinkPredictionExclude {
					out.ExcludedTotal++
				} else {
					out.SkippedTotal++
				}
				continue
			}
			eligible = append(eligible, r)
			codes = append(codes, r.CodeText)
		}
		if err := a.deps.Versions.LockCodes(dbc, in.ProjectID, codes); err != nil {
			return err
		}

		defs := make([]*coding.DefinitiveCode, 0, len(eligible))
		for _, r := range eligible {
			ok, err := a.deps.Candidates.MarkPromoted(dbc, in.ProjectID, r.ID, in.Actor, at)
			if err != nil {
				return err
			}
			if !ok {
				out.Skipped = append(out.Skipped, domainagg.PromoteSkip{CandidateID: r.ID, Reason: domainagg.SkipAlreadyPromoted})
				continue
			}
			out.EligibleTotal++
			out.PromotedCount++
			id := r.ID
			if err := a.deps.Versions.Append(dbc, &coding.CodeVersion{
				ProjectID:   in.ProjectID,
				CodeText:    r.CodeText,
				CandidateID: &id,
				MemoBefore:  r.Memo,
				MemoAfter:   r.Memo,
				Action:      coding.ActionPromote,
				ChangedBy:   in.Actor,
				CreatedAt:   at,
			}); err != nil {
				return err
			}
			defs = append(defs, &coding.DefinitiveCode{
				ProjectID:   in.ProjectID,
				FragmentID:  *r.FragmentID,
				CodeText:    coding.CleanCodeText(r.CodeText),
				Quote:       r.Quote,
				SourceFile:  r.SourceFile,
				CandidateID: &id,
				CreatedAt:   at,
				UpdatedAt:   at,
			})
		}

		inserted, err := a.deps.Definitive.InsertIgnoreConflicts(dbc, defs)
		if err != nil {
			return err
		}
		out.InsertedCount = len(inserted)
		for _, d := range inserted {
			out.DefinitiveIDs = append(out.DefinitiveIDs, d.ID)
		}
		return nil
	})
	if err != nil {
		return domainagg.PromoteCandidatesResult{}, err
	}
	return out, nil
}

func promoteSkipReason(r *coding.CandidateCode, existingFragments map[string]bool) string {
	switch {
	case !r.Origin.Promotable():
		return domainagg.SkipLinkPredictionExclude
	case r.FragmentID == nil || strings.TrimSpace(*r.FragmentID) == "":
		return domainagg.SkipMissingEvidence
	case !r.HasEvidence():
		return domainagg.SkipInvalidFragmentID
	case !existingFragments[*r.FragmentID]:
		return domainagg.SkipFragmentNotFound
	}
	return ""
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func requestHash(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
