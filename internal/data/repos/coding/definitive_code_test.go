package coding

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

func TestDefinitiveCodeRepoInsertIgnoresDuplicates(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewDefinitiveCodeRepo(db, testutil.Logger(t))
	projectID := testutil.ProjectID(t)
	frag := testutil.FragmentKey(1)

	first, err := repo.InsertIgnoreConflicts(dbc, []*domain.DefinitiveCode{
		{ProjectID: projectID, FragmentID: frag, CodeText: "Liderazgo"},
		{ProjectID: projectID, FragmentID: frag, CodeText: "Poder local"},
	})
	if err != nil {
		t.Fatalf("InsertIgnoreConflicts: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 inserted, got %d", len(first))
	}

	second, err := repo.InsertIgnoreConflicts(dbc, []*domain.DefinitiveCode{
		{ProjectID: projectID, FragmentID: frag, CodeText: "Liderazgo"},
	})
	if err != nil {
		t.Fatalf("InsertIgnoreConflicts duplicate: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("duplicate assignment must not insert, got %d", len(second))
	}

	total, synced, err := repo.Counts(dbc, projectID)
	if err != nil || total != 2 || synced != 0 {
		t.Fatalf("Counts: total=%d synced=%d err=%v", total, synced, err)
	}

	if err := repo.MarkSynced(dbc, projectID, []uuid.UUID{first[0].ID}, time.Now().UTC()); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	unsynced, err := repo.ListForSync(dbc, projectID, true)
	if err != nil || len(unsynced) != 1 || unsynced[0].ID != first[1].ID {
		t.Fatalf("ListForSync: len=%d err=%v", len(unsynced), err)
	}

	if err := repo.MarkSyncError(dbc, projectID, []uuid.UUID{first[0].ID}, "graph unreachable"); err != nil {
		t.Fatalf("MarkSyncError: %v", err)
	}
	_, synced, _ = repo.Counts(dbc, projectID)
	if synced != 0 {
		t.Fatalf("MarkSyncError should clear synced, got %d", synced)
	}

	codes, err := repo.DistinctCodes(dbc, projectID)
	if err != nil || len(codes) != 2 || codes[0] != "Liderazgo" {
		t.Fatalf("DistinctCodes: %v err=%v", codes, err)
	}
}

func TestFragmentRepoExistingIDs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewFragmentRepo(db, testutil.Logger(t))
	projectID := testutil.ProjectID(t)

	testutil.SeedFragment(t, ctx, tx, projectID, testutil.FragmentKey(1))
	testutil.SeedFragment(t, ctx, tx, "another-project", testutil.FragmentKey(2))

	got, err := repo.ExistingIDs(dbctx.Context{Ctx: ctx, Tx: tx}, projectID, []string{testutil.FragmentKey(1), testutil.FragmentKey(2)})
	if err != nil {
		t.Fatalf("ExistingIDs: %v", err)
	}
	if !got[testutil.FragmentKey(1)] || got[testutil.FragmentKey(2)] {
		t.Fatalf("ExistingIDs must be project scoped: %v", got)
	}
	n, err := repo.Count(dbctx.Context{Ctx: ctx, Tx: tx}, projectID)
	if err != nil || n != 1 {
		t.Fatalf("Count: n=%d err=%v", n, err)
	}
}

func TestIdempotencyRecordRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewIdempotencyRecordRepo(db, testutil.Logger(t))
	projectID := testutil.ProjectID(t)
	now := time.Now().UTC()

	rec := &domain.IdempotencyRecord{
		ProjectID:   projectID,
		Scope:       domain.IdempotencyScopeMerge,
		Key:         "k-1",
		RequestHash: "abc",
		Result:      []byte(`{"merged_count":2}`),
		ExpiresAt:   now.Add(-time.Minute),
	}
	if err := repo.Put(dbc, rec, now); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := repo.Get(dbc, projectID, domain.IdempotencyScopeMerge, "k-1")
	if err != nil || got == nil || got.RequestHash != "abc" {
		t.Fatalf("Get: %v err=%v", got, err)
	}

	replacement := &domain.IdempotencyRecord{
		ProjectID:   projectID,
		Scope:       domain.IdempotencyScopeMerge,
		Key:         "k-1",
		RequestHash: "def",
		Result:      []byte(`{}`),
		ExpiresAt:   now.Add(time.Hour),
	}
	if err := repo.Put(dbc, replacement, now); err != nil {
		t.Fatalf("Put over expired: %v", err)
	}
	got, _ = repo.Get(dbc, projectID, domain.IdempotencyScopeMerge, "k-1")
	if got == nil || got.RequestHash != "def" {
		t.Fatalf("expired record should be replaced, got %v", got)
	}

	if err := repo.Put(dbc, &domain.IdempotencyRecord{
		ProjectID: projectID, Scope: domain.IdempotencyScopeAutoMerge, Key: "old", RequestHash: "x",
		Result: []byte(`{}`), ExpiresAt: now.Add(-time.Hour),
	}, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Put old: %v", err)
	}
	n, err := repo.DeleteExpired(dbc, projectID, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpired: n=%d err=%v", n, err)
	}
}

func TestDefinitiveCodeRepoListByNormalized(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewDefinitiveCodeRepo(db, testutil.Logger(t))
	projectID := testutil.ProjectID(t)

	if _, err := repo.InsertIgnoreConflicts(dbc, []*domain.DefinitiveCode{
		{ProjectID: projectID, FragmentID: testutil.FragmentKey(1), CodeText: "Confianza Comunitaria"},
		{ProjectID: projectID, FragmentID: testutil.FragmentKey(2), CodeText: "Territorio"},
	}); err != nil {
		t.Fatalf("InsertIgnoreConflicts: %v", err)
	}

	rows, err := repo.ListByNormalized(dbc, projectID, []string{domain.NormalizeCodeText("confianza   comunitaria")})
	if err != nil {
		t.Fatalf("ListByNormalized: %v", err)
	}
	if len(rows) != 1 || rows[0].CodeText != "Confianza Comunitaria" {
		t.Fatalf("expected only the Confianza Comunitaria row, got %d rows", len(rows))
	}
	if rows[0].NormalizedText != "confianza comunitaria" {
		t.Fatalf("normalized_text = %q", rows[0].NormalizedText)
	}

	none, err := repo.ListByNormalized(dbc, "other-project", []string{"territorio"})
	if err != nil || len(none) != 0 {
		t.Fatalf("other project must see nothing, len=%d err=%v", len(none), err)
	}
}
