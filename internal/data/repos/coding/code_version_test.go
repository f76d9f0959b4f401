package coding

import (
	"context"
	"testing"

	"github.com/yungbote/groundwork-backend/internal/data/repos/testutil"
	domain "github.com/yungbote/groundwork-backend/internal/domain/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

func TestCodeVersionRepoAppendIsMonotonicPerCode(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewCodeVersionRepo(db, testutil.Logger(t))
	projectID := testutil.ProjectID(t)

	for i := 0; i < 3; i++ {
		if err := repo.Append(dbc, &domain.CodeVersion{ProjectID: projectID, CodeText: "Liderazgo", Action: domain.ActionCreate}); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}
	other := &domain.CodeVersion{ProjectID: projectID, CodeText: "Poder local", Action: domain.ActionCreate}
	if err := repo.Append(dbc, other); err != nil {
		t.Fatalf("Append other: %v", err)
	}
	if other.Version != 1 {
		t.Fatalf("independent code should start at 1, got %d", other.Version)
	}

	hist, err := repo.History(dbc, projectID, "Liderazgo")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("History: expected 3 got %d", len(hist))
	}
	for i, v := range hist {
		if v.Version != i+1 {
			t.Fatalf("History[%d].Version = %d", i, v.Version)
		}
	}
}

func TestCodeVersionRepoRequiresTx(t *testing.T) {
	db := testutil.DB(t)
	repo := NewCodeVersionRepo(db, testutil.Logger(t))
	err := repo.Append(dbctx.Context{Ctx: context.Background()}, &domain.CodeVersion{ProjectID: "p", CodeText: "x", Action: domain.ActionCreate})
	if err == nil {
		t.Fatalf("expected error outside a transaction")
	}
}
