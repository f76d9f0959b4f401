package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

func TestExecuteWriteReportsStatusAndCounters(t *testing.T) {
	cases := []struct {
		name      string
		body      error
		status    string
		conflicts int
		retries   int
	}{
		{"success", nil, "success", 0, 0},
		{"invariant", InvariantError("merged row needs merged_into"), string(domainagg.CodeInvariantViolation), 0, 0},
		{"conflict", ConflictError("candidate changed concurrently"), string(domainagg.CodeConflict), 1, 0},
		{"retryable", RetryableError("lock timeout"), string(domainagg.CodeRetryable), 0, 1},
		{"deadline", context.DeadlineExceeded, string(domainagg.CodeRetryable), 0, 1},
		{"unknown", errors.New("boom"), string(domainagg.CodeInternal), 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hooks := &spyHooks{}
			op := "Coding.Test." + tc.name
			err := executeWrite(context.Background(), BaseDeps{Runner: spyTxRunner, Hooks: hooks}, op, func(dbctx.Context) error {
				return tc.body
			})
			if (tc.body == nil) != (err == nil) {
				t.Fatalf("err=%v body=%v", err, tc.body)
			}
			if len(hooks.Operations) != 1 || hooks.Operations[0].Name != op || hooks.Operations[0].Status != tc.status {
				t.Fatalf("operations: %+v", hooks.Operations)
			}
			if len(hooks.Conflicts) != tc.conflicts || len(hooks.Retries) != tc.retries {
				t.Fatalf("conflicts=%v retries=%v", hooks.Conflicts, hooks.Retries)
			}
		})
	}
}

func TestExecuteWriteDefaultsOperationName(t *testing.T) {
	hooks := &spyHooks{}
	_ = executeWrite(context.Background(), BaseDeps{Runner: spyTxRunner, Hooks: hooks}, "  ", func(dbctx.Context) error { return nil })
	if len(hooks.Operations) != 1 || hooks.Operations[0].Name != "aggregate.write" {
		t.Fatalf("operations: %+v", hooks.Operations)
	}
}

func TestGormTxRunnerRejectsNilDB(t *testing.T) {
	err := NewGormTxRunner(nil).InTx(context.Background(), func(dbctx.Context) error { return nil })
	if !domainagg.IsCode(err, domainagg.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

var spyTxRunner = TxRunnerFunc(func(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return fn(dbctx.Context{Ctx: ctx})
})

type spyHooks struct {
	Operations []spyOperation
	Conflicts  []string
	Retries    []string
}

type spyOperation struct {
	Name   string
	Status string
}

func (h *spyHooks) ObserveOperation(name, status string, _ time.Duration) {
	h.Operations = append(h.Operations, spyOperation{Name: name, Status: status})
}

func (h *spyHooks) IncConflict(name string) { h.Conflicts = append(h.Conflicts, name) }

func (h *spyHooks) IncRetry(name string) { h.Retries = append(h.Retries, name) }
