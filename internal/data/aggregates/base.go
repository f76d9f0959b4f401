package aggregates

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

// BaseDeps is shared by every aggregate in this package. Runner defaults to a gorm transaction
// on DB; Hooks defaults to a no-op.
type BaseDeps struct {
	DB     *gorm.DB
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	return d
}

// executeWrite runs fn in one transaction, maps its error to an aggregate code and reports the
// outcome to the hooks under op.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	deps = deps.withDefaults()
	if op = strings.TrimSpace(op); op == "" {
		op = "aggregate.write"
	}

	start := time.Now()
	err := MapError(op, deps.Runner.InTx(ctx, fn))
	code := domainagg.CodeOf(err)

	switch code {
	case "":
	case domainagg.CodeValidation, domainagg.CodeNotFound:
	default:
		if deps.Log != nil {
			deps.Log.Warn("ledger write failed", "op", op, "code", code, "error", err)
		}
	}
	switch code {
	case domainagg.CodeConflict:
		deps.Hooks.IncConflict(op)
	case domainagg.CodeRetryable:
		deps.Hooks.IncRetry(op)
	}

	status := "success"
	if err != nil {
		status = string(code)
	}
	deps.Hooks.ObserveOperation(op, status, time.Since(start))
	return err
}
