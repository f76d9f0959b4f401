package testutil

import (
	"context"
	"sync/atomic"

	"github.com/yungbote/groundwork-backend/internal/data/aggregates"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

// Runner stands in for a database transaction. BeginErr fails before the body runs and
// CommitErr fails after a successful body; either counts as a rollback. The body gets a
// dbctx.Context without a Tx, so repos fall back to their own handle.
type Runner struct {
	BeginErr  error
	CommitErr error

	began      atomic.Int32
	committed  atomic.Int32
	rolledBack atomic.Int32
}

var _ aggregates.TxRunner = (*Runner)(nil)

func (r *Runner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.began.Add(1)
	if r.BeginErr != nil {
		return r.BeginErr
	}
	if fn != nil {
		if err := fn(dbctx.Context{Ctx: ctx}); err != nil {
			r.rolledBack.Add(1)
			return err
		}
	}
	if r.CommitErr != nil {
		r.rolledBack.Add(1)
		return r.CommitErr
	}
	r.committed.Add(1)
	return nil
}

func (r *Runner) Began() int      { return int(r.began.Load()) }
func (r *Runner) Committed() int  { return int(r.committed.Load()) }
func (r *Runner) RolledBack() int { return int(r.rolledBack.Load()) }
