package coding

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/groundwork-backend/internal/platform/apierr"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
)

// Backlog alert codes.
const (
	AlertPendingCount = "pending_count_exceeded"
	AlertPendingAge   = "pending_age_exceeded"
)

type BacklogHealthInput struct {
	ProjectID string
	MaxDays   int
	MaxCount  int
}

type BacklogAlert struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BacklogHealthOutput struct {
	IsHealthy          bool           `json:"is_healthy"`
	PendingCount       int            `json:"pending_count"`
	OldestPendingDays  float64        `json:"oldest_pending_days"`
	AvgPendingAgeHours float64        `json:"avg_pending_age_hours"`
	MaxDays            int            `json:"max_days"`
	MaxCount           int            `json:"max_count"`
	Alerts             []BacklogAlert `json:"alerts"`
}

// BacklogHealth reports how many candidates wait in pending and for how long.
func (u Usecases) BacklogHealth(ctx context.Context, in BacklogHealthInput) (BacklogHealthOutput, error) {
	if err := requireProject(in.ProjectID); err != nil {
		return BacklogHealthOutput{}, err
	}
	if in.MaxDays < 0 || in.MaxCount < 0 {
		return BacklogHealthOutput{}, apierr.BadRequest("invalid_threshold", "max_days and max_count must not be negative")
	}
	out := BacklogHealthOutput{
		MaxDays:  in.MaxDays,
		MaxCount: in.MaxCount,
		Alerts:   []BacklogAlert{},
	}
	if out.MaxDays == 0 {
		out.MaxDays = u.deps.Config.BacklogMaxDays
	}
	if out.MaxCount == 0 {
		out.MaxCount = u.deps.Config.BacklogMaxCount
	}

	created, err := u.deps.Repos.Candidates.PendingCreatedAt(dbctx.Context{Ctx: ctx}, in.ProjectID)
	if err != nil {
		return BacklogHealthOutput{}, internal("backlog_failed", err)
	}
	now := u.deps.Now()
	out.PendingCount = len(created)
	if len(created) > 0 {
		var total time.Duration
		oldest := now.Sub(created[0])
		for _, c := range created {
			age := now.Sub(c)
			if age < 0 {
				age = 0
			}
			if age > oldest {
				oldest = age
			}
			total += age
		}
		if oldest < 0 {
			oldest = 0
		}
		out.OldestPendingDays = round2(oldest.Hours() / 24)
		out.AvgPendingAgeHours = round2(total.Hours() / float64(len(created)))
	}

	if out.PendingCount > out.MaxCount {
		out.Alerts = append(out.Alerts, BacklogAlert{
			Code:    AlertPendingCount,
			Message: fmt.Sprintf("%d candidates pending review, limit is %d", out.PendingCount, out.MaxCount),
		})
	}
	if out.OldestPendingDays > float64(out.MaxDays) {
		out.Alerts = append(out.Alerts, BacklogAlert{
			Code:    AlertPendingAge,
			Message: fmt.Sprintf("oldest pending candidate is %.1f days old, limit is %d", out.OldestPendingDays, out.MaxDays),
		})
	}
	out.IsHealthy = len(out.Alerts) == 0

	u.deps.Metrics.SetBacklog("pending_count", float64(out.PendingCount))
	u.deps.Metrics.SetBacklog("oldest_pending_days", out.OldestPendingDays)
	return out, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

type PurgeIdempotencyOutput struct {
	Deleted int64 `json:"deleted"`
}

// PurgeIdempotency deletes expired idempotency records. An empty projectID sweeps every project.
func (u Usecases) PurgeIdempotency(ctx context.Context, projectID string) (PurgeIdempotencyOutput, error) {
	n, err := u.deps.Repos.Idempotency.DeleteExpired(dbctx.Context{Ctx: ctx}, projectID, u.deps.Now())
	if err != nil {
		return PurgeIdempotencyOutput{}, internal("idempotency_gc_failed", err)
	}
	if n > 0 {
		u.deps.Log.Info("expired idempotency records deleted", "project_id", projectID, "deleted", n)
	}
	return PurgeIdempotencyOutput{Deleted: n}, nil
}
