package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/repos"
	domain "github.com/yungbote/groundwork-backend/internal/domain/jobs"
	"github.com/yungbote/groundwork-backend/internal/jobs/runtime"
	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/platform/envutil"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
	"github.com/yungbote/groundwork-backend/internal/services"
)

const (
	MaxAttempts  = 5
	RetryDelay   = 30 * time.Second
	StaleRunning = 30 * time.Minute

	// ActivityPoll labels runs started by the polling loop.
	ActivityPoll = "job_worker_poll"
)

// Worker polls job_run for runnable rows. It is the fallback executor when Temporal is not configured.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   services.EventNotifier
	metrics  *observability.Metrics

	pollInterval time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify services.EventNotifier, metrics *observability.Metrics) *Worker {
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "JobWorker"),
		repo:         repo,
		registry:     registry,
		notify:       notify,
		metrics:      metrics,
		pollInterval: envutil.Seconds("WORKER_POLL_INTERVAL_SECONDS", time.Second),
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting job worker pool", "concurrency", concurrency, "job_types", w.registry.Types())

	for i := 0; i < concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	interval := w.pollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			if _, err := w.ProcessNext(ctx); err != nil {
				w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
			}
		}
	}
}

// ProcessNext claims and runs at most one job. It reports whether a job was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, MaxAttempts, RetryDelay, StaleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.Run(ctx, job)
	return true, nil
}

// Run executes an already-claimed job through its registered handler.
func (w *Worker) Run(ctx context.Context, job *domain.JobRun) string {
	return w.RunActivity(ctx, job, ActivityPoll)
}

// RunActivity is Run with the activity label used for the duration series.
// It returns the job status left behind by the handler.
func (w *Worker) RunActivity(ctx context.Context, job *domain.JobRun, activity string) string {
	start := time.Now()
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	if w.notify != nil {
		w.notify.JobUpdated(jc.Ctx, job)
	}
	w.execute(jc, job)
	w.metrics.ObserveActivity(activity, job.JobType, job.Status, time.Since(start))
	return job.Status
}

func (w *Worker) execute(jc *runtime.Context, job *domain.JobRun) {
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
			jc.Fail("panic", &panicError{Val: r})
		}
	}()

	if runErr := h.Run(jc); runErr != nil {
		jc.Fail("run", runErr)
	}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string { return "no handler registered for job_type=" + e.JobType }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
