package temporalworker

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/groundwork-backend/internal/data/repos"
	jobworker "github.com/yungbote/groundwork-backend/internal/jobs/worker"
	"github.com/yungbote/groundwork-backend/internal/platform/envutil"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
	"github.com/yungbote/groundwork-backend/internal/temporalx"
	"github.com/yungbote/groundwork-backend/internal/temporalx/jobrun"
)

// Runner hosts the job_run workflow and its tick activity on the configured task queue.
type Runner struct {
	log      *logger.Logger
	tc       temporalsdkclient.Client
	jobRepo  repos.JobRunRepo
	executor *jobworker.Worker
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, jobRepo repos.JobRunRepo, executor *jobworker.Worker) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if jobRepo == nil || executor == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		log:      log.With("component", "TemporalWorker"),
		tc:       tc,
		jobRepo:  jobRepo,
		executor: executor,
	}, nil
}

// Start builds and starts a worker, retrying per TEMPORAL_WORKER_START_*. The worker stops
// when ctx ends.
func (r *Runner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := temporalx.LoadConfig()
	r.log.Info("starting temporal worker", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	if cfg.AutoRegisterNamespace {
		if err := temporalx.EnsureNamespace(ctx, r.tc, cfg.Namespace, r.log); err != nil {
			r.log.Warn("temporal namespace ensure failed; retrying on start", "namespace", cfg.Namespace, "error", err)
		}
	}

	return cfg.WorkerStart.Retry(ctx, func(ctx context.Context, attempt int) (bool, error) {
		w := r.newWorker(cfg)
		err := w.Start()
		if err == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("temporal worker started", "task_queue", cfg.TaskQueue, "attempts", attempt)
			return false, nil
		}
		w.Stop()

		var notFound *serviceerror.NamespaceNotFound
		if errors.As(err, &notFound) {
			if cfg.AutoRegisterNamespace {
				_ = temporalx.EnsureNamespace(ctx, r.tc, cfg.Namespace, r.log)
			}
			err = fmt.Errorf("temporal namespace %s not found: %w", cfg.Namespace, err)
		}
		r.log.Warn("temporal worker start failed", "task_queue", cfg.TaskQueue, "attempt", attempt, "error", err)
		return true, err
	})
}

func (r *Runner) newWorker(cfg temporalx.Config) worker.Worker {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})

	acts := &jobrun.Activities{
		Log:      r.log,
		Jobs:     r.jobRepo,
		Executor: r.executor,
	}
	w.RegisterWorkflowWithOptions(jobrun.Workflow, workflow.RegisterOptions{Name: jobrun.WorkflowName})
	w.RegisterActivityWithOptions(acts.Tick, activity.RegisterOptions{Name: jobrun.ActivityTick})
	return w
}
