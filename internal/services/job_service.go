package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/repos"
	domain "github.com/yungbote/groundwork-backend/internal/domain/jobs"
	"github.com/yungbote/groundwork-backend/internal/platform/ctxutil"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

// JobWorkflowName is registered by temporalx/jobrun; kept literal to avoid an import cycle.
const JobWorkflowName = "job_run"

var ErrJobNotFound = errors.New("job not found")

type JobService interface {
	Enqueue(dbc dbctx.Context, projectID, jobType, entityType, entityID string, payload map[string]any) (*domain.JobRun, error)
	// EnqueueUnlessRunnable skips enqueueing when a queued or running job of the same type exists for the entity.
	EnqueueUnlessRunnable(dbc dbctx.Context, projectID, jobType, entityType, entityID string, payload map[string]any) (*domain.JobRun, bool, error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	Get(dbc dbctx.Context, jobID uuid.UUID) (*domain.JobRun, error)
	Cancel(dbc dbctx.Context, jobID uuid.UUID) (*domain.JobRun, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify EventNotifier

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
}

// NewJobService takes an optional Temporal client. Without one, queued rows are picked up by the poll worker.
func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	notify EventNotifier,
	tc temporalsdkclient.Client,
	taskQueue string,
) JobService {
	return &jobService{
		db:                db,
		log:               baseLog.With("service", "JobService"),
		repo:              repo,
		notify:            notify,
		temporal:          tc,
		temporalTaskQueue: strings.TrimSpace(taskQueue),
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, projectID, jobType, entityType, entityID string, payload map[string]any) (*domain.JobRun, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("missing project_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if _, ok := payload["project_id"]; !ok {
		payload["project_id"] = projectID
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	now := time.Now().UTC()
	job := &domain.JobRun{
		ID:         uuid.New(),
		ProjectID:  projectID,
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     domain.StatusQueued,
		Stage:      "queued",
		Payload:    datatypes.JSON(b),
		Result:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, []*domain.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify.JobUpdated(dbc.Ctx, job)
	}

	// Inside a real transaction the workflow must not start before commit; callers Dispatch afterwards.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

func (s *jobService) EnqueueUnlessRunnable(dbc dbctx.Context, projectID, jobType, entityType, entityID string, payload map[string]any) (*domain.JobRun, bool, error) {
	exists, err := s.repo.HasRunnableForEntity(dbctx.Context{Ctx: dbc.Ctx, Tx: dbc.Tx}, projectID, entityType, entityID, jobType)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, nil
	}
	job, err := s.Enqueue(dbc, projectID, jobType, entityType, entityID, payload)
	if err != nil {
		return job, false, err
	}
	return job, true, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

// gorm.DB pointers are cloned freely, so the conn pool type is the only reliable transaction signal.
func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

// Dispatch starts the Temporal workflow for a job. It is a no-op without Temporal.
func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if s == nil || s.temporal == nil {
		return nil
	}
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	err := s.startTemporalJobWorkflow(ctx, jobID, enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE)
	if err == nil {
		return nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}

	now := time.Now().UTC()
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx}, jobID, map[string]interface{}{
		"status":        domain.StatusFailed,
		"stage":         "dispatch",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
	if s.notify != nil {
		if j, rerr := s.repo.GetByID(dbctx.Context{Ctx: ctx}, jobID); rerr == nil && j != nil {
			s.notify.JobUpdated(ctx, j)
		}
	}
	return fmt.Errorf("start temporal workflow: %w", err)
}

func (s *jobService) Get(dbc dbctx.Context, jobID uuid.UUID) (*domain.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("missing job id")
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (s *jobService) Cancel(dbc dbctx.Context, jobID uuid.UUID) (*domain.JobRun, error) {
	job, err := s.Get(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job.Terminal() || job.Status == domain.StatusFailed {
		return job, nil
	}
	now := time.Now().UTC()
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID,
		[]string{domain.StatusSucceeded, domain.StatusFailed, domain.StatusCanceled},
		map[string]interface{}{
			"status":       domain.StatusCanceled,
			"stage":        "canceled",
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.Get(dbc, jobID)
	}
	job.Status = domain.StatusCanceled
	job.Stage = "canceled"
	job.LockedAt = nil
	job.HeartbeatAt = &now
	job.UpdatedAt = now
	if s.notify != nil {
		s.notify.JobUpdated(dbc.Ctx, job)
	}
	if s.temporal != nil {
		_ = s.temporal.CancelWorkflow(dbc.Ctx, jobID.String(), "")
	}
	return job, nil
}

func (s *jobService) startTemporalJobWorkflow(ctx context.Context, jobID uuid.UUID, reusePolicy enums.WorkflowIdReusePolicy) error {
	tq := s.temporalTaskQueue
	if tq == "" {
		tq = "groundwork"
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             tq,
		WorkflowIDReusePolicy: reusePolicy,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, JobWorkflowName, jobID.String())
	return err
}
