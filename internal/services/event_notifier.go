package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/groundwork-backend/internal/clients/redis"
	domain "github.com/yungbote/groundwork-backend/internal/domain/jobs"
	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

const (
	EventCandidatePromoted = "candidate.promoted"
	EventGraphDeferred     = "graph.deferred"
	EventGraphSynced       = "graph.synced"
	EventAuditDiscrepancy  = "audit.discrepancy"
	EventJobUpdated        = "job.updated"
)

// EventNotifier publishes coding events. Delivery is best-effort and never fails the caller.
type EventNotifier interface {
	CandidatesPromoted(ctx context.Context, projectID string, promoted int, definitiveIDs []uuid.UUID)
	GraphDeferred(ctx context.Context, projectID string, pending int, reason string)
	GraphSynced(ctx context.Context, projectID string, codes, relations int, missingFragments []string)
	AuditDiscrepancy(ctx context.Context, projectID string, kinds []string, counts map[string]any)
	JobUpdated(ctx context.Context, job *domain.JobRun)
}

type eventNotifier struct {
	log     *logger.Logger
	bus     redis.EventBus
	metrics *observability.Metrics
}

// NewEventNotifier accepts a nil bus; events are then only logged.
func NewEventNotifier(baseLog *logger.Logger, bus redis.EventBus, metrics *observability.Metrics) EventNotifier {
	return &eventNotifier{log: baseLog.With("service", "EventNotifier"), bus: bus, metrics: metrics}
}

func (n *eventNotifier) CandidatesPromoted(ctx context.Context, projectID string, promoted int, definitiveIDs []uuid.UUID) {
	n.publish(ctx, EventCandidatePromoted, projectID, map[string]any{
		"promoted_count": promoted,
		"definitive_ids": definitiveIDs,
	})
}

func (n *eventNotifier) GraphDeferred(ctx context.Context, projectID string, pending int, reason string) {
	n.publish(ctx, EventGraphDeferred, projectID, map[string]any{
		"pending": pending,
		"reason":  reason,
	})
}

func (n *eventNotifier) GraphSynced(ctx context.Context, projectID string, codes, relations int, missingFragments []string) {
	n.publish(ctx, EventGraphSynced, projectID, map[string]any{
		"synced_codes":      codes,
		"synced_relations":  relations,
		"missing_fragments": missingFragments,
	})
}

func (n *eventNotifier) AuditDiscrepancy(ctx context.Context, projectID string, kinds []string, counts map[string]any) {
	n.publish(ctx, EventAuditDiscrepancy, projectID, map[string]any{
		"kinds":  kinds,
		"counts": counts,
	})
}

func (n *eventNotifier) JobUpdated(ctx context.Context, job *domain.JobRun) {
	if job == nil {
		return
	}
	n.publish(ctx, EventJobUpdated, job.ProjectID, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"status":   job.Status,
		"stage":    job.Stage,
		"progress": job.Progress,
		"error":    job.Error,
	})
}

func (n *eventNotifier) publish(ctx context.Context, eventType, projectID string, data map[string]any) {
	if n == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if n.bus == nil {
		n.log.Debug("event", "type", eventType, "project_id", projectID)
		n.metrics.IncEventPublished(eventType, "logged")
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	err := n.bus.Publish(pubCtx, redis.Event{Type: eventType, ProjectID: projectID, At: time.Now().UTC(), Data: data})
	if err != nil {
		n.log.Warn("event publish failed", "type", eventType, "project_id", projectID, "error", err)
		n.metrics.IncEventPublished(eventType, "failed")
		return
	}
	n.metrics.IncEventPublished(eventType, "published")
}
