package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/repos"
	domain "github.com/yungbote/groundwork-backend/internal/domain/jobs"
	"github.com/yungbote/groundwork-backend/internal/platform/ctxutil"
	"github.com/yungbote/groundwork-backend/internal/platform/dbctx"
	"github.com/yungbote/groundwork-backend/internal/services"
)

/*
Context is the execution handle for a single claimed job run.
Pipelines report progress and terminate through it; they never write job_run directly.
Every status write is guarded so a job canceled mid-run keeps its canceled status.
*/
type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *domain.JobRun
	Repo   repos.JobRunRepo
	Notify services.EventNotifier

	payload map[string]any
}

// NewContext decodes the payload eagerly. A malformed payload decodes to an empty map;
// handlers validate the fields they need.
func NewContext(ctx context.Context, db *gorm.DB, job *domain.JobRun, repo repos.JobRunRepo, notify services.EventNotifier) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	c.payload = map[string]any{}
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		return err
	}
	if m != nil {
		c.payload = m
	}
	return nil
}

func (c *Context) applyTraceData() {
	payload := c.Payload()
	traceID := payloadString(payload, "trace_id")
	reqID := payloadString(payload, "request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// DecodePayload unmarshals the raw payload into dst.
func (c *Context) DecodePayload(dst any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return fmt.Errorf("job payload is empty")
	}
	if err := json.Unmarshal(c.Job.Payload, dst); err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}
	return nil
}

func (c *Context) PayloadString(key string) string {
	return payloadString(c.Payload(), key)
}

// PayloadUUIDs reads a list of id strings under key. A missing key yields nil and a bare
// string is read as a list of one.
func (c *Context) PayloadUUIDs(key string) ([]uuid.UUID, error) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return nil, nil
	}
	var raw []any
	switch t := v.(type) {
	case []any:
		raw = t
	case string:
		raw = []any{t}
	default:
		return nil, fmt.Errorf("%s: expected a list of ids, got %T", key, v)
	}
	out := make([]uuid.UUID, 0, len(raw))
	for i, r := range raw {
		s, _ := r.(string)
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil || id == uuid.Nil {
			return nil, fmt.Errorf("%s[%d]: invalid id %v", key, i, r)
		}
		out = append(out, id)
	}
	return out, nil
}

// ProjectID prefers the job row and falls back to the payload.
func (c *Context) ProjectID() string {
	if c.Job != nil && strings.TrimSpace(c.Job.ProjectID) != "" {
		return strings.TrimSpace(c.Job.ProjectID)
	}
	return c.PayloadString("project_id")
}

func (c *Context) Progress(stage string, pct int) {
	if c == nil {
		return
	}
	now := time.Now()
	if !c.write(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.notify()
}

// Fail records a failed attempt. The row stays claimable until attempts run out.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if !c.write(map[string]interface{}{
		"status":        domain.StatusFailed,
		"stage":         stage,
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = domain.StatusFailed
		c.Job.Stage = stage
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}
	c.notify()
}

func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}
	if !c.write(map[string]interface{}{
		"status":       domain.StatusSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = domain.StatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	c.notify()
}

// write returns false when the row was canceled underneath us.
func (c *Context) write(updates map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: context.WithoutCancel(c.Ctx)}, c.Job.ID, []string{domain.StatusCanceled}, updates)
	return err == nil && ok
}

func (c *Context) notify() {
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobUpdated(c.Ctx, c.Job)
	}
}

func payloadString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
