package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/groundwork-backend/internal/platform/ctxutil"
)

const (
	HeaderActorID        = "X-Actor-Id"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderTraceID        = "X-Trace-Id"
	HeaderRequestID      = "X-Request-Id"

	ParamProjectID = "project_id"
)

// AttachRequestContext stores two things on the request context: correlation ids (trace and
// request) and the coding scope (project from the route, actor asserted by the upstream gateway).
// Job payloads copy the correlation ids so background work logs under the same trace.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		td := &ctxutil.TraceData{
			TraceID:   traceIDFor(c),
			RequestID: strings.TrimSpace(c.GetHeader(HeaderRequestID)),
		}
		if td.RequestID == "" {
			td.RequestID = uuid.NewString()
		}
		ctx = ctxutil.WithTraceData(ctx, td)

		ctx = ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
			ProjectID: strings.TrimSpace(c.Param(ParamProjectID)),
			Actor:     strings.TrimSpace(c.GetHeader(HeaderActorID)),
		})

		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(HeaderTraceID, td.TraceID)
		c.Writer.Header().Set(HeaderRequestID, td.RequestID)
		c.Next()
	}
}

// traceIDFor prefers the active span (otelgin runs first when tracing is on), then the caller's
// header, then a fresh id.
func traceIDFor(c *gin.Context) string {
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if h := strings.TrimSpace(c.GetHeader(HeaderTraceID)); h != "" {
		return h
	}
	return uuid.NewString()
}
