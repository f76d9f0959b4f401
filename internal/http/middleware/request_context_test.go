package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/groundwork-backend/internal/platform/ctxutil"
)

func TestAttachRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var rd *ctxutil.RequestData
	var td *ctxutil.TraceData
	r := gin.New()
	r.Use(AttachRequestContext())
	r.GET("/api/projects/:project_id/coding/candidates", func(c *gin.Context) {
		rd = ctxutil.GetRequestData(c.Request.Context())
		td = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/projects/proj-7/coding/candidates", nil)
	req.Header.Set(HeaderActorID, " reviewer-1 ")
	req.Header.Set(HeaderTraceID, "trace-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if rd == nil || rd.ProjectID != "proj-7" || rd.Actor != "reviewer-1" {
		t.Fatalf("request data: %+v", rd)
	}
	if td == nil || td.TraceID != "trace-abc" || td.RequestID == "" {
		t.Fatalf("trace data: %+v", td)
	}
	if got := w.Header().Get(HeaderRequestID); got != td.RequestID {
		t.Fatalf("request id header: got=%q want=%q", got, td.RequestID)
	}
	if got := w.Header().Get(HeaderTraceID); got != "trace-abc" {
		t.Fatalf("trace id header: got=%q", got)
	}
}

func TestAttachRequestContextGeneratesIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AttachRequestContext())
	r.GET("/healthcheck", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))

	if w.Header().Get(HeaderTraceID) == "" || w.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("expected generated ids, headers=%v", w.Header())
	}
}
