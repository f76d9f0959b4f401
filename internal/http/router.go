package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/groundwork-backend/internal/http/handlers"
	httpMW "github.com/yungbote/groundwork-backend/internal/http/middleware"
	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics
	// Tracing adds the otelgin middleware; off when OTel is not initialized.
	Tracing bool

	CodingHandler *httpH.CodingHandler
	JobHandler    *httpH.JobHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		r.Use(otelgin.Middleware("groundwork-api"))
	}
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.CORS())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")

	// Job
	if cfg.JobHandler != nil {
		api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		api.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
	}

	// Coding
	if h := cfg.CodingHandler; h != nil {
		coding := api.Group("/projects/:" + httpMW.ParamProjectID + "/coding")
		coding.POST("/candidates", h.SubmitCandidates)
		coding.GET("/candidates", h.ListCandidates)
		coding.GET("/candidates/stats", h.CandidateStats)
		coding.POST("/candidates/check", h.CheckBatch)
		coding.GET("/candidates/:id", h.GetCandidate)
		coding.POST("/candidates/revert-validated", h.RevertValidated)
		coding.POST("/candidates/:id/validate", h.ValidateCandidate)
		coding.POST("/candidates/:id/reject", h.RejectCandidate)
		coding.POST("/candidates/:id/hypothesis", h.MarkHypothesis)
		coding.POST("/merge", h.MergeCandidates)
		coding.POST("/auto-merge", h.AutoMerge)
		coding.GET("/duplicates", h.DetectDuplicates)
		coding.POST("/promote", h.Promote)
		coding.POST("/graph/sync", h.SyncGraph)
		coding.GET("/graph/audit", h.Audit)
		coding.GET("/backlog/health", h.BacklogHealth)
		coding.GET("/codes/history", h.CodeHistory)
	}

	return r
}
