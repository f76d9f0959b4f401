package app

import (
	"gorm.io/gorm"

	httpx "github.com/yungbote/groundwork-backend/internal/http"
	httpH "github.com/yungbote/groundwork-backend/internal/http/handlers"
	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type Handlers struct {
	Coding *httpH.CodingHandler
	Job    *httpH.JobHandler
	Health *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, svc Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Coding: httpH.NewCodingHandler(log, svc.Coding),
		Job:    httpH.NewJobHandler(svc.Jobs),
		Health: httpH.NewHealthHandler(db),
	}
}

func wireServer(log *logger.Logger, h Handlers, metrics *observability.Metrics, tracing bool) *httpx.Server {
	log.Info("Wiring router...")
	return httpx.NewServer(httpx.RouterConfig{
		Log:           log,
		Metrics:       metrics,
		Tracing:       tracing,
		CodingHandler: h.Coding,
		JobHandler:    h.Job,
		HealthHandler: h.Health,
	})
}
