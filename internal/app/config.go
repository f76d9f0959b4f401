package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/groundwork-backend/internal/modules/coding"
	"github.com/yungbote/groundwork-backend/internal/platform/envutil"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type RunMode string

const (
	RunModeAPI    RunMode = "api"
	RunModeWorker RunMode = "worker"
	RunModeAll    RunMode = "all"
)

func (m RunMode) ServesHTTP() bool  { return m == RunModeAPI || m == RunModeAll }
func (m RunMode) RunsWorkers() bool { return m == RunModeWorker || m == RunModeAll }

type Config struct {
	LogMode     string
	Environment string
	Version     string
	RunMode     RunMode
	HTTPAddr    string
	MetricsAddr string
	// AutoMigrate runs gorm AutoMigrate plus the raw index DDL at startup.
	AutoMigrate bool

	Coding         coding.Config
	IdempotencyTTL time.Duration
}

func LoadConfig(log *logger.Logger) (Config, error) {
	mode := RunMode(strings.ToLower(envutil.String("RUN_MODE", string(RunModeAll))))
	switch mode {
	case RunModeAPI, RunModeWorker, RunModeAll:
	default:
		return Config{}, fmt.Errorf("invalid RUN_MODE=%q; expected api, worker or all", mode)
	}
	cfg := Config{
		LogMode:        envutil.String("LOG_MODE", "development"),
		Environment:    envutil.String("APP_ENV", "development"),
		Version:        envutil.String("APP_VERSION", "dev"),
		RunMode:        mode,
		HTTPAddr:       envutil.String("HTTP_ADDR", ":8080"),
		MetricsAddr:    envutil.String("METRICS_ADDR", ""),
		AutoMigrate:    envutil.Bool("DB_AUTO_MIGRATE", true),
		Coding:         coding.ConfigFromEnv(),
		IdempotencyTTL: time.Duration(envutil.Int("CODING_IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
	}
	if log != nil {
		log.Info("Loaded configuration",
			"run_mode", cfg.RunMode,
			"http_addr", cfg.HTTPAddr,
			"similarity_threshold", cfg.Coding.SimilarityThreshold,
			"graph_batch_size", cfg.Coding.GraphBatchSize,
			"graph_timeout", cfg.Coding.GraphTimeout.String(),
			"promote_async_threshold", cfg.Coding.PromoteAsyncThreshold,
			"idempotency_ttl", cfg.IdempotencyTTL.String(),
		)
	}
	return cfg, nil
}
