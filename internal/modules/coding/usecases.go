package coding

import (
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/graph"
	"github.com/yungbote/groundwork-backend/internal/data/repos"
	"github.com/yungbote/groundwork-backend/internal/data/similarity"
	domainagg "github.com/yungbote/groundwork-backend/internal/domain/aggregates"
	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/envutil"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
	"github.com/yungbote/groundwork-backend/internal/services"
)

// Job types owned by the coding engine.
const (
	JobTypePromote        = "coding_promote"
	JobTypeGraphSync      = "graph_sync"
	JobTypeCoherenceAudit = "coherence_audit"

	jobEntityProject = "project"
)

type Config struct {
	SimilarityThreshold   float64
	SimilarityTopK        int
	DuplicateThreshold    float64
	GraphBatchSize        int
	GraphTimeout          time.Duration
	GraphEnsureFragments  bool
	BacklogMaxDays        int
	BacklogMaxCount       int
	PromoteAsyncThreshold int
}

func ConfigFromEnv() Config {
	return Config{
		SimilarityThreshold:   envutil.Float("CODING_SIMILARITY_THRESHOLD", 0.85),
		SimilarityTopK:        envutil.Int("CODING_SIMILARITY_TOP_K", 10),
		DuplicateThreshold:    envutil.Float("CODING_DUPLICATE_THRESHOLD", 0.8),
		GraphBatchSize:        envutil.Int("CODING_GRAPH_BATCH_SIZE", 500),
		GraphTimeout:          envutil.Seconds("CODING_GRAPH_TIMEOUT_SECONDS", 15*time.Second),
		GraphEnsureFragments:  envutil.Bool("CODING_GRAPH_ENSURE_FRAGMENTS", false),
		BacklogMaxDays:        envutil.Int("CODING_BACKLOG_MAX_DAYS", 7),
		BacklogMaxCount:       envutil.Int("CODING_BACKLOG_MAX_COUNT", 200),
		PromoteAsyncThreshold: envutil.Int("CODING_PROMOTE_ASYNC_THRESHOLD", 500),
	}
}

func (c Config) withDefaults() Config {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = 0.85
	}
	if c.SimilarityTopK <= 0 {
		c.SimilarityTopK = 10
	}
	if c.DuplicateThreshold <= 0 || c.DuplicateThreshold > 1 {
		c.DuplicateThreshold = 0.8
	}
	if c.GraphBatchSize <= 0 {
		c.GraphBatchSize = 500
	}
	if c.GraphTimeout <= 0 {
		c.GraphTimeout = 15 * time.Second
	}
	if c.BacklogMaxDays <= 0 {
		c.BacklogMaxDays = 7
	}
	if c.BacklogMaxCount <= 0 {
		c.BacklogMaxCount = 200
	}
	return c
}

type UsecasesDeps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Candidates domainagg.CandidateAggregate
	Repos      repos.Set
	Graph      graph.CodeGraph
	Similarity similarity.Index
	Jobs       services.JobService
	Events     services.EventNotifier
	Metrics    *observability.Metrics
	Config     Config
	Now        func() time.Time
}

type Usecases struct {
	deps UsecasesDeps
}

// New wires the engine. Graph, Similarity, Jobs and Events are optional; without them the
// engine reports the matching degraded flags.
func New(deps UsecasesDeps) Usecases {
	deps.Config = deps.Config.withDefaults()
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	deps.Log = deps.Log.With("usecases", "Coding")
	if deps.Events == nil {
		deps.Events = services.NewEventNotifier(deps.Log, nil, deps.Metrics)
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return Usecases{deps: deps}
}

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

func (u Usecases) Config() Config { return u.deps.Config }
