package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/groundwork-backend/internal/data/aggregates"
	"github.com/yungbote/groundwork-backend/internal/data/graph"
	"github.com/yungbote/groundwork-backend/internal/data/repos"
	"github.com/yungbote/groundwork-backend/internal/jobs/pipeline/coding_promote"
	"github.com/yungbote/groundwork-backend/internal/jobs/pipeline/coherence_audit"
	"github.com/yungbote/groundwork-backend/internal/jobs/pipeline/graph_sync"
	"github.com/yungbote/groundwork-backend/internal/jobs/runtime"
	jobworker "github.com/yungbote/groundwork-backend/internal/jobs/worker"
	"github.com/yungbote/groundwork-backend/internal/modules/coding"
	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
	"github.com/yungbote/groundwork-backend/internal/services"
	"github.com/yungbote/groundwork-backend/internal/temporalx"
	"github.com/yungbote/groundwork-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Events services.EventNotifier
	Jobs   services.JobService
	Coding coding.Usecases
	Graph  graph.CodeGraph

	JobRegistry    *runtime.Registry
	JobWorker      *jobworker.Worker
	TemporalWorker *temporalworker.Runner
}

func wireServices(ctx context.Context, db *gorm.DB, log *logger.Logger, cfg Config, set repos.Set, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	var out Services

	out.Events = services.NewEventNotifier(log, clients.EventBus, metrics)
	out.Jobs = services.NewJobService(db, log, set.JobRuns, out.Events, clients.Temporal, temporalx.LoadConfig().TaskQueue)

	if clients.Neo4j != nil {
		g := graph.NewNeo4jCodeGraph(clients.Neo4j, log)
		if err := g.EnsureSchema(ctx); err != nil {
			// Graph outages are tolerated at runtime; promotions defer and the sync job catches up.
			log.Warn("Neo4j code graph schema ensure failed", "error", err)
		}
		out.Graph = g
	}

	idx, err := resolveSimilarityIndex(log, clients.Embeddings)
	if err != nil {
		return Services{}, err
	}

	out.Coding = coding.New(coding.UsecasesDeps{
		DB:  db,
		Log: log,
		Candidates: aggregates.NewCandidateAggregate(aggregates.CandidateAggregateDeps{
			Base: aggregates.BaseDeps{
				DB:    db,
				Log:   log,
				Hooks: aggregates.NewObservabilityHooks(metrics),
			},
			Candidates:  set.Candidates,
			Versions:    set.Versions,
			Definitive:  set.Definitive,
			Fragments:   set.Fragments,
			Idempotency: set.Idempotency,

			IdempotencyTTL: cfg.IdempotencyTTL,
		}),
		Repos:      set,
		Graph:      out.Graph,
		Similarity: idx,
		Jobs:       out.Jobs,
		Events:     out.Events,
		Metrics:    metrics,
		Config:     cfg.Coding,
	})

	reg, err := runtime.NewRegistry(
		coding_promote.New(log, out.Coding),
		graph_sync.New(log, out.Coding),
		coherence_audit.New(log, out.Coding),
	)
	if err != nil {
		return Services{}, fmt.Errorf("register job handlers: %w", err)
	}
	out.JobRegistry = reg
	out.JobWorker = jobworker.NewWorker(db, log, set.JobRuns, reg, out.Events, metrics)

	if clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(log, clients.Temporal, set.JobRuns, out.JobWorker)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.TemporalWorker = runner
	}

	log.Info("Services wired", "job_types", reg.Types(), "graph", out.Graph != nil, "similarity", idx != nil, "temporal", out.TemporalWorker != nil)
	return out, nil
}
