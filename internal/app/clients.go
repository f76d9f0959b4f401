package app

import (
	"context"
	"fmt"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/groundwork-backend/internal/clients/redis"
	"github.com/yungbote/groundwork-backend/internal/platform/embeddings"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
	"github.com/yungbote/groundwork-backend/internal/platform/neo4jdb"
	"github.com/yungbote/groundwork-backend/internal/temporalx"
)

// Clients holds the optional external collaborators. Any of them may be nil; the engine then
// reports the matching degraded flag instead of failing.
type Clients struct {
	Neo4j      *neo4jdb.Client
	EventBus   redis.EventBus
	Embeddings embeddings.Client
	Temporal   temporalsdkclient.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	nc, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init neo4j: %w", err)
	}
	if nc == nil {
		log.Warn("NEO4J_URI not set; graph projection disabled")
	}
	c.Neo4j = nc

	bus, err := redis.NewEventBus(log, redis.ConfigFromEnv())
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init redis event bus: %w", err)
	}
	c.EventBus = bus

	emb, err := embeddings.New(log, embeddings.ConfigFromEnv())
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init embeddings client: %w", err)
	}
	c.Embeddings = emb

	tc, err := temporalx.NewClient(log)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init temporal client: %w", err)
	}
	c.Temporal = tc

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.EventBus != nil {
		_ = c.EventBus.Close()
	}
	if c.Neo4j != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.Neo4j.Close(ctx)
		cancel()
	}
}
