package app

import (
	"context"
	"time"

	"github.com/yungbote/groundwork-backend/internal/observability"
	"github.com/yungbote/groundwork-backend/internal/platform/qdrant"
)

type instrumentedVectorStore struct {
	inner   qdrant.VectorStore
	metrics *observability.Metrics
}

func instrumentVectorStore(inner qdrant.VectorStore) qdrant.VectorStore {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{inner: inner, metrics: observability.Current()}
}

func (s *instrumentedVectorStore) Search(ctx context.Context, namespace string, vector []float32, topK int, filter qdrant.Filter) ([]qdrant.Match, error) {
	start := time.Now()
	out, err := s.inner.Search(ctx, namespace, vector, topK, filter)
	s.observe("search", err, time.Since(start))
	return out, err
}

func (s *instrumentedVectorStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.observe("ping", err, time.Since(start))
	return err
}

func (s *instrumentedVectorStore) observe(operation string, err error, dur time.Duration) {
	if s == nil || s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		if qdrant.Unavailable(err) {
			status = "unavailable"
		}
	}
	s.metrics.ObserveVectorStoreOperation(operation, status, dur)
}
