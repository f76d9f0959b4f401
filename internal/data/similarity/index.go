package similarity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/groundwork-backend/internal/platform/embeddings"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
	"github.com/yungbote/groundwork-backend/internal/platform/qdrant"
)

// ErrUnavailable means the similarity index is not configured.
var ErrUnavailable = errors.New("similarity index unavailable")

// PayloadCodeTextKey is the payload field the embedding pipeline stores the code text under.
const PayloadCodeTextKey = "code_text"

type Neighbor struct {
	CodeText   string
	Similarity float64
}

// Index answers nearest-neighbour lookups over a project's code vocabulary.
type Index interface {
	// Nearest returns, per input text, the neighbours scoring at least threshold, best first.
	Nearest(ctx context.Context, projectID string, texts []string, threshold float64, topK int) ([][]Neighbor, error)
}

type VectorIndex struct {
	log      *logger.Logger
	embedder embeddings.Client
	store    qdrant.VectorStore
}

// NewVectorIndex returns nil when either collaborator is missing; callers treat nil as degraded.
func NewVectorIndex(baseLog *logger.Logger, embedder embeddings.Client, store qdrant.VectorStore) *VectorIndex {
	if embedder == nil || store == nil {
		return nil
	}
	return &VectorIndex{log: baseLog.With("service", "SimilarityIndex"), embedder: embedder, store: store}
}

func (x *VectorIndex) Nearest(ctx context.Context, projectID string, texts []string, threshold float64, topK int) ([][]Neighbor, error) {
	if x == nil {
		return nil, ErrUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("similarity: embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("similarity: embed returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	out := make([][]Neighbor, len(texts))
	for i, vec := range vectors {
		matches, err := x.store.Search(ctx, projectID, vec, topK, qdrant.Filter{})
		if err != nil {
			return nil, fmt.Errorf("similarity: search: %w", err)
		}
		for _, m := range matches {
			if m.Score < threshold {
				continue
			}
			text := m.ID
			if v, ok := m.Payload[PayloadCodeTextKey].(string); ok && strings.TrimSpace(v) != "" {
				text = v
			}
			out[i] = append(out[i], Neighbor{CodeText: text, Similarity: m.Score})
		}
	}
	return out, nil
}

var _ Index = (*VectorIndex)(nil)
