// Package similaritytest provides a canned Index for engine tests.
package similaritytest

import (
	"context"

	"github.com/yungbote/groundwork-backend/internal/data/similarity"
)

// Static answers from a fixed table keyed by the exact query text.
type Static struct {
	Neighbors map[string][]similarity.Neighbor
	Err       error
	Calls     int
}

func (s *Static) Nearest(ctx context.Context, projectID string, texts []string, threshold float64, topK int) ([][]similarity.Neighbor, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([][]similarity.Neighbor, len(texts))
	for i, t := range texts {
		for _, n := range s.Neighbors[t] {
			if n.Similarity >= threshold {
				out[i] = append(out[i], n)
			}
		}
	}
	return out, nil
}

var _ similarity.Index = (*Static)(nil)
