// Package graphtest provides an in-memory CodeGraph for engine tests.
package graphtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/groundwork-backend/internal/data/graph"
)

type relKey struct {
	project  string
	code     string
	fragment string
}

type Memory struct {
	mu        sync.Mutex
	fragments map[string]map[string]bool
	codes     map[string]map[string]bool
	relations map[relKey]uuid.UUID

	// Err, when set, fails every call.
	Err error
	// Delay blocks each upsert until it elapses or the context ends.
	Delay time.Duration

	Upserts int
}

func NewMemory() *Memory {
	return &Memory{
		fragments: map[string]map[string]bool{},
		codes:     map[string]map[string]bool{},
		relations: map[relKey]uuid.UUID{},
	}
}

func (m *Memory) SeedFragment(projectID string, fragmentIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.fragments[projectID]
	if set == nil {
		set = map[string]bool{}
		m.fragments[projectID] = set
	}
	for _, id := range fragmentIDs {
		set[id] = true
	}
}

// Reset drops every node and relationship of a project, like an out-of-band wipe.
func (m *Memory) Reset(projectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fragments, projectID)
	delete(m.codes, projectID)
	for k := range m.relations {
		if k.project == projectID {
			delete(m.relations, k)
		}
	}
}

func (m *Memory) HasRelation(projectID, codeText, fragmentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.relations[relKey{projectID, codeText, fragmentID}]
	return ok
}

func (m *Memory) EnsureSchema(ctx context.Context) error { return m.Err }

func (m *Memory) Ping(ctx context.Context) error { return m.Err }

func (m *Memory) UpsertAssignments(ctx context.Context, projectID string, rows []graph.Assignment, opts graph.UpsertOptions) (graph.UpsertResult, error) {
	var out graph.UpsertResult
	if m.Err != nil {
		return out, m.Err
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Upserts++

	frags := m.fragments[projectID]
	if frags == nil {
		frags = map[string]bool{}
		m.fragments[projectID] = frags
	}
	codes := m.codes[projectID]
	if codes == nil {
		codes = map[string]bool{}
		m.codes[projectID] = codes
	}
	missing := map[string]bool{}
	for _, r := range rows {
		if !frags[r.FragmentID] {
			if !opts.EnsureFragments {
				missing[r.FragmentID] = true
				continue
			}
			frags[r.FragmentID] = true
		}
		if !codes[r.CodeText] {
			codes[r.CodeText] = true
			out.CodesCreated++
		}
		key := relKey{projectID, r.CodeText, r.FragmentID}
		if _, ok := m.relations[key]; !ok {
			m.relations[key] = r.DefinitiveID
			out.RelationsCreated++
		}
		out.Projected = append(out.Projected, r.DefinitiveID)
	}
	for id := range missing {
		out.MissingFragments = append(out.MissingFragments, id)
	}
	sort.Strings(out.MissingFragments)
	return out, nil
}

func (m *Memory) Counts(ctx context.Context, projectID string) (graph.Counts, error) {
	if m.Err != nil {
		return graph.Counts{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := graph.Counts{
		Codes:     int64(len(m.codes[projectID])),
		Fragments: int64(len(m.fragments[projectID])),
	}
	for k := range m.relations {
		if k.project == projectID {
			out.Relations++
		}
	}
	return out, nil
}

var _ graph.CodeGraph = (*Memory)(nil)
