package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/groundwork-backend/internal/data/aggregates"
)

// Op is one recorded ObserveOperation call.
type Op struct {
	Name   string
	Status string
}

// Hooks records what the candidate aggregate reported. Safe for concurrent writes.
type Hooks struct {
	mu        sync.Mutex
	ops       []Op
	conflicts map[string]int
	retries   map[string]int
}

var _ aggregates.Hooks = (*Hooks)(nil)

func (h *Hooks) ObserveOperation(name, status string, _ time.Duration) {
	h.mu.Lock()
	h.ops = append(h.ops, Op{Name: name, Status: status})
	h.mu.Unlock()
}

func (h *Hooks) IncConflict(name string) { h.bump(&h.conflicts, name) }
func (h *Hooks) IncRetry(name string)    { h.bump(&h.retries, name) }

func (h *Hooks) bump(m *map[string]int, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if *m == nil {
		*m = map[string]int{}
	}
	(*m)[name]++
}

// Ops returns a copy of the recorded operations in call order.
func (h *Hooks) Ops() []Op {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Op(nil), h.ops...)
}

// Last returns the most recent operation, or a zero Op.
func (h *Hooks) Last() Op {
	ops := h.Ops()
	if len(ops) == 0 {
		return Op{}
	}
	return ops[len(ops)-1]
}

func (h *Hooks) Conflicts(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conflicts[name]
}

func (h *Hooks) Retries(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retries[name]
}
