package runtime

import (
	"fmt"
	"sort"
	"strings"
)

// Handler runs one job_type. Run reports the outcome through ctx (Succeed, Fail or Progress);
// a returned error is treated as a crash of the attempt.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// Registry maps job_type to its handler. It is fixed at construction and safe for concurrent reads.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry rejects nil handlers, empty types and duplicate types.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("job handler %d is nil", i)
		}
		t := strings.TrimSpace(h.Type())
		if t == "" {
			return nil, fmt.Errorf("job handler %d (%T) has no type", i, h)
		}
		if prev, dup := r.handlers[t]; dup {
			return nil, fmt.Errorf("job_type %s registered by both %T and %T", t, prev, h)
		}
		r.handlers[t] = h
	}
	return r, nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types lists registered job types in sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
