package graph

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnavailable means no graph store is configured.
var ErrUnavailable = errors.New("graph store unavailable")

// Assignment is one definitive code-to-fragment row to project as (Code)-[HAS_CODE]->(Fragment).
type Assignment struct {
	DefinitiveID uuid.UUID
	FragmentID   string
	CodeText     string
	Quote        string
	SourceFile   string
}

type UpsertOptions struct {
	// EnsureFragments merges missing Fragment nodes from the relational row instead of
	// reporting them as missing.
	EnsureFragments bool
}

type UpsertResult struct {
	CodesCreated     int
	RelationsCreated int
	// Projected lists the definitive rows whose relationship now exists in the graph.
	Projected        []uuid.UUID
	MissingFragments []string
}

type Counts struct {
	Codes     int64
	Fragments int64
	Relations int64
}

// CodeGraph is the projection target. Every node and relationship it writes carries project_id.
type CodeGraph interface {
	EnsureSchema(ctx context.Context) error
	UpsertAssignments(ctx context.Context, projectID string, rows []Assignment, opts UpsertOptions) (UpsertResult, error)
	Counts(ctx context.Context, projectID string) (Counts, error)
	Ping(ctx context.Context) error
}
