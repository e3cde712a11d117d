// Package gateway implements the generic data-access contract the
// reconciliation core shares with the rest of the platform: list, create
// and update over named tables, with filters expressed as field/operator/
// value triples and soft-deleted rows excluded by default.
//
// Two implementations are provided: a SQLite-backed store for durable runs
// and an in-memory store for tests and degraded/demo sessions. Rows are
// untyped maps at this layer; callers must convert them into domain types
// immediately at the boundary (see internal/ledger).
package gateway

import (
	"context"
	"errors"
)

// Row is one untyped record as exchanged with the data-access layer.
type Row map[string]interface{}

// Operator is a filter comparison operator.
type Operator string

const (
	OpEqual Operator = "eq"
	OpIn    Operator = "in"
	OpGTE   Operator = "gte"
	OpLTE   Operator = "lte"
)

// Filter is one field/operator/value restriction. For OpIn the value must
// be a []string.
type Filter struct {
	Field string
	Op    Operator
	Value interface{}
}

// ListOptions bounds and orders a List call.
type ListOptions struct {
	Filters        []Filter
	SortField      string
	SortDesc       bool
	Limit          int
	IncludeDeleted bool
}

// Sentinel errors shared by all gateway implementations.
var (
	// ErrTableNotFound is returned when the requested table does not exist
	// yet. Callers are expected to degrade to an empty result set.
	ErrTableNotFound = errors.New("gateway: table not found")

	// ErrConflict is returned when a create violates a uniqueness guard,
	// e.g. a second reconciliation record for the same (tenant, fitId).
	ErrConflict = errors.New("gateway: conflicting write")

	// ErrNotFound is returned when an update references a missing row.
	ErrNotFound = errors.New("gateway: row not found")
)

// Gateway is the narrow data-access contract the core depends on.
type Gateway interface {
	List(ctx context.Context, table string, opts ListOptions) ([]Row, error)
	Create(ctx context.Context, table string, payload Row) (Row, error)
	Update(ctx context.Context, table string, payload Row) (Row, error)
}
