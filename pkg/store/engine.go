package store

import (
	"context"
	"strconv"

	"github.com/bcgsc/graphkb/pkg/schema"
)

// Direction selects which side of a directed edge a traversal follows.
type Direction string

const (
	DirOut  Direction = "out"  // follow the edge's "out" side
	DirIn   Direction = "in"   // follow the edge's "in" side
	DirBoth Direction = "both" // follow both sides, undirected
)

// TraverseSpec describes one hop (or bounded walk) of graph traversal, the
// Go-native equivalent of a "TRAVERSE both(edge) FROM (base) WHILE ..."
// statement. Every class name in EdgeClasses/VertexClass is validated
// against the schema registry before a TraverseSpec is built; seed RIDs and
// the VertexClass check are the only "query text" interpolation the
// store contract in spec §6.1 is describing.
type TraverseSpec struct {
	EdgeClasses     []string  // similarity or hierarchy edge classes to follow
	Direction       Direction // which side(s) of EdgeClasses to follow
	Base            []RID     // seed vertices
	VertexClass     string    // the ontology vertex class; endpoints must match this (when present)
	MaxDepth        int       // traversal stops beyond this depth; 0 means unbounded depth bookkeeping still applies the WHILE filter
	IncludeEdgeSelf bool      // also return the traversed edge records (bothE/outE/inE), not just endpoint vertices
}

// Text renders a human-readable, debug/audit-oriented description of the
// spec. It is never parsed back — execution always dispatches on the typed
// fields above — but gives operators the same "what ran" visibility a
// logged query string would.
func (t TraverseSpec) Text() string {
	fn := "both"
	switch t.Direction {
	case DirOut:
		fn = "out"
	case DirIn:
		fn = "in"
	}
	return "TRAVERSE " + fn + "(" + joinStrings(t.EdgeClasses) + ") FROM (" + joinRIDs(t.Base) + ") WHILE depth <= " + strconv.Itoa(t.MaxDepth)
}

// SelectSpec describes a class-scoped, optionally paginated SELECT, the
// Go-native equivalent of "SELECT FROM <class> WHERE deletedAt IS NULL
// [AND in.@class = :x AND out.@class = :x]".
type SelectSpec struct {
	Class          string
	RestrictInOut  string // when non-empty, both endpoints' @class must equal this, and with ExcludeDeleted both endpoints must be non-deleted (used by composition's edge scan)
	ExcludeDeleted bool
}

// ClassHandle is an opaque reference to a DDL-created class.
type ClassHandle struct {
	Name string
}

// PageOptions configures queryPaged's cursor rewrite, per spec §4.2.
type PageOptions struct {
	PageSize int
	MaxSize  int
}

// DefaultPageOptions mirrors the spec's documented defaults.
func DefaultPageOptions() PageOptions {
	return PageOptions{PageSize: 5000, MaxSize: 1_000_000}
}

// Engine is the backing graph store's contract, per spec §6.1: class/
// property/index DDL, the four traversal primitives' execution surface,
// and cursor-paginated class scans. Implementations: memengine (tests,
// check-only startup) and badgerengine (production).
type Engine interface {
	// DDL
	CreateClass(ctx context.Context, name string, extends []string, abstract bool) (ClassHandle, error)
	CreateProperty(ctx context.Context, class string, desc schema.PropertyDescriptor) error
	CreateIndex(ctx context.Context, desc schema.IndexDescriptor, graceful bool) (bool, error)
	GetClass(ctx context.Context, name string) (ClassHandle, error)

	// Traversal execution
	Traverse(ctx context.Context, spec TraverseSpec) (map[RID]Record, error)
	Select(ctx context.Context, spec SelectSpec, cursor RID, limit int) (records []Record, nextCursor RID, hasMore bool, err error)
	GetRecord(ctx context.Context, rid RID) (Record, bool, error)

	// Data mutation used by migration steps
	Update(ctx context.Context, class string, rid RID, set map[string]any) error
	Insert(ctx context.Context, class string, fields map[string]any) (RID, error)

	Close() error
}

func joinStrings(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}

func joinRIDs(rs []RID) string {
	ss := make([]string, len(rs))
	for i, r := range rs {
		ss[i] = string(r)
	}
	return joinStrings(ss)
}

