// Package store implements the C2 store adapter: a thin, typed surface over
// the backing graph store exposing class/property/index DDL, parameterized
// traversal and select queries with cursor-based pagination, and pooled
// session acquisition.
//
// Two Engine implementations are provided: memengine, a dependency-free
// in-process map backed engine used by tests and the check-only migration
// path, and badgerengine, a github.com/dgraph-io/badger/v4-backed engine for
// production deployments — the same dual in-memory/on-disk split the
// teacher project uses for its own storage layer.
package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
)

// RID is a record identifier of the form "#cluster:position". It is
// comparable and sortable as a plain string, which is what the cursor
// pagination in QueryPaged relies on.
type RID string

// ParseRID validates that s has the "#cluster:position" shape.
func ParseRID(s string) (RID, error) {
	if len(s) < 2 || s[0] != '#' {
		return "", graphkberr.New(graphkberr.KindValidation, "store.ParseRID", fmt.Sprintf("malformed rid %q", s))
	}
	rest := s[1:]
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return "", graphkberr.New(graphkberr.KindValidation, "store.ParseRID", fmt.Sprintf("malformed rid %q", s))
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return "", graphkberr.New(graphkberr.KindValidation, "store.ParseRID", fmt.Sprintf("malformed rid cluster %q", s))
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return "", graphkberr.New(graphkberr.KindValidation, "store.ParseRID", fmt.Sprintf("malformed rid position %q", s))
	}
	return RID(s), nil
}

// Record is a vertex or edge record. Every record carries "@rid" and
// "@class"; edge records additionally carry "in" and "out" endpoint RIDs;
// vertex records carry the audit/provenance fields documented in spec §3.
type Record map[string]any

func newRecord(rid RID, class string) Record {
	return Record{"@rid": string(rid), "@class": class}
}

// Rid returns the record's own identifier.
func (r Record) Rid() RID { return RID(asString(r["@rid"])) }

// Class returns the record's class name.
func (r Record) Class() string { return asString(r["@class"]) }

// In returns the "in" endpoint of an edge record, or "" for vertex records.
func (r Record) In() RID { return RID(asString(r["in"])) }

// Out returns the "out" endpoint of an edge record, or "" for vertex records.
func (r Record) Out() RID { return RID(asString(r["out"])) }

// Deleted reports whether deletedAt is set (non-nil, non-zero).
func (r Record) Deleted() bool {
	v, ok := r["deletedAt"]
	if !ok || v == nil {
		return false
	}
	switch n := v.(type) {
	case int64:
		return n != 0
	case int:
		return n != 0
	case float64:
		return n != 0
	}
	return true
}

// Project returns a shallow copy of r restricted to names, always including
// "@rid" and "@class".
func (r Record) Project(names []string) Record {
	out := Record{"@rid": r["@rid"], "@class": r["@class"]}
	for _, n := range names {
		if v, ok := r[n]; ok {
			out[n] = v
		}
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
