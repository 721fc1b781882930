// Package traversal implements the C4 traversal primitives: similarity,
// immediate, transitive, and composition. Every primitive composes one or
// more store.Session calls and returns a RID→record mapping for the
// assembler (package subgraph) to partition into nodes and edges.
//
// Class names are validated against the schema registry before any
// store.TraverseSpec or store.SelectSpec is built — raw caller input never
// reaches the store layer unchecked, per the safety rule in spec §4.4.
package traversal

import (
	"context"
	"sort"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
	"github.com/bcgsc/graphkb/pkg/schema"
	"github.com/bcgsc/graphkb/pkg/store"
)

// DefaultMaxDepth is applied whenever a caller supplies a non-positive depth.
const DefaultMaxDepth = 50

// DefaultSimilarityEdges are the similarity edge classes consulted when the
// caller does not supply its own set.
var DefaultSimilarityEdges = []string{"AliasOf", "CrossReferenceOf", "DeprecatedBy", "ElementOf", "GeneralizationOf"}

// DefaultTreeEdges are the hierarchy edge classes consulted when the caller
// does not supply its own set.
var DefaultTreeEdges = []string{"SubClassOf"}

// Direction selects a hierarchy walk direction. Ascending follows a tree
// edge's out side (child→parent for SubClassOf); descending follows its in
// side (parent→child). This single shared mapping is DEFAULT_DIRECTIONS: it
// assumes every treeEdges class shares SubClassOf's child→parent
// orientation and will misclassify a future hierarchy edge class declared
// with the opposite orientation. Preserved as-is per the source's existing
// limitation; the fix would be per-edge-class orientation metadata.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

func (d Direction) storeDirection() store.Direction {
	if d == Descending {
		return store.DirIn
	}
	return store.DirOut
}

// Primitives executes the four traversal primitives against one session,
// validating every class argument against reg first.
type Primitives struct {
	Session *store.Session
	Reg     *schema.Registry
}

func New(session *store.Session, reg *schema.Registry) *Primitives {
	return &Primitives{Session: session, Reg: reg}
}

func normalizeDepth(maxDepth int) int {
	if maxDepth <= 0 {
		return DefaultMaxDepth
	}
	return maxDepth
}

func normalizeEdges(edges []string, fallback []string) []string {
	if len(edges) == 0 {
		return fallback
	}
	return edges
}

func (p *Primitives) validateOntology(ontology string) error {
	c, err := p.Reg.GetClass(ontology)
	if err != nil {
		return graphkberr.Wrap(graphkberr.KindValidation, "traversal.validateOntology", "unknown ontology class", err)
	}
	if c.Abstract {
		return graphkberr.New(graphkberr.KindValidation, "traversal.validateOntology", "ontology class must not be abstract")
	}
	return nil
}

func (p *Primitives) validateEdgeClasses(classes []string) error {
	for _, c := range classes {
		isEdge, err := p.Reg.IsEdgeClass(c)
		if err != nil {
			return graphkberr.Wrap(graphkberr.KindValidation, "traversal.validateEdgeClasses", "unknown edge class", err)
		}
		if !isEdge {
			return graphkberr.New(graphkberr.KindValidation, "traversal.validateEdgeClasses", "class "+c+" is not an edge class")
		}
	}
	return nil
}

// vertexRIDs returns, from a primitive's result map, only the RIDs of
// records whose class is ontology (i.e. excludes any included edge
// records), sorted for deterministic downstream seeding.
func vertexRIDs(result map[store.RID]store.Record, ontology string) []store.RID {
	var out []store.RID
	for rid, rec := range result {
		if rec.Class() == ontology {
			out = append(out, rid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func mergeInto(dst map[store.RID]store.Record, srcs ...map[store.RID]store.Record) {
	for _, src := range srcs {
		for rid, rec := range src {
			dst[rid] = rec
		}
	}
}

// Similarity traverses both(edge)/bothE(edge) for every edge in edges, per
// spec §4.4, returning similarity-equivalent vertices and the traversed
// edges themselves (endpoints restricted to ontology, deletedAt null,
// bounded by maxDepth).
func (p *Primitives) Similarity(ctx context.Context, ontology string, base []store.RID, edges []string, maxDepth int) (map[store.RID]store.Record, error) {
	if err := p.validateOntology(ontology); err != nil {
		return nil, err
	}
	edges = normalizeEdges(edges, DefaultSimilarityEdges)
	if err := p.validateEdgeClasses(edges); err != nil {
		return nil, err
	}
	if len(base) == 0 {
		return map[store.RID]store.Record{}, nil
	}
	return p.Session.Traverse(ctx, store.TraverseSpec{
		EdgeClasses:     edges,
		Direction:       store.DirBoth,
		Base:            base,
		VertexClass:     ontology,
		MaxDepth:        normalizeDepth(maxDepth),
		IncludeEdgeSelf: true,
	})
}

// Immediate runs the three-phase walk of spec §4.4: (a) similarity(base);
// (b) one-hop directed hierarchy traversal from (a)'s vertices; (c)
// similarity from (b)'s vertices. The union of all three phases' result
// maps is returned.
//
// Phase (c) seeds only from the vertex RIDs of phase (b), not its edge
// RIDs — the corrected behavior the spec prefers over the source's
// original (which seeded from all of phase (b)'s RIDs, edges included).
func (p *Primitives) Immediate(ctx context.Context, ontology string, base []store.RID, edges, treeEdges []string, dir Direction, maxDepth int) (map[store.RID]store.Record, error) {
	if err := p.validateOntology(ontology); err != nil {
		return nil, err
	}
	treeEdges = normalizeEdges(treeEdges, DefaultTreeEdges)
	if err := p.validateEdgeClasses(treeEdges); err != nil {
		return nil, err
	}

	phaseA, err := p.Similarity(ctx, ontology, base, edges, maxDepth)
	if err != nil {
		return nil, err
	}

	phaseB, err := p.Session.Traverse(ctx, store.TraverseSpec{
		EdgeClasses:     treeEdges,
		Direction:       dir.storeDirection(),
		Base:            vertexRIDs(phaseA, ontology),
		VertexClass:     ontology,
		MaxDepth:        1,
		IncludeEdgeSelf: true,
	})
	if err != nil {
		return nil, err
	}

	phaseC, err := p.Similarity(ctx, ontology, vertexRIDs(phaseB, ontology), edges, maxDepth)
	if err != nil {
		return nil, err
	}

	out := map[store.RID]store.Record{}
	mergeInto(out, phaseA, phaseB, phaseC)
	return out, nil
}

// Transitive runs a single traversal combining similarity (both
// directions) with directed hierarchy along dir, bounded by maxDepth, per
// spec §4.4. It is executed here as a layered frontier expansion: at each
// depth both edge groups are followed one hop from the current frontier
// and merged before advancing, which is equivalent to (and implemented in
// place of) a single combined store-side WHILE traversal mixing two
// direction conventions in one pass.
func (p *Primitives) Transitive(ctx context.Context, ontology string, base []store.RID, edges, treeEdges []string, dir Direction, maxDepth int) (map[store.RID]store.Record, error) {
	if err := p.validateOntology(ontology); err != nil {
		return nil, err
	}
	edges = normalizeEdges(edges, DefaultSimilarityEdges)
	treeEdges = normalizeEdges(treeEdges, DefaultTreeEdges)
	if err := p.validateEdgeClasses(edges); err != nil {
		return nil, err
	}
	if err := p.validateEdgeClasses(treeEdges); err != nil {
		return nil, err
	}
	maxDepth = normalizeDepth(maxDepth)

	result := map[store.RID]store.Record{}
	seen := map[store.RID]bool{}
	for _, b := range base {
		seen[b] = true
	}

	frontier := append([]store.RID(nil), base...)
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, graphkberr.Wrap(graphkberr.KindConnection, "traversal.Transitive", "context cancelled", err)
		}

		simHop, err := p.Session.Traverse(ctx, store.TraverseSpec{
			EdgeClasses:     edges,
			Direction:       store.DirBoth,
			Base:            frontier,
			VertexClass:     ontology,
			MaxDepth:        1,
			IncludeEdgeSelf: true,
		})
		if err != nil {
			return nil, err
		}
		treeHop, err := p.Session.Traverse(ctx, store.TraverseSpec{
			EdgeClasses:     treeEdges,
			Direction:       dir.storeDirection(),
			Base:            frontier,
			VertexClass:     ontology,
			MaxDepth:        1,
			IncludeEdgeSelf: true,
		})
		if err != nil {
			return nil, err
		}

		var next []store.RID
		for rid, rec := range simHop {
			result[rid] = rec
			if !seen[rid] {
				seen[rid] = true
				if rec.Class() == ontology {
					next = append(next, rid)
				}
			}
		}
		for rid, rec := range treeHop {
			result[rid] = rec
			if !seen[rid] {
				seen[rid] = true
				if rec.Class() == ontology {
					next = append(next, rid)
				}
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		frontier = next
	}
	return result, nil
}

// Composition runs with no seeds, per spec §4.4: one paginated select over
// the ontology vertex class plus one paginated select per edge class in
// edges∪treeEdges, restricted to both endpoints being non-deleted vertices
// of ontology.
func (p *Primitives) Composition(ctx context.Context, ontology string, edges, treeEdges []string) (map[store.RID]store.Record, error) {
	if err := p.validateOntology(ontology); err != nil {
		return nil, err
	}
	edges = normalizeEdges(edges, DefaultSimilarityEdges)
	treeEdges = normalizeEdges(treeEdges, DefaultTreeEdges)
	allEdgeClasses := append(append([]string{}, edges...), treeEdges...)
	if err := p.validateEdgeClasses(allEdgeClasses); err != nil {
		return nil, err
	}

	result := map[store.RID]store.Record{}

	vertices, err := p.Session.QueryPaged(ctx, store.SelectSpec{Class: ontology, ExcludeDeleted: true}, store.DefaultPageOptions())
	if err != nil {
		return nil, err
	}
	for _, v := range vertices {
		result[v.Rid()] = v
	}

	for _, edgeClass := range allEdgeClasses {
		edgeRecs, err := p.Session.QueryPaged(ctx, store.SelectSpec{
			Class:          edgeClass,
			RestrictInOut:  ontology,
			ExcludeDeleted: true,
		}, store.DefaultPageOptions())
		if err != nil {
			return nil, err
		}
		for _, e := range edgeRecs {
			result[e.Rid()] = e
		}
	}
	return result, nil
}
