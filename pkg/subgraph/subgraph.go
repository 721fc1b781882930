// Package subgraph implements the C5 subgraph assembler: it dispatches a
// direction/firstGenerationOnly/subgraph request onto one of the four C4
// traversal primitives, partitions the returned records into vertices and
// edges, and builds an undirected adjacency plus connected components.
package subgraph

import (
	"context"
	"sort"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
	"github.com/bcgsc/graphkb/pkg/schema"
	"github.com/bcgsc/graphkb/pkg/store"
	"github.com/bcgsc/graphkb/pkg/traversal"
)

// Direction mirrors the HTTP surface's opts.direction enum (spec §4.5); the
// zero value Null selects the "similarTo" row of the dispatch table.
type Direction string

const (
	Null       Direction = ""
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
	Both       Direction = "both"
	Split      Direction = "split"
)

// Options configures one traverse(ontology, opts) call, per spec §4.5.
type Options struct {
	Base                []store.RID
	Direction           Direction
	FirstGenerationOnly bool
	Edges               []string
	TreeEdges           []string
	MaxDepth            int
	ReturnProperties    []string
}

// defaultProjection is unioned with every caller-supplied property list,
// per spec §4.5's validation rule.
var defaultProjection = []string{"@rid", "@class", "in", "out", "name", "source.sort"}

// Result is the assembled subgraph: nodes and edges partitioned by class,
// an undirected adjacency map, and the nodes' connected components.
type Result struct {
	Nodes      map[store.RID]store.Record `json:"nodes"`
	Edges      map[store.RID]store.Record `json:"edges"`
	Adjacency  map[store.RID][]store.RID  `json:"adjacency"`
	Components [][]store.RID              `json:"components"`
}

// Assembler wires the traversal primitives to the schema registry for
// input validation, per spec §4.5.
type Assembler struct {
	Primitives *traversal.Primitives
	Reg        *schema.Registry
	Session    *store.Session
}

func New(session *store.Session, reg *schema.Registry) *Assembler {
	return &Assembler{
		Primitives: traversal.New(session, reg),
		Reg:        reg,
		Session:    session,
	}
}

// Traverse dispatches opts onto the matching C4 primitive per the table in
// spec §4.5, then assembles the result into nodes/edges/adjacency/components.
func (a *Assembler) Traverse(ctx context.Context, ontology string, opts Options) (*Result, error) {
	if err := a.validate(ontology, opts); err != nil {
		return nil, err
	}

	records, err := a.dispatch(ctx, ontology, opts)
	if err != nil {
		return nil, err
	}

	projection := Projection(opts.ReturnProperties)
	projected := make(map[store.RID]store.Record, len(records))
	for rid, rec := range records {
		projected[rid] = rec.Project(projection)
	}

	return assemble(projected, ontology), nil
}

func (a *Assembler) validate(ontology string, opts Options) error {
	if _, err := a.Reg.GetClass(ontology); err != nil {
		return graphkberr.Wrap(graphkberr.KindValidation, "subgraph.validate", "unknown ontology class", err)
	}
	if opts.Direction != Both && len(opts.Base) == 0 {
		return graphkberr.New(graphkberr.KindValidation, "subgraph.validate", "base is required for every direction except both")
	}
	for _, rid := range opts.Base {
		if _, err := store.ParseRID(string(rid)); err != nil {
			return graphkberr.Wrap(graphkberr.KindValidation, "subgraph.validate", "malformed base rid", err)
		}
	}
	if len(opts.ReturnProperties) > 0 {
		_, rejected, err := a.Reg.ValidateProperties(ontology, opts.ReturnProperties)
		if err != nil {
			return graphkberr.Wrap(graphkberr.KindValidation, "subgraph.validate", "validating return properties", err)
		}
		if len(rejected) > 0 {
			return graphkberr.New(graphkberr.KindValidation, "subgraph.validate", "unknown projection property: "+rejected[0])
		}
	}
	switch opts.Direction {
	case Null, Ascending, Descending, Both, Split:
	default:
		return graphkberr.New(graphkberr.KindValidation, "subgraph.validate", "unknown direction "+string(opts.Direction))
	}
	return nil
}

// Projection returns opts.ReturnProperties unioned with the fixed default
// projection set, per spec §4.5.
func Projection(requested []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(defaultProjection)+len(requested))
	for _, p := range defaultProjection {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range requested {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func (a *Assembler) dispatch(ctx context.Context, ontology string, opts Options) (map[store.RID]store.Record, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = traversal.DefaultMaxDepth
	}

	switch opts.Direction {
	case Null:
		return a.Primitives.Similarity(ctx, ontology, opts.Base, opts.Edges, maxDepth)

	case Ascending:
		if opts.FirstGenerationOnly {
			return a.Primitives.Immediate(ctx, ontology, opts.Base, opts.Edges, opts.TreeEdges, traversal.Ascending, maxDepth)
		}
		return a.Primitives.Transitive(ctx, ontology, opts.Base, opts.Edges, opts.TreeEdges, traversal.Ascending, maxDepth)

	case Descending:
		if opts.FirstGenerationOnly {
			return a.Primitives.Immediate(ctx, ontology, opts.Base, opts.Edges, opts.TreeEdges, traversal.Descending, maxDepth)
		}
		return a.Primitives.Transitive(ctx, ontology, opts.Base, opts.Edges, opts.TreeEdges, traversal.Descending, maxDepth)

	case Split:
		asc, err := a.Primitives.Transitive(ctx, ontology, opts.Base, opts.Edges, opts.TreeEdges, traversal.Ascending, maxDepth)
		if err != nil {
			return nil, err
		}
		desc, err := a.Primitives.Transitive(ctx, ontology, opts.Base, opts.Edges, opts.TreeEdges, traversal.Descending, maxDepth)
		if err != nil {
			return nil, err
		}
		out := map[store.RID]store.Record{}
		for rid, rec := range asc {
			out[rid] = rec
		}
		for rid, rec := range desc {
			out[rid] = rec
		}
		return out, nil

	case Both:
		return a.Primitives.Composition(ctx, ontology, opts.Edges, opts.TreeEdges)
	}
	return nil, graphkberr.New(graphkberr.KindValidation, "subgraph.dispatch", "unknown direction "+string(opts.Direction))
}

// assemble partitions records by @class into nodes/edges, builds an
// undirected adjacency map, and computes connected components with an
// iterative union-find (never recursive — per spec §4.5, input can be
// millions of nodes).
func assemble(records map[store.RID]store.Record, ontology string) *Result {
	nodes := map[store.RID]store.Record{}
	edges := map[store.RID]store.Record{}
	for rid, rec := range records {
		if rec.Class() == ontology {
			nodes[rid] = rec
		} else {
			edges[rid] = rec
		}
	}

	adjacency := make(map[store.RID][]store.RID, len(nodes))
	for rid := range nodes {
		adjacency[rid] = nil
	}

	uf := newUnionFind()
	for rid := range nodes {
		uf.add(rid)
	}

	var insertionOrder []store.RID
	for rid := range nodes {
		insertionOrder = append(insertionOrder, rid)
	}
	sort.Slice(insertionOrder, func(i, j int) bool { return insertionOrder[i] < insertionOrder[j] })

	var edgeOrder []store.RID
	for rid := range edges {
		edgeOrder = append(edgeOrder, rid)
	}
	sort.Slice(edgeOrder, func(i, j int) bool { return edgeOrder[i] < edgeOrder[j] })

	for _, rid := range edgeOrder {
		e := edges[rid]
		out, in := e.Out(), e.In()
		if _, ok := nodes[out]; !ok {
			continue
		}
		if _, ok := nodes[in]; !ok {
			continue
		}
		adjacency[out] = appendUnique(adjacency[out], in)
		adjacency[in] = appendUnique(adjacency[in], out)
		uf.union(out, in)
	}

	groups := map[store.RID][]store.RID{}
	for _, rid := range insertionOrder {
		root := uf.find(rid)
		groups[root] = append(groups[root], rid)
	}

	var roots []store.RID
	firstSeen := map[store.RID]int{}
	for i, rid := range insertionOrder {
		root := uf.find(rid)
		if _, ok := firstSeen[root]; !ok {
			firstSeen[root] = i
			roots = append(roots, root)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return firstSeen[roots[i]] < firstSeen[roots[j]] })

	components := make([][]store.RID, 0, len(roots))
	for _, root := range roots {
		members := groups[root]
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		components = append(components, members)
	}

	return &Result{Nodes: nodes, Edges: edges, Adjacency: adjacency, Components: components}
}

func appendUnique(list []store.RID, rid store.RID) []store.RID {
	for _, r := range list {
		if r == rid {
			return list
		}
	}
	return append(list, rid)
}

// unionFind is an iterative (path-compressing, union-by-rank) disjoint-set
// over store.RID, avoiding recursion so it scales to million-node graphs
// without risking stack exhaustion.
type unionFind struct {
	parent map[store.RID]store.RID
	rank   map[store.RID]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: map[store.RID]store.RID{}, rank: map[store.RID]int{}}
}

func (u *unionFind) add(rid store.RID) {
	if _, ok := u.parent[rid]; !ok {
		u.parent[rid] = rid
		u.rank[rid] = 0
	}
}

func (u *unionFind) find(rid store.RID) store.RID {
	root := rid
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[rid] != root {
		next := u.parent[rid]
		u.parent[rid] = root
		rid = next
	}
	return root
}

func (u *unionFind) union(a, b store.RID) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
