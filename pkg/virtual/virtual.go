// Package virtual implements the C6 virtualizer: it collapses
// similarity-equivalent real nodes into virtual nodes (vNodes), re-derives
// hierarchy edges between those equivalence classes (vEdges), and picks a
// preferred representative per class using the strict lexicographic key of
// spec §4.6.
package virtual

import (
	"fmt"
	"sort"

	"github.com/bcgsc/graphkb/pkg/store"
	"github.com/bcgsc/graphkb/pkg/subgraph"
)

// sourceSortSentinel stands in for a missing source.sort property, per
// spec §4.6's tie-break rule.
const sourceSortSentinel = 99999

// Options configures Build.
type Options struct {
	// SimilarityEdges are the edge classes unioned into equivalence
	// classes. Defaults to traversal.DefaultSimilarityEdges when nil.
	SimilarityEdges []string
	// TreeEdges are the edge classes re-derived as vEdges between
	// equivalence classes. Defaults to traversal.DefaultTreeEdges when nil.
	TreeEdges []string
	// DisallowSelfLoops drops a hierarchy edge whose endpoints collapse to
	// the same vNode instead of producing a self-loop vEdge. Default (false):
	// self-loops are kept, per spec §4.6.
	DisallowSelfLoops bool
	// Directed selects whether the returned adjacency is directed
	// (vEdges' out→in) or undirected.
	Directed bool
}

var defaultSimilarityEdges = []string{"AliasOf", "CrossReferenceOf", "DeprecatedBy", "ElementOf", "GeneralizationOf"}
var defaultTreeEdges = []string{"SubClassOf"}

// VNode is one equivalence class of similarity-connected real nodes.
type VNode struct {
	ID      store.RID   `json:"-"`       // the chosen representative's RID, used as the vNode's own id
	Label   string      `json:"label"`   // representative's name, falling back to displayName, then RID
	Records []store.RID `json:"records"` // every member RID, sorted ascending
}

// VEdge is one directed hierarchy edge between two vNodes.
type VEdge struct {
	Out store.RID `json:"out"`
	In  store.RID `json:"in"`
}

func vEdgeKey(out, in store.RID) string { return fmt.Sprintf("%s-%s", out, in) }

// Result is the assembled virtual graph.
type Result struct {
	VNodes     map[store.RID]*VNode      `json:"vNodes"`
	VEdges     map[string]*VEdge         `json:"vEdges"`
	GToV       map[store.RID]store.RID   `json:"g_to_v"`
	VToG       map[store.RID][]store.RID `json:"v_to_g"`
	Adjacency  map[store.RID][]store.RID `json:"adjacency"`
	Components [][]store.RID             `json:"components"`
}

// Build collapses real (the output of subgraph.Assembler.Traverse) into a
// virtual graph per spec §4.6.
func Build(real *subgraph.Result, opts Options) *Result {
	simEdges := opts.SimilarityEdges
	if len(simEdges) == 0 {
		simEdges = defaultSimilarityEdges
	}
	treeEdges := opts.TreeEdges
	if len(treeEdges) == 0 {
		treeEdges = defaultTreeEdges
	}
	simSet := toSet(simEdges)
	treeSet := toSet(treeEdges)

	uf := newUnionFind()
	for rid := range real.Nodes {
		uf.add(rid)
	}
	for _, e := range real.Edges {
		if simSet[e.Class()] {
			uf.union(e.Out(), e.In())
		}
	}

	isDeprecated := map[store.RID]bool{}
	isAliasing := map[store.RID]bool{}
	for _, e := range real.Edges {
		switch e.Class() {
		case "DeprecatedBy":
			isDeprecated[e.Out()] = true
		case "AliasOf":
			isAliasing[e.Out()] = true
		}
	}

	groups := map[store.RID][]store.RID{}
	for rid := range real.Nodes {
		root := uf.find(rid)
		groups[root] = append(groups[root], rid)
	}

	gToV := map[store.RID]store.RID{}
	vToG := map[store.RID][]store.RID{}
	vNodes := map[store.RID]*VNode{}

	for _, members := range groups {
		rep := pickRepresentative(members, real.Nodes, isDeprecated, isAliasing)
		sorted := append([]store.RID(nil), members...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		for _, m := range members {
			gToV[m] = rep
		}
		vToG[rep] = sorted
		vNodes[rep] = &VNode{ID: rep, Label: label(real.Nodes[rep]), Records: sorted}
	}

	vEdges := map[string]*VEdge{}
	for _, e := range real.Edges {
		if !treeSet[e.Class()] {
			continue
		}
		u, v := gToV[e.Out()], gToV[e.In()]
		if u == v && opts.DisallowSelfLoops {
			continue
		}
		key := vEdgeKey(u, v)
		vEdges[key] = &VEdge{Out: u, In: v}
	}

	adjacency := make(map[store.RID][]store.RID, len(vNodes))
	for rep := range vNodes {
		adjacency[rep] = nil
	}
	vuf := newUnionFind()
	for rep := range vNodes {
		vuf.add(rep)
	}
	var edgeKeys []string
	for k := range vEdges {
		edgeKeys = append(edgeKeys, k)
	}
	sort.Strings(edgeKeys)
	for _, k := range edgeKeys {
		e := vEdges[k]
		adjacency[e.Out] = appendUnique(adjacency[e.Out], e.In)
		if !opts.Directed {
			adjacency[e.In] = appendUnique(adjacency[e.In], e.Out)
		}
		vuf.union(e.Out, e.In)
	}

	var repOrder []store.RID
	for rep := range vNodes {
		repOrder = append(repOrder, rep)
	}
	sort.Slice(repOrder, func(i, j int) bool { return repOrder[i] < repOrder[j] })

	compGroups := map[store.RID][]store.RID{}
	for _, rep := range repOrder {
		root := vuf.find(rep)
		compGroups[root] = append(compGroups[root], rep)
	}
	var roots []store.RID
	for root := range compGroups {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		return minRID(compGroups[roots[i]]) < minRID(compGroups[roots[j]])
	})
	components := make([][]store.RID, 0, len(roots))
	for _, root := range roots {
		members := compGroups[root]
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		components = append(components, members)
	}

	return &Result{
		VNodes:     vNodes,
		VEdges:     vEdges,
		GToV:       gToV,
		VToG:       vToG,
		Adjacency:  adjacency,
		Components: components,
	}
}

func minRID(rids []store.RID) store.RID {
	min := rids[0]
	for _, r := range rids[1:] {
		if r < min {
			min = r
		}
	}
	return min
}

// pickRepresentative applies the strict lexicographic key of spec §4.6,
// ascending: isDeprecated (false<true), isAliasing (false<true),
// source.sort (missing treated as 99999), RID lexicographic.
func pickRepresentative(members []store.RID, nodes map[store.RID]store.Record, isDeprecated, isAliasing map[store.RID]bool) store.RID {
	best := members[0]
	for _, m := range members[1:] {
		if less(m, best, nodes, isDeprecated, isAliasing) {
			best = m
		}
	}
	return best
}

func less(a, b store.RID, nodes map[store.RID]store.Record, isDeprecated, isAliasing map[store.RID]bool) bool {
	if isDeprecated[a] != isDeprecated[b] {
		return !isDeprecated[a]
	}
	if isAliasing[a] != isAliasing[b] {
		return !isAliasing[a]
	}
	sa, sb := sourceSort(nodes[a]), sourceSort(nodes[b])
	if sa != sb {
		return sa < sb
	}
	return a < b
}

func sourceSort(rec store.Record) int {
	v, ok := rec["source.sort"]
	if !ok {
		return sourceSortSentinel
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return sourceSortSentinel
	}
}

func label(rec store.Record) string {
	if rec == nil {
		return ""
	}
	if n, ok := rec["name"].(string); ok && n != "" {
		return n
	}
	if n, ok := rec["displayName"].(string); ok && n != "" {
		return n
	}
	return string(rec.Rid())
}

func toSet(ss []string) map[string]bool {
	out := make(map[string]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}

func appendUnique(list []store.RID, rid store.RID) []store.RID {
	for _, r := range list {
		if r == rid {
			return list
		}
	}
	return append(list, rid)
}

// unionFind is an iterative, path-compressing disjoint-set, mirroring
// package subgraph's implementation — kept duplicated rather than shared
// to avoid a cross-package dependency for a ten-line algorithm.
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
