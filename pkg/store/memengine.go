package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
	"github.com/bcgsc/graphkb/pkg/schema"
)

// MemEngine is a dependency-free, in-process Engine backed by plain Go
// maps. It is used by tests and by the check-only migration startup path;
// it never touches disk. The same dual in-memory/on-disk engine split the
// teacher project uses for its own storage layer (MemoryEngine vs
// BadgerEngine) carries over here as MemEngine vs BadgerEngine.
type MemEngine struct {
	mu sync.RWMutex

	nodes map[RID]Record
	edges map[RID]Record

	byClass    map[string]map[RID]bool
	outOfNode  map[RID]map[RID]bool // vertex RID -> set of outgoing edge RIDs
	inOfNode   map[RID]map[RID]bool // vertex RID -> set of incoming edge RIDs
	classes    map[string]schema.ClassDescriptor
	nextPos    int64
}

// NewMemEngine returns an empty in-memory engine.
func NewMemEngine() *MemEngine {
	return &MemEngine{
		nodes:     map[RID]Record{},
		edges:     map[RID]Record{},
		byClass:   map[string]map[RID]bool{},
		outOfNode: map[RID]map[RID]bool{},
		inOfNode:  map[RID]map[RID]bool{},
		classes:   map[string]schema.ClassDescriptor{},
	}
}

func (m *MemEngine) CreateClass(ctx context.Context, name string, extends []string, abstract bool) (ClassHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.classes[name]; exists {
		return ClassHandle{}, graphkberr.New(graphkberr.KindConflict, "memengine.CreateClass", fmt.Sprintf("class %q already exists", name))
	}
	m.classes[name] = schema.ClassDescriptor{Name: name, Parents: extends, Abstract: abstract, Properties: map[string]schema.PropertyDescriptor{}}
	return ClassHandle{Name: name}, nil
}

func (m *MemEngine) CreateProperty(ctx context.Context, class string, desc schema.PropertyDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[class]
	if !ok {
		return graphkberr.New(graphkberr.KindNotFound, "memengine.CreateProperty", fmt.Sprintf("unknown class %q", class))
	}
	if existing, ok := c.Properties[desc.Name]; ok {
		if existing == desc {
			return nil // idempotent: identical property already present
		}
		return graphkberr.New(graphkberr.KindConflict, "memengine.CreateProperty", fmt.Sprintf("property %q redefined on %q", desc.Name, class))
	}
	c.Properties[desc.Name] = desc
	m.classes[class] = c
	return nil
}

func (m *MemEngine) CreateIndex(ctx context.Context, desc schema.IndexDescriptor, graceful bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[desc.Class]
	if !ok {
		return false, graphkberr.New(graphkberr.KindNotFound, "memengine.CreateIndex", fmt.Sprintf("unknown class %q", desc.Class))
	}
	for _, idx := range c.Indices {
		if idx.Name == desc.Name {
			if graceful {
				return true, nil
			}
			return false, graphkberr.New(graphkberr.KindConflict, "memengine.CreateIndex", fmt.Sprintf("index %q already exists", desc.Name))
		}
	}
	if desc.Type == schema.IndexUnique {
		for _, p := range desc.Properties {
			if prop, ok := c.Properties[p]; ok && prop.Iterable {
				return false, nil // refused: unique index on an iterable property
			}
		}
	}
	c.Indices = append(c.Indices, desc)
	m.classes[desc.Class] = c
	return true, nil
}

func (m *MemEngine) GetClass(ctx context.Context, name string) (ClassHandle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.classes[name]; !ok {
		return ClassHandle{}, graphkberr.New(graphkberr.KindNotFound, "memengine.GetClass", fmt.Sprintf("unknown class %q", name))
	}
	return ClassHandle{Name: name}, nil
}

// NextRID allocates a fresh RID in cluster 1, for use by tests seeding
// fixtures and by Insert.
func (m *MemEngine) NextRID() RID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPos++
	return RID(fmt.Sprintf("#1:%d", m.nextPos))
}

// PutVertex inserts or overwrites a vertex record directly, bypassing DDL —
// a seeding convenience for tests building fixture graphs.
func (m *MemEngine) PutVertex(rid RID, class string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := newRecord(rid, class)
	if _, ok := fields["uuid"]; !ok {
		fields = cloneFields(fields)
		fields["uuid"] = uuid.NewString()
	}
	for k, v := range fields {
		rec[k] = v
	}
	m.nodes[rid] = rec
	m.indexByClass(class, rid)
}

// PutEdge inserts or overwrites an edge record directly, bypassing DDL.
func (m *MemEngine) PutEdge(rid RID, class string, out, in RID, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := newRecord(rid, class)
	rec["out"] = string(out)
	rec["in"] = string(in)
	for k, v := range fields {
		rec[k] = v
	}
	m.edges[rid] = rec
	m.indexByClass(class, rid)
	if m.outOfNode[out] == nil {
		m.outOfNode[out] = map[RID]bool{}
	}
	m.outOfNode[out][rid] = true
	if m.inOfNode[in] == nil {
		m.inOfNode[in] = map[RID]bool{}
	}
	m.inOfNode[in][rid] = true
}

func (m *MemEngine) indexByClass(class string, rid RID) {
	if m.byClass[class] == nil {
		m.byClass[class] = map[RID]bool{}
	}
	m.byClass[class][rid] = true
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (m *MemEngine) GetRecord(ctx context.Context, rid RID) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.nodes[rid]; ok {
		return r, true, nil
	}
	if r, ok := m.edges[rid]; ok {
		return r, true, nil
	}
	return nil, false, nil
}

func (m *MemEngine) Update(ctx context.Context, class string, rid RID, set map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.nodes[rid]
	if !ok {
		rec, ok = m.edges[rid]
	}
	if !ok {
		return graphkberr.New(graphkberr.KindNotFound, "memengine.Update", fmt.Sprintf("record %s not found", rid))
	}
	for k, v := range set {
		rec[k] = v
	}
	return nil
}

func (m *MemEngine) Insert(ctx context.Context, class string, fields map[string]any) (RID, error) {
	rid := m.NextRID()
	m.PutVertex(rid, class, fields)
	return rid, nil
}

// Select scans vertices or edges of spec.Class, applying the cursor/limit
// contract the adapter's QueryPaged rewrite depends on: results strictly
// greater than cursor (by RID string order), ascending, truncated at limit.
func (m *MemEngine) Select(ctx context.Context, spec SelectSpec, cursor RID, limit int) ([]Record, RID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var candidates []RID
	if spec.Class != "" {
		for rid := range m.byClass[spec.Class] {
			candidates = append(candidates, rid)
		}
	} else {
		for rid := range m.nodes {
			candidates = append(candidates, rid)
		}
		for rid := range m.edges {
			candidates = append(candidates, rid)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	var out []Record
	for _, rid := range candidates {
		if cursor != "" && rid <= cursor {
			continue
		}
		rec := m.nodes[rid]
		if rec == nil {
			rec = m.edges[rid]
		}
		if spec.ExcludeDeleted && rec.Deleted() {
			continue
		}
		if spec.RestrictInOut != "" {
			inRec := m.nodes[rec.In()]
			outRec := m.nodes[rec.Out()]
			if inRec == nil || outRec == nil || inRec.Class() != spec.RestrictInOut || outRec.Class() != spec.RestrictInOut {
				continue
			}
			if spec.ExcludeDeleted && (inRec.Deleted() || outRec.Deleted()) {
				continue
			}
		}
		out = append(out, rec)
		if len(out) >= limit {
			return out, rid, true, nil
		}
	}
	return out, "", false, nil
}

// Traverse executes TraverseSpec as a breadth-first walk over outOfNode/
// inOfNode, honoring the WHILE stop condition of spec §4.4: the traversed
// record's class is in EdgeClasses∪{VertexClass}; endpoints, when present,
// are of class VertexClass; deletedAt is null; depth<=MaxDepth.
func (m *MemEngine) Traverse(ctx context.Context, spec TraverseSpec) (map[RID]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	edgeSet := map[string]bool{}
	for _, c := range spec.EdgeClasses {
		edgeSet[c] = true
	}

	result := map[RID]Record{}
	type item struct {
		rid   RID
		depth int
	}
	visited := map[RID]bool{}
	queue := make([]item, 0, len(spec.Base))
	for _, b := range spec.Base {
		if !visited[b] {
			visited[b] = true
			queue = append(queue, item{b, 0})
			// TRAVERSE ... FROM (base) is reflexive: the seed vertex itself
			// is part of the traversal's own result, not just what it leads
			// to (matches the literal scenarios in spec §8, e.g.
			// similarTo(base=[v3]) -> {v3, v4}).
			if seed := m.nodes[b]; seed != nil && !seed.Deleted() {
				result[b] = seed
			}
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if spec.MaxDepth > 0 && cur.depth >= spec.MaxDepth {
			continue
		}
		edgeRIDs := m.adjacentEdges(cur.rid, spec.Direction)
		for _, eRID := range edgeRIDs {
			erec := m.edges[eRID]
			if erec == nil || !edgeSet[erec.Class()] || erec.Deleted() {
				continue
			}
			other := otherEndpoint(erec, cur.rid)
			orec := m.nodes[other]
			if orec == nil || orec.Deleted() {
				continue
			}
			if spec.VertexClass != "" && orec.Class() != spec.VertexClass {
				continue
			}
			if spec.IncludeEdgeSelf {
				result[eRID] = erec
			}
			result[other] = orec
			if !visited[other] {
				visited[other] = true
				queue = append(queue, item{other, cur.depth + 1})
			}
		}
	}
	return result, nil
}

func (m *MemEngine) adjacentEdges(rid RID, dir Direction) []RID {
	var out []RID
	if dir == DirOut || dir == DirBoth {
		for e := range m.outOfNode[rid] {
			out = append(out, e)
		}
	}
	if dir == DirIn || dir == DirBoth {
		for e := range m.inOfNode[rid] {
			out = append(out, e)
		}
	}
	return out
}

func otherEndpoint(edge Record, from RID) RID {
	if edge.Out() == from {
		return edge.In()
	}
	return edge.Out()
}

func (m *MemEngine) Close() error { return nil }
