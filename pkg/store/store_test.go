package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDiseaseFixture(t *testing.T, eng *MemEngine) map[string]RID {
	t.Helper()
	rids := map[string]RID{}
	for i := 0; i <= 8; i++ {
		rid := eng.NextRID()
		name := rune('0' + i)
		rids["v"+string(name)] = rid
	}
	eng.PutVertex(rids["v0"], "Disease", map[string]any{"name": "v0"})
	eng.PutVertex(rids["v1"], "Disease", map[string]any{"name": "v1"})
	eng.PutVertex(rids["v2"], "Disease", map[string]any{"name": "v2"})
	eng.PutVertex(rids["v3"], "Disease", map[string]any{"name": "v3"})
	eng.PutVertex(rids["v4"], "Disease", map[string]any{"name": "v4", "source.sort": 0})
	eng.PutVertex(rids["v5"], "Disease", map[string]any{"name": "v5"})
	eng.PutVertex(rids["v6"], "Disease", map[string]any{"name": "v6"})
	eng.PutVertex(rids["v7"], "Disease", map[string]any{"name": "v7"})
	eng.PutVertex(rids["v8"], "Disease", map[string]any{"name": "v8"})

	edge := func(class string, from, to string) {
		eng.PutEdge(eng.NextRID(), class, rids[from], rids[to], nil)
	}
	edge("SubClassOf", "v0", "v1")
	edge("SubClassOf", "v1", "v2")
	edge("AliasOf", "v3", "v4")
	edge("SubClassOf", "v4", "v1")
	edge("DeprecatedBy", "v5", "v6")
	edge("SubClassOf", "v8", "v2")
	edge("SubClassOf", "v6", "v2")
	return rids
}

func TestMemEngineTraverseSimilarity(t *testing.T) {
	eng := NewMemEngine()
	rids := seedDiseaseFixture(t, eng)

	result, err := eng.Traverse(context.Background(), TraverseSpec{
		EdgeClasses: []string{"AliasOf"},
		Direction:   DirBoth,
		Base:        []RID{rids["v3"]},
		VertexClass: "Disease",
		MaxDepth:    50,
	})
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Contains(t, result, rids["v4"])
}

func TestPoolAcquireRelease(t *testing.T) {
	eng := NewMemEngine()
	pool := NewPool(eng, 1)

	ctx := context.Background()
	s1, err := pool.Acquire(ctx)
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx2)
	assert.Error(t, err, "pool is exhausted until s1 is released")

	s1.Release()
	s2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	s2.Release()
}

func TestSessionQueryPagedRespectsMaxSize(t *testing.T) {
	eng := NewMemEngine()
	for i := 0; i < 10; i++ {
		eng.PutVertex(eng.NextRID(), "Disease", map[string]any{"name": i})
	}
	pool := NewPool(eng, 1)
	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer s.Release()

	recs, err := s.QueryPaged(context.Background(), SelectSpec{Class: "Disease"}, PageOptions{PageSize: 3, MaxSize: 5})
	require.NoError(t, err)
	assert.Len(t, recs, 5)
}

func TestParseRID(t *testing.T) {
	rid, err := ParseRID("#12:34")
	require.NoError(t, err)
	assert.Equal(t, RID("#12:34"), rid)

	_, err = ParseRID("not-a-rid")
	assert.Error(t, err)
}
