package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

func newTestBadgerEngine(t *testing.T) *BadgerEngine {
	t.Helper()
	eng, err := NewBadgerEngine(BadgerOptions{DataDir: t.TempDir(), InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestBadgerEngineInsertAndGetRecord(t *testing.T) {
	eng := newTestBadgerEngine(t)
	ctx := context.Background()

	_, err := eng.CreateClass(ctx, "Disease", nil, false)
	require.NoError(t, err)

	rid, err := eng.Insert(ctx, "Disease", map[string]any{"name": "melanoma"})
	require.NoError(t, err)

	rec, found, err := eng.GetRecord(ctx, rid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "melanoma", rec["name"])
	assert.Equal(t, "Disease", rec.Class())
}

func TestBadgerEngineTraverseFollowsAdjacencyIndex(t *testing.T) {
	eng := newTestBadgerEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.PutVertex("#1:1", "Disease", map[string]any{"name": "v0"}))
	require.NoError(t, eng.PutVertex("#1:2", "Disease", map[string]any{"name": "v1"}))
	require.NoError(t, eng.PutEdge("#2:1", "SubClassOf", "#1:1", "#1:2", nil))

	result, err := eng.Traverse(ctx, TraverseSpec{
		EdgeClasses: []string{"SubClassOf"},
		Direction:   DirOut,
		Base:        []RID{"#1:1"},
		VertexClass: "Disease",
		MaxDepth:    1,
	})
	require.NoError(t, err)
	assert.Contains(t, result, RID("#1:2"))
}

func TestBadgerEngineSelectPagination(t *testing.T) {
	eng := newTestBadgerEngine(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, eng.PutVertex(RID(fmt.Sprintf("#1:%d", i)), "Disease", map[string]any{"n": i}))
	}

	recs, next, more, err := eng.Select(ctx, SelectSpec{Class: "Disease"}, "", 3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.True(t, more)
	assert.NotEmpty(t, next)
}
