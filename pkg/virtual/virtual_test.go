package virtual

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgsc/graphkb/pkg/schema"
	"github.com/bcgsc/graphkb/pkg/store"
	"github.com/bcgsc/graphkb/pkg/subgraph"
)

func diseaseRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry([]schema.ClassDescriptor{
		{Name: schema.BaseEdgeClass, Abstract: true},
		{Name: "SubClassOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "AliasOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "CrossReferenceOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "DeprecatedBy", Parents: []string{schema.BaseEdgeClass}},
		{Name: "ElementOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "GeneralizationOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "Disease"},
	})
	require.NoError(t, err)
	return reg
}

func seedSpecFixture(t *testing.T) (*store.MemEngine, map[string]store.RID) {
	t.Helper()
	eng := store.NewMemEngine()
	rids := map[string]store.RID{}
	for i := 0; i <= 8; i++ {
		rids["v"+string(rune('0'+i))] = eng.NextRID()
	}
	for name, rid := range rids {
		fields := map[string]any{"name": name}
		if name == "v4" {
			fields["source.sort"] = 0
		}
		eng.PutVertex(rid, "Disease", fields)
	}
	edge := func(class, from, to string) {
		eng.PutEdge(eng.NextRID(), class, rids[from], rids[to], nil)
	}
	edge("SubClassOf", "v0", "v1")
	edge("SubClassOf", "v1", "v2")
	edge("AliasOf", "v3", "v4")
	edge("SubClassOf", "v4", "v1")
	edge("DeprecatedBy", "v5", "v6")
	edge("SubClassOf", "v8", "v2")
	edge("SubClassOf", "v6", "v2")
	return eng, rids
}

func TestVirtualizeDescendantsScenario5(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	pool := store.NewPool(eng, 4)
	sess, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	asm := subgraph.New(sess, diseaseRegistry(t))

	real, err := asm.Traverse(context.Background(), "Disease", subgraph.Options{
		Base: []store.RID{rids["v2"]}, Direction: subgraph.Descending,
	})
	require.NoError(t, err)

	vresult := Build(real, Options{})

	aliasRep := vresult.GToV[rids["v3"]]
	assert.Equal(t, rids["v4"], aliasRep)
	assert.Equal(t, vresult.GToV[rids["v4"]], aliasRep)

	deprecatedRep := vresult.GToV[rids["v5"]]
	assert.Equal(t, rids["v6"], deprecatedRep)
	assert.Equal(t, vresult.GToV[rids["v6"]], deprecatedRep)

	// mutual-inverse law
	for g, v := range vresult.GToV {
		assert.Contains(t, vresult.VToG[v], g)
	}

	wantEdges := map[string]bool{
		vEdgeKey(rids["v4"], rids["v1"]): true,
		vEdgeKey(rids["v1"], rids["v2"]): true,
		vEdgeKey(rids["v0"], rids["v1"]): true,
		vEdgeKey(rids["v8"], rids["v2"]): true,
		vEdgeKey(rids["v6"], rids["v2"]): true,
	}
	assert.Equal(t, len(wantEdges), len(vresult.VEdges))
	for k := range wantEdges {
		assert.Contains(t, vresult.VEdges, k)
	}
}

func TestSimilarityPairsShareVirtualID(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	pool := store.NewPool(eng, 4)
	sess, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	asm := subgraph.New(sess, diseaseRegistry(t))

	real, err := asm.Traverse(context.Background(), "Disease", subgraph.Options{Direction: subgraph.Both})
	require.NoError(t, err)

	vresult := Build(real, Options{})
	for _, e := range real.Edges {
		if e.Class() != "AliasOf" && e.Class() != "DeprecatedBy" {
			continue
		}
		assert.Equal(t, vresult.GToV[e.Out()], vresult.GToV[e.In()])
	}
}
