package subgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgsc/graphkb/pkg/schema"
	"github.com/bcgsc/graphkb/pkg/store"
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

func newAssembler(t *testing.T, eng store.Engine) *Assembler {
	t.Helper()
	pool := store.NewPool(eng, 4)
	sess, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	return New(sess, diseaseRegistry(t))
}

func nodeNames(r *Result) []string {
	var out []string
	for _, rec := range r.Nodes {
		out = append(out, rec["name"].(string))
	}
	return out
}

func TestSimilarTo(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	a := newAssembler(t, eng)

	result, err := a.Traverse(context.Background(), "Disease", Options{Base: []store.RID{rids["v3"]}, Direction: Null})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v3", "v4"}, nodeNames(result))
	assert.Len(t, result.Edges, 1)
	assert.Len(t, result.Components, 1)
}

func TestAncestors(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	a := newAssembler(t, eng)

	result, err := a.Traverse(context.Background(), "Disease", Options{
		Base: []store.RID{rids["v0"]}, Direction: Ascending, FirstGenerationOnly: false,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v0", "v1", "v2"}, nodeNames(result))
	assert.Len(t, result.Components, 1)
	assert.ElementsMatch(t, []store.RID{rids["v1"]}, result.Adjacency[rids["v0"]])
	assert.ElementsMatch(t, []store.RID{rids["v0"], rids["v2"]}, result.Adjacency[rids["v1"]])
}

func TestDescendantsCollapseToOneComponent(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	a := newAssembler(t, eng)

	result, err := a.Traverse(context.Background(), "Disease", Options{
		Base: []store.RID{rids["v2"]}, Direction: Descending, FirstGenerationOnly: false,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v2", "v1", "v0", "v4", "v3", "v8", "v6", "v5"}, nodeNames(result))
	assert.Len(t, result.Components, 1)
}

func TestParentsImmediate(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	a := newAssembler(t, eng)

	result, err := a.Traverse(context.Background(), "Disease", Options{
		Base: []store.RID{rids["v0"]}, Direction: Ascending, FirstGenerationOnly: true,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v0", "v1"}, nodeNames(result))
}

func TestCompleteRequiresNoBase(t *testing.T) {
	eng, _ := seedSpecFixture(t)
	a := newAssembler(t, eng)

	result, err := a.Traverse(context.Background(), "Disease", Options{Direction: Both})
	require.NoError(t, err)
	assert.Len(t, result.Nodes, 9)
}

func TestBaseRequiredExceptBoth(t *testing.T) {
	eng, _ := seedSpecFixture(t)
	a := newAssembler(t, eng)

	_, err := a.Traverse(context.Background(), "Disease", Options{Direction: Ascending})
	assert.Error(t, err)
}

func TestReturnPropertiesNarrowsRecords(t *testing.T) {
	reg, err := schema.NewRegistry([]schema.ClassDescriptor{
		{Name: schema.BaseEdgeClass, Abstract: true},
		{Name: "SubClassOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "AliasOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "CrossReferenceOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "DeprecatedBy", Parents: []string{schema.BaseEdgeClass}},
		{Name: "ElementOf", Parents: []string{schema.BaseEdgeClass}},
		{Name: "GeneralizationOf", Parents: []string{schema.BaseEdgeClass}},
		{
			Name: "Disease",
			Properties: map[string]schema.PropertyDescriptor{
				"displayName": {Name: "displayName", Type: schema.TypeString},
			},
		},
	})
	require.NoError(t, err)

	eng := store.NewMemEngine()
	v0, v1 := eng.NextRID(), eng.NextRID()
	eng.PutVertex(v0, "Disease", map[string]any{"name": "v0", "displayName": "Disease Zero", "internalNote": "do not return"})
	eng.PutVertex(v1, "Disease", map[string]any{"name": "v1", "displayName": "Disease One", "internalNote": "do not return"})
	eng.PutEdge(eng.NextRID(), "SubClassOf", v0, v1, nil)

	pool := store.NewPool(eng, 4)
	sess, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	a := New(sess, reg)

	result, err := a.Traverse(context.Background(), "Disease", Options{
		Base: []store.RID{v0}, Direction: Ascending, ReturnProperties: []string{"displayName"},
	})
	require.NoError(t, err)

	node := result.Nodes[v1]
	assert.Equal(t, "Disease One", node["displayName"])
	assert.Equal(t, "v1", node["name"]) // name is in the default projection set
	assert.NotContains(t, node, "internalNote")
	assert.Len(t, result.Edges, 1)
	for _, e := range result.Edges {
		assert.Equal(t, v0, e.Out())
		assert.Equal(t, v1, e.In())
	}
}
