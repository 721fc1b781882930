package traversal

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

// seedSpecFixture builds the literal v0..v8 scenario from spec §8 and
// returns both the engine and a name->RID map.
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

func newPrimitives(t *testing.T, eng store.Engine) (*Primitives, *store.Pool) {
	t.Helper()
	pool := store.NewPool(eng, 4)
	sess, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	return New(sess, diseaseRegistry(t)), pool
}

func vertexNames(result map[store.RID]store.Record, ontology string) []string {
	var out []string
	for _, rec := range result {
		if rec.Class() == ontology {
			out = append(out, rec["name"].(string))
		}
	}
	return out
}

func TestSimilarityScenario1(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	p, _ := newPrimitives(t, eng)

	result, err := p.Similarity(context.Background(), "Disease", []store.RID{rids["v3"]}, nil, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v3", "v4"}, vertexNames(result, "Disease"))
}

func TestTransitiveDescendantsScenario3(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	p, _ := newPrimitives(t, eng)

	result, err := p.Transitive(context.Background(), "Disease", []store.RID{rids["v2"]}, nil, nil, Descending, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v2", "v1", "v0", "v4", "v3", "v8", "v6", "v5"}, vertexNames(result, "Disease"))
}

func TestImmediateParentsScenario4(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	p, _ := newPrimitives(t, eng)

	result, err := p.Immediate(context.Background(), "Disease", []store.RID{rids["v0"]}, nil, nil, Ascending, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v0", "v1"}, vertexNames(result, "Disease"))
}

func TestCompositionReturnsWholeOntology(t *testing.T) {
	eng, _ := seedSpecFixture(t)
	p, _ := newPrimitives(t, eng)

	result, err := p.Composition(context.Background(), "Disease", nil, nil)
	require.NoError(t, err)
	names := vertexNames(result, "Disease")
	assert.Len(t, names, 9)
}

func TestSimilarityRejectsUnknownOntology(t *testing.T) {
	eng, rids := seedSpecFixture(t)
	p, _ := newPrimitives(t, eng)

	_, err := p.Similarity(context.Background(), "NotAClass", []store.RID{rids["v0"]}, nil, 0)
	assert.Error(t, err)
}
