package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgsc/graphkb/pkg/graphkberr"
)

func diseaseOntology() []ClassDescriptor {
	return []ClassDescriptor{
		{Name: BaseEdgeClass, Abstract: true},
		{Name: "Ontology", Abstract: true, Properties: map[string]PropertyDescriptor{
			"name":        {Name: "name", Type: TypeString},
			"displayName": {Name: "displayName", Type: TypeString},
		}},
		{Name: "Disease", Parents: []string{"Ontology"}, Properties: map[string]PropertyDescriptor{
			"subsets": {Name: "subsets", Type: TypeString, Iterable: true},
		}},
		{Name: "AliasOf", Parents: []string{BaseEdgeClass}},
		{Name: "SubClassOf", Parents: []string{BaseEdgeClass}},
		{Name: "Statement", Parents: []string{BaseEdgeClass}, Properties: map[string]PropertyDescriptor{
			"source": {Name: "source", Type: TypeLink, LinkedClass: "Source"},
		}},
		{Name: "Source", Properties: map[string]PropertyDescriptor{
			"sort": {Name: "sort", Type: TypeInteger},
		}},
	}
}

func TestClassesInheriting(t *testing.T) {
	reg, err := NewRegistry(diseaseOntology())
	require.NoError(t, err)

	names, err := reg.ClassesInheriting("Ontology", InheritanceOptions{IncludeSelf: false, IncludeAbstract: false})
	require.NoError(t, err)
	assert.Equal(t, []string{"Disease"}, names)

	names, err = reg.ClassesInheriting("Ontology", InheritanceOptions{IncludeSelf: true, IncludeAbstract: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Disease", "Ontology"}, names)
}

func TestIsEdgeClass(t *testing.T) {
	reg, err := NewRegistry(diseaseOntology())
	require.NoError(t, err)

	isEdge, err := reg.IsEdgeClass("AliasOf")
	require.NoError(t, err)
	assert.True(t, isEdge)

	isEdge, err = reg.IsEdgeClass("Disease")
	require.NoError(t, err)
	assert.False(t, isEdge)

	_, err = reg.IsEdgeClass("Nope")
	assert.True(t, graphkberr.Is(err, graphkberr.KindNotFound))
}

func TestPropertiesOfFlattensInheritance(t *testing.T) {
	reg, err := NewRegistry(diseaseOntology())
	require.NoError(t, err)

	props, err := reg.PropertiesOf("Disease")
	require.NoError(t, err)
	assert.Contains(t, props, "name")
	assert.Contains(t, props, "displayName")
	assert.Contains(t, props, "subsets")
}

func TestValidatePropertiesResolvesDottedPaths(t *testing.T) {
	reg, err := NewRegistry(diseaseOntology())
	require.NoError(t, err)

	accepted, rejected, err := reg.ValidateProperties("Statement", []string{"source.sort", "@rid", "bogus", "source.missing"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"source.sort", "@rid"}, accepted)
	assert.ElementsMatch(t, []string{"bogus", "source.missing"}, rejected)
}

func TestNewRegistryRejectsUnknownParent(t *testing.T) {
	_, err := NewRegistry([]ClassDescriptor{
		{Name: "Disease", Parents: []string{"Ontology"}},
	})
	require.Error(t, err)
	assert.True(t, graphkberr.Is(err, graphkberr.KindSchema))
}
