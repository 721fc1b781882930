package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgsc/graphkb/pkg/config"
)

func TestBootstrapRegistryDeclaresDiseaseOntology(t *testing.T) {
	reg, err := bootstrapRegistry()
	require.NoError(t, err)

	isEdge, err := reg.IsEdgeClass("SubClassOf")
	require.NoError(t, err)
	assert.True(t, isEdge)

	isEdge, err = reg.IsEdgeClass("Disease")
	require.NoError(t, err)
	assert.False(t, isEdge)
}

func TestMigrationTableIsOrderable(t *testing.T) {
	table := migrationTable()
	require.NotEmpty(t, table)
	for _, step := range table {
		assert.NotEmpty(t, step.MinVersion)
		assert.NotEmpty(t, step.MaxVersion)
	}
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	cfg := &config.Config{StoreDriver: "memory"}
	eng, err := openStore(cfg)
	require.NoError(t, err)
	assert.NotNil(t, eng)
}
