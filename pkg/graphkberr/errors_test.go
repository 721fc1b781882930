package graphkberr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(KindValidation, "subgraph.traverse", "unknown ontology class")
	assert.Equal(t, "subgraph.traverse: unknown ontology class", plain.Error())

	cause := fmt.Errorf("connection refused")
	wrapped := Wrap(KindConnection, "store.acquire", "session pool exhausted", cause)
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.ErrorIs(t, wrapped, cause)
}

func TestIsAndKindOf(t *testing.T) {
	err := New(KindNotFound, "store.getClass", "class Disease not found")

	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindConflict))
	assert.Equal(t, KindNotFound, KindOf(err))

	wrapped := fmt.Errorf("during migration: %w", err)
	require.True(t, Is(wrapped, KindNotFound))
	assert.Equal(t, KindNotFound, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain error")))
}
