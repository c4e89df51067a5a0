package tessera_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tessera-authz/tessera"
)

func TestRegistry(t *testing.T) {
	v1, err := tessera.NewVersionedModel("acme", "v1", tessera.ObjectMap{
		"user": tessera.RelationMap{},
		"doc": tessera.RelationMap{
			"viewer": tessera.Rule{},
		},
	})
	require.NoError(t, err)

	v2, err := tessera.NewVersionedModel("acme", "v2", tessera.ObjectMap{
		"user": tessera.RelationMap{},
		"doc": tessera.RelationMap{
			"owner":  tessera.Rule{},
			"viewer": tessera.AnyOf(tessera.Rule{}, tessera.Rule{InheritIf: "owner"}),
		},
	})
	require.NoError(t, err)

	registry := tessera.NewRegistry()
	require.NoError(t, registry.Add(v1))
	require.NoError(t, registry.Add(v2))

	got, ok := registry.Lookup("acme", "v1")
	require.True(t, ok)
	require.Same(t, v1, got)

	got, ok = registry.Lookup("acme", "v2")
	require.True(t, ok)
	require.Same(t, v2, got)

	_, ok = registry.Lookup("acme", "v3")
	require.False(t, ok)
	_, ok = registry.Lookup("other", "v1")
	require.False(t, ok)

	// versions are immutable once registered
	err = registry.Add(v1)
	require.ErrorIs(t, err, tessera.ErrDuplicateModel)
}
