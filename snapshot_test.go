package tessera_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tessera-authz/tessera"
)

func TestSnapshotOrdering(t *testing.T) {
	older := tessera.NewSnapshot()
	newer := tessera.NewSnapshot()

	require.Negative(t, older.Compare(newer))
	require.Positive(t, newer.Compare(older))
	require.Zero(t, older.Compare(older))

	require.True(t, newer.AtLeastAsFresh(older))
	require.True(t, newer.AtLeastAsFresh(newer))
	require.False(t, older.AtLeastAsFresh(newer))
}

func TestSnapshotZero(t *testing.T) {
	require.True(t, tessera.NoSnapshot.IsZero())
	require.False(t, tessera.NewSnapshot().IsZero())
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := tessera.NewSnapshot()

	parsed, err := tessera.ParseSnapshot(snap.String())
	require.NoError(t, err)
	require.Equal(t, snap, parsed)
	require.Zero(t, snap.Compare(parsed))

	_, err = tessera.ParseSnapshot("not-a-token")
	require.Error(t, err)

	require.Equal(t, snap, tessera.SnapshotFromUUID(snap.UUID()))
}
