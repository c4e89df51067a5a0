package tessera

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecisionCache(t *testing.T) {
	cache := newDecisionCache(100, time.Minute)
	defer cache.stop()

	tuple := NewTuple("doc", "mydoc", "viewer", "user", "myuser")
	older := NewSnapshot()
	newer := NewSnapshot()

	_, ok := cache.get(tuple, older)
	require.False(t, ok)

	cache.set(tuple, older, true)
	allowed, ok := cache.get(tuple, older)
	require.True(t, ok)
	require.True(t, allowed)

	// the snapshot is part of the key, an entry never answers for another view
	_, ok = cache.get(tuple, newer)
	require.False(t, ok)

	cache.set(tuple, newer, false)
	allowed, ok = cache.get(tuple, newer)
	require.True(t, ok)
	require.False(t, allowed)
}

func TestDecisionCacheNil(t *testing.T) {
	var cache *decisionCache

	// a disabled cache is a nil receiver, every operation is a no-op
	cache.set(NewTuple("doc", "d", "viewer", "user", "u"), NewSnapshot(), true)
	_, ok := cache.get(NewTuple("doc", "d", "viewer", "user", "u"), NewSnapshot())
	require.False(t, ok)
	cache.stop()
}
