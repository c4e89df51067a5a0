package tessera

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/karlseguin/ccache/v3"
)

// decisionCache memoizes resolved sub-checks, both within one check's plan
// walk (the same subtree requested by sibling branches) and across checks
// pinned to the same snapshot. The snapshot token is part of the key, so an
// entry computed at an older snapshot can never answer a newer check;
// obsolete entries simply age out of the LRU. Correctness never depends on
// the cache, only on key validity.
type decisionCache struct {
	cache *ccache.Cache[bool]
	ttl   time.Duration
}

func newDecisionCache(maxSize int64, ttl time.Duration) *decisionCache {
	return &decisionCache{
		cache: ccache.New(ccache.Configure[bool]().MaxSize(maxSize)),
		ttl:   ttl,
	}
}

// cacheKey hashes (object, relation, subject, snapshot) into a stable key.
// Fields are separated so that ("ab","c") and ("a","bc") cannot collide.
func cacheKey(t Tuple, at Snapshot) string {
	h := xxhash.New()
	_, _ = h.WriteString(t.String())
	_, _ = h.WriteString("@")
	_, _ = h.WriteString(at.String())
	return strconv.FormatUint(h.Sum64(), 16)
}

func (c *decisionCache) get(t Tuple, at Snapshot) (bool, bool) {
	if c == nil {
		return false, false
	}
	item := c.cache.Get(cacheKey(t, at))
	if item == nil || item.Expired() {
		return false, false
	}
	return item.Value(), true
}

// set stores the outcome. Concurrent writers for the same key race benignly:
// values for an identical key+snapshot are idempotent, so last-writer-wins.
func (c *decisionCache) set(t Tuple, at Snapshot, allowed bool) {
	if c == nil {
		return
	}
	c.cache.Set(cacheKey(t, at), allowed, c.ttl)
}

func (c *decisionCache) stop() {
	if c != nil {
		c.cache.Stop()
	}
}
