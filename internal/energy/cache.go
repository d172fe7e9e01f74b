package energy

import (
	"fmt"

	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheSize is the capacity used when none is configured.
const DefaultCacheSize = 1 << 16

// Key identifies a cached term. Unary terms have Pair false and B zero;
// pair keys are normalized so that A < B.
type Key struct {
	A, B mark.ID
	Pair bool
}

// UnaryKey returns the key of the unary term of id.
func UnaryKey(id mark.ID) Key {
	return Key{A: id}
}

// PairKey returns the key of the binary term of a and b in either order.
func PairKey(a, b mark.ID) Key {
	if b < a {
		a, b = b, a
	}
	return Key{A: a, B: b, Pair: true}
}

func (k Key) String() string {
	if k.Pair {
		return fmt.Sprintf("(%d,%d)", k.A, k.B)
	}
	return fmt.Sprintf("(%d)", k.A)
}

type entry struct {
	stamp uint64
	value float64
}

// Stats counts cache activity.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Computes  uint64 `json:"computes"`
	Evictions uint64 `json:"evictions"`
}

// HitRate returns hits over lookups, or zero before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache memoizes energy terms keyed by mark identities and a generation
// stamp. An entry is a hit only when its stamp equals the stamp the caller
// asks for; a stale stamp is treated as a miss and recomputed.
//
// Cache is owned by a single configuration and is not safe for concurrent use.
type Cache struct {
	lru   *simplelru.LRU[Key, entry]
	refs  map[mark.ID]map[Key]struct{}
	stats Stats
}

// NewCache returns a cache holding at most size terms. A non-positive size
// selects DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c := &Cache{refs: make(map[mark.ID]map[Key]struct{})}
	l, err := simplelru.NewLRU[Key, entry](size, c.forget)
	if err != nil {
		// Only returned for non-positive sizes, excluded above.
		panic(err)
	}
	c.lru = l
	return c
}

// forget drops the reverse references of a key leaving the LRU, whether by
// eviction, removal or purge.
func (c *Cache) forget(k Key, _ entry) {
	c.unref(k.A, k)
	if k.Pair {
		c.unref(k.B, k)
	}
}

func (c *Cache) unref(id mark.ID, k Key) {
	keys := c.refs[id]
	delete(keys, k)
	if len(keys) == 0 {
		delete(c.refs, id)
	}
}

func (c *Cache) ref(id mark.ID, k Key) {
	keys, ok := c.refs[id]
	if !ok {
		keys = make(map[Key]struct{})
		c.refs[id] = keys
	}
	keys[k] = struct{}{}
}

// GetOrCompute returns the term for key at stamp, running fn exactly once on
// a miss. A failed computation stores nothing.
func (c *Cache) GetOrCompute(key Key, stamp uint64, fn func() (float64, error)) (float64, error) {
	if e, ok := c.lru.Get(key); ok && e.stamp == stamp {
		c.stats.Hits++
		return e.value, nil
	}
	c.stats.Misses++
	c.stats.Computes++
	v, err := fn()
	if err != nil {
		return 0, err
	}
	c.Store(key, stamp, v)
	return v, nil
}

// Lookup returns the term for key at stamp without changing recency.
func (c *Cache) Lookup(key Key, stamp uint64) (float64, bool) {
	e, ok := c.lru.Peek(key)
	if !ok || e.stamp != stamp {
		c.stats.Misses++
		return 0, false
	}
	c.stats.Hits++
	return e.value, true
}

// Peek is Lookup without counting.
func (c *Cache) Peek(key Key, stamp uint64) (float64, bool) {
	e, ok := c.lru.Peek(key)
	if !ok || e.stamp != stamp {
		return 0, false
	}
	return e.value, true
}

// Contains reports whether a term for key at stamp is cached, without
// touching recency or statistics.
func (c *Cache) Contains(key Key, stamp uint64) bool {
	_, ok := c.Peek(key, stamp)
	return ok
}

// Record adds lookups tallied outside the cache to its counters.
func (c *Cache) Record(s Stats) {
	c.stats.Hits += s.Hits
	c.stats.Misses += s.Misses
	c.stats.Computes += s.Computes
}

// Store records a term computed elsewhere, replacing any older stamp.
func (c *Cache) Store(key Key, stamp uint64, value float64) {
	if c.lru.Add(key, entry{stamp: stamp, value: value}) {
		c.stats.Evictions++
	}
	c.ref(key.A, key)
	if key.Pair {
		c.ref(key.B, key)
	}
}

// Invalidate drops every term that references id and returns how many
// entries were removed.
func (c *Cache) Invalidate(id mark.ID) int {
	keys := c.refs[id]
	if len(keys) == 0 {
		return 0
	}
	victims := make([]Key, 0, len(keys))
	for k := range keys {
		victims = append(victims, k)
	}
	for _, k := range victims {
		c.lru.Remove(k)
	}
	return len(victims)
}

// Len returns the number of cached terms.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return c.stats
}

// Purge drops every entry. Counters are kept.
func (c *Cache) Purge() {
	c.lru.Purge()
}
