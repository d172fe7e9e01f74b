package energy

import (
	"errors"
	"testing"
)

func TestCacheComputesOnce(t *testing.T) {
	c := NewCache(16)
	calls := 0
	fn := func() (float64, error) {
		calls++
		return 2.5, nil
	}

	for i := 0; i < 5; i++ {
		v, err := c.GetOrCompute(UnaryKey(1), 3, fn)
		if err != nil {
			t.Fatalf("GetOrCompute failed: %v", err)
		}
		if v != 2.5 {
			t.Errorf("Expected 2.5, got %f", v)
		}
	}
	if calls != 1 {
		t.Errorf("Expected exactly one computation, got %d", calls)
	}

	st := c.Stats()
	if st.Hits != 4 || st.Misses != 1 || st.Computes != 1 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestCacheStaleStampIsMiss(t *testing.T) {
	c := NewCache(16)
	c.Store(PairKey(2, 1), 5, 1.0)

	if _, ok := c.Lookup(PairKey(1, 2), 6); ok {
		t.Error("Stale stamp should miss")
	}
	v, ok := c.Lookup(PairKey(1, 2), 5)
	if !ok || v != 1.0 {
		t.Errorf("Expected hit with 1.0, got %f %v", v, ok)
	}

	calls := 0
	v, err := c.GetOrCompute(PairKey(1, 2), 6, func() (float64, error) {
		calls++
		return 7, nil
	})
	if err != nil || v != 7 || calls != 1 {
		t.Errorf("Expected recompute to 7, got %f err=%v calls=%d", v, err, calls)
	}
	if c.Contains(PairKey(1, 2), 5) {
		t.Error("Old stamp should have been replaced")
	}
}

func TestCacheErrorStoresNothing(t *testing.T) {
	c := NewCache(16)
	boom := errors.New("boom")

	_, err := c.GetOrCompute(UnaryKey(1), 1, func() (float64, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Failed computation stored an entry")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(16)
	c.Store(UnaryKey(1), 1, 1)
	c.Store(UnaryKey(2), 1, 1)
	c.Store(PairKey(1, 2), 1, 1)
	c.Store(PairKey(2, 3), 1, 1)

	if n := c.Invalidate(2); n != 3 {
		t.Errorf("Expected 3 entries dropped, got %d", n)
	}
	if c.Len() != 1 || !c.Contains(UnaryKey(1), 1) {
		t.Errorf("Only the unary term of 1 should remain, have %d entries", c.Len())
	}
	if n := c.Invalidate(2); n != 0 {
		t.Errorf("Second invalidate should be a no-op, dropped %d", n)
	}
	if n := c.Invalidate(1); n != 1 {
		t.Errorf("Expected 1 entry dropped, got %d", n)
	}
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(2)
	c.Store(UnaryKey(1), 1, 1)
	c.Store(UnaryKey(2), 1, 2)
	// Touch 1 so 2 is least recently used.
	if _, err := c.GetOrCompute(UnaryKey(1), 1, nil); err != nil {
		t.Fatalf("GetOrCompute failed: %v", err)
	}
	c.Store(UnaryKey(3), 1, 3)

	if c.Contains(UnaryKey(2), 1) {
		t.Error("Least recently used entry should be evicted")
	}
	if !c.Contains(UnaryKey(1), 1) || !c.Contains(UnaryKey(3), 1) {
		t.Error("Recent entries should survive")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", c.Stats().Evictions)
	}
	// The evicted key must not linger in the reverse index.
	if n := c.Invalidate(2); n != 0 {
		t.Errorf("Evicted key still referenced, dropped %d", n)
	}
}

func TestCacheLookupKeepsRecency(t *testing.T) {
	c := NewCache(2)
	c.Store(UnaryKey(1), 1, 1)
	c.Store(UnaryKey(2), 1, 2)
	c.Lookup(UnaryKey(1), 1)
	c.Store(UnaryKey(3), 1, 3)

	if c.Contains(UnaryKey(1), 1) {
		t.Error("Lookup should not refresh recency")
	}
}

func TestCachePeekDoesNotCount(t *testing.T) {
	c := NewCache(16)
	c.Store(UnaryKey(1), 1, 4)

	if v, ok := c.Peek(UnaryKey(1), 1); !ok || v != 4 {
		t.Errorf("Expected 4, got %f %v", v, ok)
	}
	if _, ok := c.Peek(UnaryKey(1), 2); ok {
		t.Error("Stale stamp should miss")
	}
	if st := c.Stats(); st.Hits != 0 || st.Misses != 0 {
		t.Errorf("Peek changed the counters: %+v", st)
	}

	c.Record(Stats{Hits: 3, Misses: 2, Computes: 2})
	if st := c.Stats(); st.Hits != 3 || st.Misses != 2 || st.Computes != 2 {
		t.Errorf("Unexpected stats after Record %+v", st)
	}
}
