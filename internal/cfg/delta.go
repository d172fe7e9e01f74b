package cfg

import (
	"fmt"

	"github.com/cwbudde/markedpoint/internal/energy"
	"github.com/cwbudde/markedpoint/internal/mark"
)

type term struct {
	key   energy.Key
	value float64
}

// Candidate is a priced but uncommitted change.
type Candidate struct {
	delta      Delta
	generation uint64
	before     float64
	after      float64
	terms      []term
	stats      energy.Stats
}

// Delta returns the change with fresh ids assigned.
func (cd *Candidate) Delta() Delta {
	return cd.delta
}

// Before returns the configuration energy the candidate was priced against.
func (cd *Candidate) Before() float64 {
	return cd.before
}

// Energy returns the energy the configuration would have after the change.
func (cd *Candidate) Energy() float64 {
	return cd.after
}

// lookup reads an existing term from the cache, computing it without
// storing on a miss. Activity is tallied in st rather than the cache so
// that rejected candidates leave the counters untouched.
func (c *Configuration) lookup(st *energy.Stats, key energy.Key, stamp uint64, fn func() (float64, error)) (float64, error) {
	if v, ok := c.cache.Peek(key, stamp); ok {
		st.Hits++
		return v, nil
	}
	st.Misses++
	st.Computes++
	return fn()
}

// EvaluateDelta prices delta against the current configuration. Only the
// terms touching removed or added marks are evaluated. Neither the index
// nor the cache is modified.
func (c *Configuration) EvaluateDelta(delta Delta) (*Candidate, error) {
	if delta.Empty() {
		return nil, ErrEmptyDelta
	}
	var st energy.Stats

	removed := make(map[mark.ID]*slot, len(delta.Removed))
	for _, id := range delta.Removed {
		s, ok := c.marks[id]
		if !ok {
			return nil, &MarkReferenceError{Op: "remove", ID: id, Reason: "not in configuration"}
		}
		if _, dup := removed[id]; dup {
			return nil, &MarkReferenceError{Op: "remove", ID: id, Reason: "removed twice"}
		}
		removed[id] = s
	}

	added := make([]mark.Mark, len(delta.Added))
	seen := make(map[mark.ID]struct{}, len(delta.Added))
	next := c.nextID
	for i, m := range delta.Added {
		if m == nil {
			return nil, &MarkReferenceError{Op: "add", Reason: "nil mark"}
		}
		if m.ID() == 0 {
			m = m.WithID(next)
			next++
		}
		id := m.ID()
		if m.Degenerate() {
			return nil, fmt.Errorf("add mark %d: %w", id, ErrDegenerateMark)
		}
		if _, live := c.marks[id]; live && removed[id] == nil {
			return nil, &MarkReferenceError{Op: "add", ID: id, Reason: "already in configuration"}
		}
		if _, dup := seen[id]; dup {
			return nil, &MarkReferenceError{Op: "add", ID: id, Reason: "added twice"}
		}
		seen[id] = struct{}{}
		added[i] = m
	}

	var change float64
	for _, id := range delta.Removed {
		s := removed[id]
		u, err := c.lookup(&st, energy.UnaryKey(id), s.stamp, func() (float64, error) {
			return c.unary(s.m)
		})
		if err != nil {
			return nil, err
		}
		change -= u

		for _, n := range c.index.Intersecting(s.box) {
			if n == id {
				continue
			}
			// Pairs of two removed marks are subtracted once, from the lower id.
			if _, gone := removed[n]; gone && n < id {
				continue
			}
			ns := c.marks[n]
			b, err := c.lookup(&st, energy.PairKey(id, n), pairStamp(s, ns), func() (float64, error) {
				return c.binary(s.m, ns.m)
			})
			if err != nil {
				return nil, err
			}
			change -= b
		}
	}

	terms := make([]term, 0, 4*len(added))
	for i, m := range added {
		id := m.ID()
		u, err := c.unary(m)
		if err != nil {
			return nil, err
		}
		change += u
		terms = append(terms, term{key: energy.UnaryKey(id), value: u})

		box := m.Bounds()
		for _, n := range c.index.Intersecting(box) {
			if _, gone := removed[n]; gone {
				continue
			}
			b, err := c.binary(m, c.marks[n].m)
			if err != nil {
				return nil, err
			}
			change += b
			terms = append(terms, term{key: energy.PairKey(id, n), value: b})
		}
		for _, o := range added[:i] {
			if !box.Intersects(o.Bounds()) {
				continue
			}
			b, err := c.binary(m, o)
			if err != nil {
				return nil, err
			}
			change += b
			terms = append(terms, term{key: energy.PairKey(id, o.ID()), value: b})
		}
	}

	return &Candidate{
		delta:      Delta{Removed: delta.Removed, Added: added},
		generation: c.generation,
		before:     c.energy,
		after:      c.energy + change,
		terms:      terms,
		stats:      st,
	}, nil
}

// Commit installs a candidate produced by EvaluateDelta on this
// configuration at the current generation. The generation advances by one,
// added marks are stamped with it and the candidate's freshly computed terms
// are cached under the new stamps.
func (c *Configuration) Commit(cd *Candidate) error {
	if cd.generation != c.generation {
		return fmt.Errorf("commit at generation %d: %w (evaluated at %d)", c.generation, ErrStaleCandidate, cd.generation)
	}

	readded := make(map[mark.ID]mark.Mark)
	for _, m := range cd.delta.Added {
		readded[m.ID()] = m
	}

	gone := make(map[mark.ID]struct{}, len(cd.delta.Removed))
	for _, id := range cd.delta.Removed {
		s, ok := c.marks[id]
		if !ok {
			return &InvariantError{Invariant: "index-sync", Err: fmt.Errorf("commit removes unknown mark %d", id)}
		}
		if err := c.index.Remove(id, s.box); err != nil {
			return &InvariantError{Invariant: "index-sync", Err: err}
		}
		delete(c.marks, id)
		c.cache.Invalidate(id)
		gone[id] = struct{}{}
	}

	c.generation++

	placed := make(map[mark.ID]struct{}, len(readded))
	order := c.order[:0]
	for _, id := range c.order {
		if _, ok := gone[id]; !ok {
			order = append(order, id)
			continue
		}
		if _, ok := readded[id]; ok {
			order = append(order, id)
			placed[id] = struct{}{}
		}
	}
	c.order = order

	for _, m := range cd.delta.Added {
		id := m.ID()
		box := m.Bounds()
		if err := c.index.Insert(id, box); err != nil {
			return &InvariantError{Invariant: "index-sync", Err: err}
		}
		c.marks[id] = &slot{m: m, box: box, stamp: c.generation}
		if _, ok := placed[id]; !ok {
			c.order = append(c.order, id)
		}
		if id >= c.nextID {
			c.nextID = id + 1
		}
	}

	c.cache.Record(cd.stats)
	for _, t := range cd.terms {
		c.cache.Store(t.key, c.generation, t.value)
	}
	c.energy = cd.after
	return nil
}

// Apply evaluates and commits delta in one step.
func (c *Configuration) Apply(delta Delta) error {
	cd, err := c.EvaluateDelta(delta)
	if err != nil {
		return err
	}
	return c.Commit(cd)
}

// Add inserts m, assigning a fresh id when m has none, and returns its id.
func (c *Configuration) Add(m mark.Mark) (mark.ID, error) {
	cd, err := c.EvaluateDelta(Delta{Added: []mark.Mark{m}})
	if err != nil {
		return 0, err
	}
	if err := c.Commit(cd); err != nil {
		return 0, err
	}
	return cd.delta.Added[0].ID(), nil
}

// Remove deletes the mark with the given id.
func (c *Configuration) Remove(id mark.ID) error {
	return c.Apply(Delta{Removed: []mark.ID{id}})
}

// Exchange replaces oldID with m in a single generation step and returns
// the id of the new mark.
func (c *Configuration) Exchange(oldID mark.ID, m mark.Mark) (mark.ID, error) {
	cd, err := c.EvaluateDelta(Delta{Removed: []mark.ID{oldID}, Added: []mark.Mark{m}})
	if err != nil {
		return 0, err
	}
	if err := c.Commit(cd); err != nil {
		return 0, err
	}
	return cd.delta.Added[0].ID(), nil
}
