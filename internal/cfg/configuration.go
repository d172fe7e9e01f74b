// Package cfg holds the evolving set of marks together with the spatial index
// and energy cache it owns.
//
// Every structural change goes through a Delta: EvaluateDelta prices the
// change without touching the index or cache, and Commit installs it. A
// candidate that is never committed leaves no trace, which is what lets the
// optimizer reject proposals for free.
package cfg

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/markedpoint/internal/energy"
	"github.com/cwbudde/markedpoint/internal/geom"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/spatial"
)

// ErrEmptyDelta is returned when a delta neither removes nor adds marks.
var ErrEmptyDelta = errors.New("delta changes nothing")

// Options configures a Configuration.
type Options struct {
	// Energy defaults to a zero Constant.
	Energy energy.Function
	// Context is passed to every energy evaluation.
	Context *energy.Context
	// CacheSize bounds the energy cache; zero selects energy.DefaultCacheSize.
	CacheSize int
}

// Delta describes a structural change. Removed marks leave, Added marks
// enter. A mark that is removed and re-added under the same id within one
// delta keeps its position in the export order. Added marks with a zero id
// receive fresh ids in order.
type Delta struct {
	Removed []mark.ID
	Added   []mark.Mark
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return len(d.Removed) == 0 && len(d.Added) == 0
}

type slot struct {
	m     mark.Mark
	box   geom.Box
	stamp uint64
}

// Configuration is the current set of marks.
//
// A Configuration is owned by one optimization loop and is not safe for
// concurrent use.
type Configuration struct {
	fn    energy.Function
	ectx  *energy.Context
	index *spatial.Index
	cache *energy.Cache

	marks map[mark.ID]*slot
	order []mark.ID

	generation uint64
	nextID     mark.ID
	energy     float64
}

// New returns an empty configuration.
func New(opts Options) *Configuration {
	fn := opts.Energy
	if fn == nil {
		fn = energy.Constant{}
	}
	ectx := opts.Context
	if ectx == nil {
		ectx = &energy.Context{}
	}
	return &Configuration{
		fn:     fn,
		ectx:   ectx,
		index:  spatial.New(),
		cache:  energy.NewCache(opts.CacheSize),
		marks:  make(map[mark.ID]*slot),
		nextID: 1,
	}
}

// FromMarks builds a configuration holding marks in the given order at
// generation zero and computes its energy. Marks with a zero id receive
// fresh ids.
func FromMarks(ctx context.Context, marks []mark.Mark, opts Options) (*Configuration, error) {
	c := New(opts)
	for _, m := range marks {
		if id := m.ID(); id >= c.nextID {
			c.nextID = id + 1
		}
	}
	for _, m := range marks {
		if m.ID() == 0 {
			m = m.WithID(c.nextID)
			c.nextID++
		}
		id := m.ID()
		if m.Degenerate() {
			return nil, fmt.Errorf("initial mark %d: %w", id, ErrDegenerateMark)
		}
		if _, ok := c.marks[id]; ok {
			return nil, &MarkReferenceError{Op: "add", ID: id, Reason: "duplicate id in initial marks"}
		}
		box := m.Bounds()
		if err := c.index.Insert(id, box); err != nil {
			return nil, fmt.Errorf("initial mark %d: %w", id, err)
		}
		c.marks[id] = &slot{m: m, box: box}
		c.order = append(c.order, id)
	}

	e, err := c.TotalEnergy(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial energy: %w", err)
	}
	c.energy = e
	return c, nil
}

// Generation returns the number of committed changes.
func (c *Configuration) Generation() uint64 {
	return c.generation
}

// Len returns the number of marks.
func (c *Configuration) Len() int {
	return len(c.order)
}

// Energy returns the aggregate energy maintained across commits.
func (c *Configuration) Energy() float64 {
	return c.energy
}

// NextID returns the id the next fresh mark will receive. It does not
// reserve the id; only a commit advances the allocator.
func (c *Configuration) NextID() mark.ID {
	return c.nextID
}

// Get returns the mark with the given id.
func (c *Configuration) Get(id mark.ID) (mark.Mark, bool) {
	s, ok := c.marks[id]
	if !ok {
		return nil, false
	}
	return s.m, true
}

// At returns the i-th mark in export order.
func (c *Configuration) At(i int) mark.Mark {
	return c.marks[c.order[i]].m
}

// Marks returns the marks in export order.
func (c *Configuration) Marks() []mark.Mark {
	out := make([]mark.Mark, len(c.order))
	for i, id := range c.order {
		out[i] = c.marks[id].m
	}
	return out
}

// Stamp returns the generation at which the mark's current value was installed.
func (c *Configuration) Stamp(id mark.ID) (uint64, bool) {
	s, ok := c.marks[id]
	if !ok {
		return 0, false
	}
	return s.stamp, true
}

// Neighbors returns the ids of marks whose bounds intersect box.
func (c *Configuration) Neighbors(box geom.Box) []mark.ID {
	return c.index.Intersecting(box)
}

// CacheStats returns the energy cache counters.
func (c *Configuration) CacheStats() energy.Stats {
	return c.cache.Stats()
}

// CacheLen returns the number of cached energy terms.
func (c *Configuration) CacheLen() int {
	return c.cache.Len()
}

// EnergyContext returns the context passed to energy evaluations.
func (c *Configuration) EnergyContext() *energy.Context {
	return c.ectx
}

func pairStamp(a, b *slot) uint64 {
	return max(a.stamp, b.stamp)
}

// binary evaluates the pair term with the lower id first.
func (c *Configuration) binary(a, b mark.Mark) (float64, error) {
	if b.ID() < a.ID() {
		a, b = b, a
	}
	v, err := c.fn.Binary(a, b, c.ectx)
	if err != nil {
		return 0, fmt.Errorf("binary term %s: %w", energy.PairKey(a.ID(), b.ID()), err)
	}
	return v, nil
}

func (c *Configuration) unary(m mark.Mark) (float64, error) {
	v, err := c.fn.Unary(m, c.ectx)
	if err != nil {
		return 0, fmt.Errorf("unary term %s: %w", energy.UnaryKey(m.ID()), err)
	}
	return v, nil
}

// TotalEnergy recomputes the energy of the whole configuration, reusing and
// filling the cache. Pairs come from the spatial index, each counted once.
func (c *Configuration) TotalEnergy(ctx context.Context) (float64, error) {
	var total float64
	for i, id := range c.order {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		s := c.marks[id]
		u, err := c.cache.GetOrCompute(energy.UnaryKey(id), s.stamp, func() (float64, error) {
			return c.unary(s.m)
		})
		if err != nil {
			return 0, err
		}
		total += u

		for _, n := range c.index.Intersecting(s.box) {
			if n <= id {
				continue
			}
			ns := c.marks[n]
			b, err := c.cache.GetOrCompute(energy.PairKey(id, n), pairStamp(s, ns), func() (float64, error) {
				return c.binary(s.m, ns.m)
			})
			if err != nil {
				return 0, err
			}
			total += b
		}
	}
	return total, nil
}

// Verify checks that the spatial index holds exactly the boxes of the
// current marks.
func (c *Configuration) Verify() error {
	n := len(c.marks)
	if c.index.Len() != n || c.index.TreeSize() != n || len(c.order) != n {
		return &InvariantError{
			Invariant: "index-sync",
			Err:       fmt.Errorf("marks=%d order=%d index=%d tree=%d", n, len(c.order), c.index.Len(), c.index.TreeSize()),
		}
	}
	for _, id := range c.order {
		s, ok := c.marks[id]
		if !ok {
			return &InvariantError{Invariant: "index-sync", Err: fmt.Errorf("ordered id %d has no mark", id)}
		}
		if s.m.ID() != id {
			return &InvariantError{Invariant: "identity", Err: fmt.Errorf("slot %d holds mark %d", id, s.m.ID())}
		}
		b, ok := c.index.Box(id)
		if !ok || !b.Equal(s.box) {
			return &InvariantError{Invariant: "index-sync", Err: fmt.Errorf("mark %d: indexed box %s, want %s", id, b, s.box)}
		}
	}
	return nil
}

// VerifyEnergy recomputes the total energy and compares it with the
// incrementally maintained value. A relative drift above tolerance is an
// invariant violation.
func (c *Configuration) VerifyEnergy(ctx context.Context, tolerance float64) error {
	total, err := c.TotalEnergy(ctx)
	if err != nil {
		return fmt.Errorf("recompute energy: %w", err)
	}
	scale := math.Max(1, math.Abs(total))
	if drift := math.Abs(total-c.energy) / scale; drift > tolerance || math.IsNaN(drift) {
		return &InvariantError{
			Invariant: "energy-drift",
			Err:       fmt.Errorf("maintained %g, recomputed %g", c.energy, total),
		}
	}
	return nil
}
