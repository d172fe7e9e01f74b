// Package spatial keeps an R-tree of mark bounding boxes for neighbour
// discovery during energy evaluation.
package spatial

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cwbudde/markedpoint/internal/geom"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/dhconnelly/rtreego"
)

var (
	// ErrDuplicateIdentity is returned by Insert when the id is already indexed.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	// ErrNotFound is returned by Remove when no entry matches both id and box.
	ErrNotFound = errors.New("entry not found")
	// ErrEmptyBox is returned by Insert for boxes with a zero-length side.
	ErrEmptyBox = errors.New("box has zero extent")
)

const (
	dimensions  = 3
	minChildren = 8
	maxChildren = 32
)

type entry struct {
	id   mark.ID
	box  geom.Box
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect {
	return e.rect
}

// Index maps bounding boxes to mark identities.
//
// Index is not safe for concurrent mutation. The owning configuration
// serializes all access.
type Index struct {
	tree    *rtreego.Rtree
	entries map[mark.ID]*entry
}

// New returns an empty index.
func New() *Index {
	return &Index{
		tree:    rtreego.NewTree(dimensions, minChildren, maxChildren),
		entries: make(map[mark.ID]*entry),
	}
}

func toRect(b geom.Box) (rtreego.Rect, error) {
	e := b.Extent()
	return rtreego.NewRect(
		rtreego.Point{b.Min.X, b.Min.Y, b.Min.Z},
		[]float64{e.X, e.Y, e.Z},
	)
}

// Insert adds an entry for id.
func (ix *Index) Insert(id mark.ID, box geom.Box) error {
	if _, ok := ix.entries[id]; ok {
		return fmt.Errorf("insert %d: %w", id, ErrDuplicateIdentity)
	}
	if box.Empty() {
		return fmt.Errorf("insert %d %s: %w", id, box, ErrEmptyBox)
	}
	rect, err := toRect(box)
	if err != nil {
		return fmt.Errorf("insert %d: %w", id, err)
	}
	e := &entry{id: id, box: box, rect: rect}
	ix.tree.Insert(e)
	ix.entries[id] = e
	return nil
}

// Remove deletes the entry matching both id and box.
func (ix *Index) Remove(id mark.ID, box geom.Box) error {
	e, ok := ix.entries[id]
	if !ok || !e.box.Equal(box) {
		return fmt.Errorf("remove %d %s: %w", id, box, ErrNotFound)
	}
	if !ix.tree.Delete(e) {
		return fmt.Errorf("remove %d: tree has no leaf for entry: %w", id, ErrNotFound)
	}
	delete(ix.entries, id)
	return nil
}

// Intersecting returns the ids of all entries whose boxes overlap box,
// sorted ascending. Boxes that only touch are not reported.
func (ix *Index) Intersecting(box geom.Box) []mark.ID {
	if len(ix.entries) == 0 || box.Empty() {
		return []mark.ID{}
	}
	rect, err := toRect(box)
	if err != nil {
		return []mark.ID{}
	}
	hits := ix.tree.SearchIntersect(rect)
	ids := make([]mark.ID, 0, len(hits))
	for _, h := range hits {
		e := h.(*entry)
		if e.box.Intersects(box) {
			ids = append(ids, e.id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Box returns the indexed box for id.
func (ix *Index) Box(id mark.ID) (geom.Box, bool) {
	e, ok := ix.entries[id]
	if !ok {
		return geom.Box{}, false
	}
	return e.box, true
}

// Contains reports whether id is indexed.
func (ix *Index) Contains(id mark.ID) bool {
	_, ok := ix.entries[id]
	return ok
}

// IDs returns every indexed id, sorted ascending.
func (ix *Index) IDs() []mark.ID {
	ids := make([]mark.ID, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of entries.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// TreeSize returns the number of objects the underlying R-tree holds.
// It differs from Len only if the index is corrupted.
func (ix *Index) TreeSize() int {
	return ix.tree.Size()
}
