package split

import (
	"container/heap"
	"fmt"

	"github.com/pspoerri/mrspyramid/internal/coord"
)

// Composite is one unit of work in a merged job. Pre holds the bounds of
// every earlier split that overlaps this one, Post those of every later one.
// A tile covered by a Pre rectangle belongs to the earlier split.
type Composite struct {
	Split  TiledSplit
	Source int
	Name   string
	Pre    []coord.TileBounds
	Post   []coord.TileBounds
}

// Bounds returns the tile rectangle of the wrapped split.
func (c Composite) Bounds() coord.TileBounds {
	return c.Split.Bounds
}

// Owns reports whether this composite is the one that emits tile (x, y).
func (c Composite) Owns(x, y int64) bool {
	if !c.Split.Bounds.Contains(x, y) {
		return false
	}
	for _, b := range c.Pre {
		if b.Contains(x, y) {
			return false
		}
	}
	return true
}

func (c Composite) String() string {
	return fmt.Sprintf("%s[%d]%s pre=%d post=%d", c.Name, c.Source, c.Split.Bounds, len(c.Pre), len(c.Post))
}

// entry is a split tagged with the source it came from.
type entry struct {
	split  TiledSplit
	source int
}

func (e entry) less(o entry) bool {
	if e.split.Bounds.Less(o.split.Bounds) {
		return true
	}
	if o.split.Bounds.Less(e.split.Bounds) {
		return false
	}
	return e.source < o.source
}

// cursor is the read position in one source list.
type cursor struct {
	source int
	splits []TiledSplit
	pos    int
}

func (c *cursor) head() entry {
	return entry{split: c.splits[c.pos], source: c.source}
}

// advance moves past empty rectangles and reports whether a split remains.
func (c *cursor) advance() bool {
	for c.pos < len(c.splits) && c.splits[c.pos].Bounds.IsEmpty() {
		c.pos++
	}
	return c.pos < len(c.splits)
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int           { return len(h) }
func (h cursorHeap) Less(i, j int) bool { return h[i].head().less(h[j].head()) }
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)        { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// Merger merges per-source split lists into one row-major sequence of
// composites. Each source list must already be in row-major order. A Merger
// is single-pass and must not be shared between goroutines.
type Merger struct {
	cursors cursorHeap
	names   []string
	// ahead holds splits pulled from the sources but not yet emitted, in
	// merged order.
	ahead []entry
	// active holds emitted splits that may still overlap a later split.
	active []coord.TileBounds
}

// NewMerger returns a merger over the given sources. The index of a source
// in the slice is its priority when two splits start at the same tile.
func NewMerger(sources [][]TiledSplit) *Merger {
	m := &Merger{}
	for i, s := range sources {
		c := &cursor{source: i, splits: s}
		if c.advance() {
			m.cursors = append(m.cursors, c)
		}
	}
	heap.Init(&m.cursors)
	return m
}

// WithNames attaches source names reported on each Composite.
func (m *Merger) WithNames(names []string) *Merger {
	m.names = names
	return m
}

// pull takes the smallest head off the heap.
func (m *Merger) pull() entry {
	c := m.cursors[0]
	e := c.head()
	c.pos++
	if c.advance() {
		heap.Fix(&m.cursors, 0)
	} else {
		heap.Pop(&m.cursors)
	}
	return e
}

// Next returns the next composite. The second result is false once every
// source is exhausted.
func (m *Merger) Next() (Composite, bool) {
	if len(m.ahead) == 0 {
		if len(m.cursors) == 0 {
			return Composite{}, false
		}
		m.ahead = append(m.ahead, m.pull())
	}
	cur := m.ahead[0]
	m.ahead = m.ahead[1:]
	b := cur.split.Bounds

	// Anything starting below the last row of cur cannot overlap it.
	for len(m.cursors) > 0 && m.cursors[0].head().split.Bounds.MinY <= b.MaxY {
		m.ahead = append(m.ahead, m.pull())
	}

	c := Composite{Split: cur.split, Source: cur.source}
	if cur.source < len(m.names) {
		c.Name = m.names[cur.source]
	}

	// Emitted splits ending above the first row of cur cannot overlap it or
	// anything after it.
	kept := m.active[:0]
	for _, a := range m.active {
		if a.MaxY < b.MinY {
			continue
		}
		kept = append(kept, a)
		if a.Intersects(b) {
			c.Pre = append(c.Pre, a)
		}
	}
	m.active = append(kept, b)

	for _, e := range m.ahead {
		if e.split.Bounds.Intersects(b) {
			c.Post = append(c.Post, e.split.Bounds)
		}
	}
	return c, true
}

// Merge drains a new Merger over sources.
func Merge(sources [][]TiledSplit) []Composite {
	var out []Composite
	m := NewMerger(sources)
	for c, ok := m.Next(); ok; c, ok = m.Next() {
		out = append(out, c)
	}
	return out
}
