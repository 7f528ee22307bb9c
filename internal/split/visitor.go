package split

import "github.com/pspoerri/mrspyramid/internal/coord"

// Visitor decides whether a split's tile rectangle takes part in a job and,
// if so, which part of it does.
type Visitor interface {
	Accept(b coord.TileBounds) (coord.TileBounds, bool)
}

// AcceptAll passes every rectangle through unchanged.
type AcceptAll struct{}

func (AcceptAll) Accept(b coord.TileBounds) (coord.TileBounds, bool) {
	return b, true
}

// RegionVisitor narrows rectangles to a crop region and rejects rectangles
// that miss it.
type RegionVisitor struct {
	Region coord.TileBounds
}

func (v RegionVisitor) Accept(b coord.TileBounds) (coord.TileBounds, bool) {
	r := b.Intersect(v.Region)
	if r.IsEmpty() {
		return r, false
	}
	return r, true
}

// Iterator walks a split list through a Visitor, yielding the accepted
// splits with their narrowed bounds in input order.
type Iterator struct {
	splits  []TiledSplit
	visitor Visitor
	pos     int
}

// NewIterator returns an iterator over splits. A nil visitor accepts all.
func NewIterator(splits []TiledSplit, visitor Visitor) *Iterator {
	if visitor == nil {
		visitor = AcceptAll{}
	}
	return &Iterator{splits: splits, visitor: visitor}
}

// Next returns the next accepted split. The second result is false once the
// list is exhausted.
func (it *Iterator) Next() (TiledSplit, bool) {
	for it.pos < len(it.splits) {
		s := it.splits[it.pos]
		it.pos++
		if b, ok := it.visitor.Accept(s.Bounds); ok {
			return s.WithBounds(b), true
		}
	}
	return TiledSplit{}, false
}

// Filter crops splits to the region. With no region, or no splits, the input
// slice is returned as is. Splits outside the region are dropped and splits
// partly inside it are narrowed; order is preserved.
func Filter(splits []TiledSplit, crop *coord.TileBounds) []TiledSplit {
	if crop == nil || len(splits) == 0 {
		return splits
	}
	out := make([]TiledSplit, 0, len(splits))
	it := NewIterator(splits, RegionVisitor{Region: *crop})
	for s, ok := it.Next(); ok; s, ok = it.Next() {
		out = append(out, s)
	}
	return out
}
