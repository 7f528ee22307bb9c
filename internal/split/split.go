// Package split plans how the tiles of one or more pyramids are partitioned
// into units of work. It crops per-source splits to a region and merges the
// sources into one row-major sequence in which every tile coordinate has
// exactly one owner.
package split

import (
	"fmt"

	"github.com/pspoerri/mrspyramid/internal/coord"
)

// Bounded is implemented by every native split a storage backend hands out.
// A backend whose splits cannot report their tile rectangle cannot be merged.
type Bounded interface {
	TileBounds() coord.TileBounds
}

// TiledSplit is one partition of one source at a single zoom level. Native is
// the backend's own partition descriptor; this package never looks inside it.
type TiledSplit struct {
	Bounds coord.TileBounds
	Zoom   int
	Native any
}

// New wraps a native split, taking its bounds from the split itself.
func New(zoom int, native Bounded) TiledSplit {
	return TiledSplit{Bounds: native.TileBounds(), Zoom: zoom, Native: native}
}

// WithBounds returns a copy of s advertising b instead of its own bounds.
// The native split is shared.
func (s TiledSplit) WithBounds(b coord.TileBounds) TiledSplit {
	s.Bounds = b
	return s
}

func (s TiledSplit) String() string {
	return fmt.Sprintf("z%d%s", s.Zoom, s.Bounds)
}
