package coord

import (
	"fmt"
	"math"
)

// Tile addresses a single tile in a pyramid level.
type Tile struct {
	Zoom int
	X    int64
	Y    int64
}

// Less reports whether t sorts before o in row-major order (Y, then X).
// Tiles at different zoom levels are ordered by zoom first.
func (t Tile) Less(o Tile) bool {
	if t.Zoom != o.Zoom {
		return t.Zoom < o.Zoom
	}
	if t.Y != o.Y {
		return t.Y < o.Y
	}
	return t.X < o.X
}

func (t Tile) String() string {
	return fmt.Sprintf("z%d/%d/%d", t.Zoom, t.X, t.Y)
}

// TileBounds is an inclusive rectangle of tile coordinates at a fixed zoom.
// A rectangle with MinX > MaxX or MinY > MaxY is empty.
type TileBounds struct {
	MinX, MinY int64
	MaxX, MaxY int64
}

// EmptyTileBounds returns the canonical empty rectangle.
func EmptyTileBounds() TileBounds {
	return TileBounds{MinX: math.MaxInt64, MinY: math.MaxInt64, MaxX: math.MinInt64, MaxY: math.MinInt64}
}

// NewTileBounds returns the rectangle spanning the two corners in any order.
func NewTileBounds(x1, y1, x2, y2 int64) TileBounds {
	return TileBounds{
		MinX: min(x1, x2),
		MinY: min(y1, y2),
		MaxX: max(x1, x2),
		MaxY: max(y1, y2),
	}
}

// IsEmpty reports whether the rectangle contains no tiles.
func (b TileBounds) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Width returns the number of tile columns, 0 when empty.
func (b TileBounds) Width() int64 {
	if b.IsEmpty() {
		return 0
	}
	return b.MaxX - b.MinX + 1
}

// Height returns the number of tile rows, 0 when empty.
func (b TileBounds) Height() int64 {
	if b.IsEmpty() {
		return 0
	}
	return b.MaxY - b.MinY + 1
}

// Count returns the number of tiles in the rectangle.
func (b TileBounds) Count() int64 {
	return b.Width() * b.Height()
}

// Contains reports whether the tile (x, y) lies inside the rectangle.
func (b TileBounds) Contains(x, y int64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Intersect returns the overlap of b and o. The result is empty when they
// do not overlap.
func (b TileBounds) Intersect(o TileBounds) TileBounds {
	r := TileBounds{
		MinX: max(b.MinX, o.MinX),
		MinY: max(b.MinY, o.MinY),
		MaxX: min(b.MaxX, o.MaxX),
		MaxY: min(b.MaxY, o.MaxY),
	}
	if r.IsEmpty() {
		return EmptyTileBounds()
	}
	return r
}

// Intersects reports whether b and o share at least one tile.
func (b TileBounds) Intersects(o TileBounds) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Union returns the smallest rectangle containing both b and o.
func (b TileBounds) Union(o TileBounds) TileBounds {
	if b.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return b
	}
	return TileBounds{
		MinX: min(b.MinX, o.MinX),
		MinY: min(b.MinY, o.MinY),
		MaxX: max(b.MaxX, o.MaxX),
		MaxY: max(b.MaxY, o.MaxY),
	}
}

// ExpandToInclude grows the rectangle to cover the tile (x, y).
func (b TileBounds) ExpandToInclude(x, y int64) TileBounds {
	return b.Union(TileBounds{MinX: x, MinY: y, MaxX: x, MaxY: y})
}

// Less orders rectangles by their start corner in row-major order: lower
// MinY first, ties broken by lower MinX.
func (b TileBounds) Less(o TileBounds) bool {
	if b.MinY != o.MinY {
		return b.MinY < o.MinY
	}
	return b.MinX < o.MinX
}

// Parent returns the footprint of b one zoom level up (each parent tile
// covers a 2x2 block of children).
func (b TileBounds) Parent() TileBounds {
	if b.IsEmpty() {
		return b
	}
	return TileBounds{
		MinX: floorDiv2(b.MinX),
		MinY: floorDiv2(b.MinY),
		MaxX: floorDiv2(b.MaxX),
		MaxY: floorDiv2(b.MaxY),
	}
}

// Children returns the footprint of b one zoom level down.
func (b TileBounds) Children() TileBounds {
	if b.IsEmpty() {
		return b
	}
	return TileBounds{
		MinX: b.MinX * 2,
		MinY: b.MinY * 2,
		MaxX: b.MaxX*2 + 1,
		MaxY: b.MaxY*2 + 1,
	}
}

// Tiles returns every tile inside b at the given zoom, in row-major order.
func (b TileBounds) Tiles(zoom int) []Tile {
	if b.IsEmpty() {
		return nil
	}
	tiles := make([]Tile, 0, b.Count())
	for y := b.MinY; y <= b.MaxY; y++ {
		for x := b.MinX; x <= b.MaxX; x++ {
			tiles = append(tiles, Tile{Zoom: zoom, X: x, Y: y})
		}
	}
	return tiles
}

func (b TileBounds) String() string {
	if b.IsEmpty() {
		return "[empty]"
	}
	return fmt.Sprintf("[%d,%d..%d,%d]", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

func floorDiv2(v int64) int64 {
	return v >> 1
}
