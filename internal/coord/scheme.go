package coord

import (
	"fmt"
	"math"
	"strings"
)

// Scheme maps geographic bounds onto a tile grid. The scheme used to read a
// pyramid must be the one that built it; a mismatch produces silently wrong
// crops, so pyramids record their scheme name in their metadata.
type Scheme interface {
	// Name returns the identifier stored in pyramid metadata.
	Name() string

	// Resolution returns the size of one pixel, in the scheme's native
	// units, at the given zoom level and tile size.
	Resolution(zoom, tileSize int) float64

	// GridBounds returns the full tile grid at zoom.
	GridBounds(zoom int) TileBounds

	// BoundsToTiles returns the smallest tile rectangle covering b. Zero-area
	// input yields an empty rectangle.
	BoundsToTiles(b Bounds, zoom, tileSize int) (TileBounds, error)

	// TileBoundsToBounds returns the geographic extent of a tile rectangle.
	TileBoundsToBounds(tb TileBounds, zoom, tileSize int) Bounds

	// NorthUp reports whether row 0 is the northernmost row.
	NorthUp() bool
}

// Geodetic is the EPSG:4326 TMS grid: two tiles across and one down at
// zoom 1, rows counted from the south.
type Geodetic struct{}

func (Geodetic) Name() string { return "geodetic" }

func (Geodetic) NorthUp() bool { return false }

// Resolution returns degrees per pixel: 180 / (tileSize * 2^(zoom-1)).
func (Geodetic) Resolution(zoom, tileSize int) float64 {
	return 180.0 / float64(tileSize) / math.Pow(2, float64(zoom-1))
}

func (g Geodetic) GridBounds(zoom int) TileBounds {
	nx := int64(1) << uint(max(zoom, 0))
	ny := nx / 2
	if ny < 1 {
		ny = 1
	}
	return TileBounds{MinX: 0, MinY: 0, MaxX: nx - 1, MaxY: ny - 1}
}

// tileSpan is the width of one tile in degrees.
func (g Geodetic) tileSpan(zoom, tileSize int) float64 {
	return g.Resolution(zoom, tileSize) * float64(tileSize)
}

func (g Geodetic) BoundsToTiles(b Bounds, zoom, tileSize int) (TileBounds, error) {
	if err := b.Validate(); err != nil {
		return EmptyTileBounds(), err
	}
	if b.IsDegenerate() {
		return EmptyTileBounds(), nil
	}
	span := g.tileSpan(zoom, tileSize)
	tb := TileBounds{
		MinX: int64(math.Floor((b.MinLon + 180.0) / span)),
		MinY: int64(math.Floor((b.MinLat + 90.0) / span)),
		MaxX: int64(math.Ceil((b.MaxLon+180.0)/span)) - 1,
		MaxY: int64(math.Ceil((b.MaxLat+90.0)/span)) - 1,
	}
	return tb.Intersect(g.GridBounds(zoom)), nil
}

func (g Geodetic) TileBoundsToBounds(tb TileBounds, zoom, tileSize int) Bounds {
	span := g.tileSpan(zoom, tileSize)
	return Bounds{
		MinLon: float64(tb.MinX)*span - 180.0,
		MinLat: float64(tb.MinY)*span - 90.0,
		MaxLon: float64(tb.MaxX+1)*span - 180.0,
		MaxLat: float64(tb.MaxY+1)*span - 90.0,
	}
}

// SchemeByName returns the scheme registered under name. An empty name
// selects the geodetic scheme.
func SchemeByName(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "geodetic", "epsg:4326", "4326":
		return Geodetic{}, nil
	case "webmercator", "mercator", "epsg:3857", "3857":
		return WebMercator{}, nil
	default:
		return nil, fmt.Errorf("unsupported tile scheme: %q (supported: geodetic, webmercator)", name)
	}
}
