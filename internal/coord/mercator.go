package coord

import "math"

const (
	// EarthCircumference is the equatorial circumference in meters at zoom 0.
	EarthCircumference = 40075016.685578488
	// DefaultTileSize is the standard tile dimension.
	DefaultTileSize = 256
	// MaxMercatorLat is the latitude at which the square web mercator world ends.
	MaxMercatorLat = 85.05112877980659
)

// WebMercator is the EPSG:3857 XYZ grid: one tile at zoom 0, rows counted
// from the north.
type WebMercator struct{}

func (WebMercator) Name() string { return "webmercator" }

func (WebMercator) NorthUp() bool { return true }

// Resolution returns meters per pixel at the equator.
func (WebMercator) Resolution(zoom, tileSize int) float64 {
	return EarthCircumference / math.Pow(2, float64(zoom)) / float64(tileSize)
}

func (WebMercator) GridBounds(zoom int) TileBounds {
	n := int64(1) << uint(max(zoom, 0))
	return TileBounds{MinX: 0, MinY: 0, MaxX: n - 1, MaxY: n - 1}
}

func (w WebMercator) BoundsToTiles(b Bounds, zoom, tileSize int) (TileBounds, error) {
	if err := b.Validate(); err != nil {
		return EmptyTileBounds(), err
	}
	if b.IsDegenerate() {
		return EmptyTileBounds(), nil
	}
	n := math.Pow(2, float64(zoom))
	// Northern edge -> smallest row.
	minFX, minFY := lonLatToFractionalTile(b.MinLon, b.MaxLat, n)
	maxFX, maxFY := lonLatToFractionalTile(b.MaxLon, b.MinLat, n)
	tb := TileBounds{
		MinX: int64(math.Floor(minFX)),
		MinY: int64(math.Floor(minFY)),
		MaxX: int64(math.Ceil(maxFX)) - 1,
		MaxY: int64(math.Ceil(maxFY)) - 1,
	}
	return tb.Intersect(w.GridBounds(zoom)), nil
}

func (WebMercator) TileBoundsToBounds(tb TileBounds, zoom, tileSize int) Bounds {
	n := math.Pow(2, float64(zoom))
	return Bounds{
		MinLon: float64(tb.MinX)/n*360.0 - 180.0,
		MaxLon: float64(tb.MaxX+1)/n*360.0 - 180.0,
		MinLat: mercatorRowLat(float64(tb.MaxY+1), n),
		MaxLat: mercatorRowLat(float64(tb.MinY), n),
	}
}

// lonLatToFractionalTile converts WGS84 lon/lat to fractional tile
// coordinates for a grid of n x n tiles. Latitude is clamped to the
// mercator limit.
func lonLatToFractionalTile(lon, lat, n float64) (fx, fy float64) {
	lat = math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
	fx = (lon + 180.0) / 360.0 * n
	latRad := lat * math.Pi / 180.0
	fy = (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n
	return
}

// mercatorRowLat returns the latitude of the northern edge of row y.
func mercatorRowLat(y, n float64) float64 {
	return math.Atan(math.Sinh(math.Pi*(1.0-2.0*y/n))) * 180.0 / math.Pi
}
