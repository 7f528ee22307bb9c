package coord

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Bounds is a geographic rectangle in WGS84 degrees.
type Bounds struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

// CenterLat returns the latitude at the middle of the rectangle.
func (b Bounds) CenterLat() float64 {
	return (b.MinLat + b.MaxLat) / 2
}

// CenterLon returns the longitude at the middle of the rectangle.
func (b Bounds) CenterLon() float64 {
	return (b.MinLon + b.MaxLon) / 2
}

// IsDegenerate reports whether the rectangle has zero area.
func (b Bounds) IsDegenerate() bool {
	return b.MinLon == b.MaxLon || b.MinLat == b.MaxLat
}

// Contains reports whether o lies entirely inside b.
func (b Bounds) Contains(o Bounds) bool {
	return o.MinLon >= b.MinLon && o.MaxLon <= b.MaxLon &&
		o.MinLat >= b.MinLat && o.MaxLat <= b.MaxLat
}

// Validate rejects NaN or infinite coordinates and inverted rectangles.
func (b Bounds) Validate() error {
	vals := [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &BoundsConversionError{Bounds: b, Reason: "non-finite coordinate"}
		}
	}
	if b.MinLon > b.MaxLon {
		return &BoundsConversionError{Bounds: b, Reason: "min longitude exceeds max longitude"}
	}
	if b.MinLat > b.MaxLat {
		return &BoundsConversionError{Bounds: b, Reason: "min latitude exceeds max latitude"}
	}
	return nil
}

func (b Bounds) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// BoundsConversionError reports geographic bounds that cannot be converted
// to tile coordinates.
type BoundsConversionError struct {
	Bounds Bounds
	Reason string
}

func (e *BoundsConversionError) Error() string {
	return fmt.Sprintf("invalid bounds %s: %s", e.Bounds, e.Reason)
}

// ParseBounds parses "west,south,east,north" in degrees and validates the
// result.
func ParseBounds(s string) (Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Bounds{}, fmt.Errorf("bounds %q: want west,south,east,north", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bounds{}, fmt.Errorf("bounds %q: %w", s, err)
		}
		v[i] = f
	}
	b := Bounds{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	return b, nil
}
