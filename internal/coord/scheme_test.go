package coord

import (
	"errors"
	"math"
	"testing"
)

func TestGeodetic_Resolution(t *testing.T) {
	g := Geodetic{}
	// Zoom 1 is two 256px tiles across 360 degrees.
	if got, want := g.Resolution(1, 256), 360.0/512.0; got != want {
		t.Errorf("Resolution(1, 256) = %v, want %v", got, want)
	}
	if got, want := g.Resolution(2, 256), 360.0/1024.0; got != want {
		t.Errorf("Resolution(2, 256) = %v, want %v", got, want)
	}
	if got, want := g.Resolution(1, 512), 360.0/1024.0; got != want {
		t.Errorf("Resolution(1, 512) = %v, want %v", got, want)
	}
}

func TestGeodetic_GridBounds(t *testing.T) {
	tests := []struct {
		zoom int
		want TileBounds
	}{
		{0, TileBounds{0, 0, 0, 0}},
		{1, TileBounds{0, 0, 1, 0}},
		{2, TileBounds{0, 0, 3, 1}},
		{10, TileBounds{0, 0, 1023, 511}},
	}
	for _, tt := range tests {
		if got := (Geodetic{}).GridBounds(tt.zoom); got != tt.want {
			t.Errorf("GridBounds(%d) = %v, want %v", tt.zoom, got, tt.want)
		}
	}
}

func TestGeodetic_BoundsToTiles(t *testing.T) {
	g := Geodetic{}
	tests := []struct {
		name string
		b    Bounds
		zoom int
		want TileBounds
	}{
		{"world z1", Bounds{-180, -90, 180, 90}, 1, TileBounds{0, 0, 1, 0}},
		{"world z3", Bounds{-180, -90, 180, 90}, 3, TileBounds{0, 0, 7, 3}},
		// Zoom 3 tiles span 45 degrees; an edge on a tile boundary stays
		// in the lower tile.
		{"aligned edges", Bounds{-135, -45, -90, 0}, 3, TileBounds{1, 1, 1, 1}},
		{"straddles", Bounds{-100, -10, 10, 10}, 3, TileBounds{1, 1, 4, 2}},
		{"outside world", Bounds{-400, -200, 400, 200}, 2, TileBounds{0, 0, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.BoundsToTiles(tt.b, tt.zoom, 256)
			if err != nil {
				t.Fatalf("BoundsToTiles: %v", err)
			}
			if got != tt.want {
				t.Errorf("BoundsToTiles(%v, %d) = %v, want %v", tt.b, tt.zoom, got, tt.want)
			}
		})
	}
}

func TestBoundsToTiles_Degenerate(t *testing.T) {
	for _, s := range []Scheme{Geodetic{}, WebMercator{}} {
		got, err := s.BoundsToTiles(Bounds{10, 10, 10, 20}, 5, 256)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", s.Name(), err)
		}
		if !got.IsEmpty() {
			t.Errorf("%s: zero-area bounds gave %v, want empty", s.Name(), got)
		}
	}
}

func TestBoundsToTiles_Invalid(t *testing.T) {
	tests := []struct {
		name string
		b    Bounds
	}{
		{"nan", Bounds{math.NaN(), 0, 10, 10}},
		{"inf", Bounds{0, 0, math.Inf(1), 10}},
		{"inverted lon", Bounds{20, 0, 10, 10}},
		{"inverted lat", Bounds{0, 20, 10, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range []Scheme{Geodetic{}, WebMercator{}} {
				_, err := s.BoundsToTiles(tt.b, 4, 256)
				var bce *BoundsConversionError
				if !errors.As(err, &bce) {
					t.Errorf("%s: err = %v, want *BoundsConversionError", s.Name(), err)
				}
			}
		})
	}
}

// Converting bounds to tiles and back must yield a rectangle that contains
// the original and exceeds it by less than one tile on each side.
func TestBoundsToTiles_RoundTrip(t *testing.T) {
	inputs := []Bounds{
		{-122.917, 37.371, -121.564, 38.226},
		{8.4, 47.3, 8.6, 47.5},
		{-180, -85, 180, 85},
		{139.5, 35.5, 139.9, 35.9},
		{-0.5, -0.5, 0.5, 0.5},
	}
	for _, s := range []Scheme{Geodetic{}, WebMercator{}} {
		for zoom := 1; zoom <= 14; zoom++ {
			for _, b := range inputs {
				tb, err := s.BoundsToTiles(b, zoom, 256)
				if err != nil {
					t.Fatalf("%s z%d: %v", s.Name(), zoom, err)
				}
				got := s.TileBoundsToBounds(tb, zoom, 256)
				const eps = 1e-9
				if got.MinLon > b.MinLon+eps || got.MaxLon < b.MaxLon-eps ||
					got.MinLat > b.MinLat+eps || got.MaxLat < b.MaxLat-eps {
					t.Errorf("%s z%d: %v -> %v -> %v does not contain input", s.Name(), zoom, b, tb, got)
				}
				single := s.TileBoundsToBounds(TileBounds{tb.MinX, tb.MinY, tb.MinX, tb.MinY}, zoom, 256)
				spanLon := single.MaxLon - single.MinLon
				if b.MinLon-got.MinLon >= spanLon || got.MaxLon-b.MaxLon >= spanLon {
					t.Errorf("%s z%d: %v overshoots %v by a tile or more", s.Name(), zoom, got, b)
				}
			}
		}
	}
}

func TestSchemeByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", "geodetic"},
		{"Geodetic", "geodetic"},
		{"EPSG:4326", "geodetic"},
		{"webmercator", "webmercator"},
		{"3857", "webmercator"},
	}
	for _, tt := range tests {
		s, err := SchemeByName(tt.name)
		if err != nil {
			t.Fatalf("SchemeByName(%q): %v", tt.name, err)
		}
		if s.Name() != tt.want {
			t.Errorf("SchemeByName(%q) = %s, want %s", tt.name, s.Name(), tt.want)
		}
	}
	if _, err := SchemeByName("lv95"); err == nil {
		t.Error("SchemeByName(lv95) succeeded, want error")
	}
}

func TestNorthUp(t *testing.T) {
	for _, s := range []Scheme{Geodetic{}, WebMercator{}} {
		row0 := s.TileBoundsToBounds(TileBounds{MinX: 0, MinY: 0, MaxX: 0, MaxY: 0}, 2, 256)
		row1 := s.TileBoundsToBounds(TileBounds{MinX: 0, MinY: 1, MaxX: 0, MaxY: 1}, 2, 256)
		if got := row0.MinLat > row1.MinLat; got != s.NorthUp() {
			t.Errorf("%s: NorthUp() = %v, but row 0 north of row 1 is %v", s.Name(), s.NorthUp(), got)
		}
	}
}
