package coord

import (
	"math"
	"testing"
)

func TestWebMercator_WorldTile(t *testing.T) {
	b := WebMercator{}.TileBoundsToBounds(TileBounds{0, 0, 0, 0}, 0, 256)
	if math.Abs(b.MinLon+180) > 1e-6 || math.Abs(b.MaxLon-180) > 1e-6 {
		t.Errorf("z0 lon range = [%v, %v], want [-180, 180]", b.MinLon, b.MaxLon)
	}
	if math.Abs(b.MaxLat-MaxMercatorLat) > 1e-6 || math.Abs(b.MinLat+MaxMercatorLat) > 1e-6 {
		t.Errorf("z0 lat range = [%v, %v], want ±%v", b.MinLat, b.MaxLat, MaxMercatorLat)
	}
}

func TestWebMercator_BoundsToTiles_Zurich(t *testing.T) {
	tb, err := WebMercator{}.BoundsToTiles(Bounds{MinLon: 8.4, MinLat: 47.3, MaxLon: 8.6, MaxLat: 47.5}, 10, 256)
	if err != nil {
		t.Fatalf("BoundsToTiles: %v", err)
	}
	if tb.IsEmpty() {
		t.Fatal("BoundsToTiles returned no tiles for Zurich area")
	}
	// Zurich is roughly at tile (535, 358) at z10.
	if tb.MinX < 530 || tb.MaxX > 540 || tb.MinY < 355 || tb.MaxY > 360 {
		t.Errorf("tile range %v outside expected range for Zurich", tb)
	}
}

func TestWebMercator_Resolution(t *testing.T) {
	// Each zoom level halves the equatorial resolution.
	z0 := WebMercator{}.Resolution(0, DefaultTileSize)
	if want := EarthCircumference / 256; math.Abs(z0-want)/want > 1e-12 {
		t.Errorf("Resolution(0) = %v, want %v", z0, want)
	}
	if got := (WebMercator{}).Resolution(3, DefaultTileSize); math.Abs(got-z0/8) > 1e-6 {
		t.Errorf("Resolution(3) = %v, want %v", got, z0/8)
	}
}
