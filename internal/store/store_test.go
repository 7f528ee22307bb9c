package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/metrics"
	"github.com/pspoerri/mrspyramid/internal/store"
	"github.com/pspoerri/mrspyramid/internal/store/memstore"
)

func TestRegistry_Open(t *testing.T) {
	ctx := context.Background()
	reg := store.NewRegistry()
	reg.Register("MEM", memstore.NewNamespace().Factory())

	if got := reg.Schemes(); len(got) != 1 || got[0] != "mem" {
		t.Fatalf("Schemes = %v", got)
	}
	if _, err := reg.Open(ctx, "mem:dem"); err != nil {
		t.Fatalf("Open(mem:dem): %v", err)
	}
	if _, err := reg.Open(ctx, "Mem:dem"); err != nil {
		t.Fatalf("Open(Mem:dem): %v", err)
	}
	for _, name := range []string{"bolt:/tmp/x.db", "dem", ":dem"} {
		if _, err := reg.Open(ctx, name); !errors.Is(err, store.ErrUnknownScheme) {
			t.Errorf("Open(%q) err = %v, want ErrUnknownScheme", name, err)
		}
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name, scheme, location string
	}{
		{"pmtiles:/data/dem.pmtiles", "pmtiles", "/data/dem.pmtiles"},
		{"redis:redis://localhost:6379/0?pyramid=dem", "redis", "redis://localhost:6379/0?pyramid=dem"},
		{"mem:", "mem", ""},
	}
	for _, tt := range tests {
		scheme, location, err := store.SplitName(tt.name)
		if err != nil {
			t.Errorf("SplitName(%q): %v", tt.name, err)
			continue
		}
		if scheme != tt.scheme || location != tt.location {
			t.Errorf("SplitName(%q) = %q, %q", tt.name, scheme, location)
		}
	}
}

func rowTiles(zoom int, rows map[int64][2]int64) []coord.Tile {
	var out []coord.Tile
	for y, span := range rows {
		for x := span[0]; x <= span[1]; x++ {
			out = append(out, coord.Tile{Zoom: zoom, X: x, Y: y})
		}
	}
	coord.SortTilesRowMajor(out)
	return out
}

func TestPlanRowSplits(t *testing.T) {
	tests := []struct {
		name     string
		rows     map[int64][2]int64
		maxTiles int
		want     []coord.TileBounds
	}{
		{
			name:     "rows grouped",
			rows:     map[int64][2]int64{0: {0, 1}, 1: {0, 1}, 2: {0, 1}},
			maxTiles: 4,
			want:     []coord.TileBounds{{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, {MinX: 0, MinY: 2, MaxX: 1, MaxY: 2}},
		},
		{
			name:     "wide row cut",
			rows:     map[int64][2]int64{5: {0, 4}},
			maxTiles: 2,
			want: []coord.TileBounds{
				{MinX: 0, MinY: 5, MaxX: 1, MaxY: 5},
				{MinX: 2, MinY: 5, MaxX: 3, MaxY: 5},
				{MinX: 4, MinY: 5, MaxX: 4, MaxY: 5},
			},
		},
		{
			name:     "tight bounds",
			rows:     map[int64][2]int64{1: {3, 4}, 2: {2, 2}},
			maxTiles: 10,
			want:     []coord.TileBounds{{MinX: 2, MinY: 1, MaxX: 4, MaxY: 2}},
		},
		{
			name:     "empty",
			rows:     nil,
			maxTiles: 10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.PlanRowSplits("mem:a", 5, rowTiles(5, tt.rows), tt.maxTiles)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d splits %v, want %d", len(got), got, len(tt.want))
			}
			total := 0
			for i, s := range got {
				if s.Bounds != tt.want[i] {
					t.Errorf("split %d = %v, want %v", i, s.Bounds, tt.want[i])
				}
				if s.Tiles > tt.maxTiles {
					t.Errorf("split %d holds %d tiles", i, s.Tiles)
				}
				if i > 0 && got[i-1].Bounds.Intersects(s.Bounds) {
					t.Errorf("splits %d and %d overlap", i-1, i)
				}
				total += s.Tiles
			}
			if n := len(rowTiles(5, tt.rows)); total != n {
				t.Errorf("splits hold %d tiles, want %d", total, n)
			}
		})
	}
}

func TestMetadata_ZoomHelpers(t *testing.T) {
	m := store.Metadata{MinZoom: 2, MaxZoom: 5}
	if !m.HasZoom(3) || m.HasZoom(6) {
		t.Error("HasZoom without levels")
	}
	if got := m.ResolveZoom(9); got != 5 {
		t.Errorf("ResolveZoom(9) = %d, want 5", got)
	}
	if got := m.ResolveZoom(4); got != 4 {
		t.Errorf("ResolveZoom(4) = %d, want 4", got)
	}

	m.Levels = map[int]coord.TileBounds{}
	m.SetLevel(7, coord.NewTileBounds(0, 0, 1, 1))
	m.SetLevel(4, coord.NewTileBounds(0, 0, 0, 0))
	if m.MinZoom != 4 || m.MaxZoom != 7 {
		t.Errorf("zoom range = %d..%d, want 4..7", m.MinZoom, m.MaxZoom)
	}
	if m.HasZoom(5) {
		t.Error("HasZoom(5) true for a missing level")
	}
	if got := m.Zooms(); len(got) != 2 || got[0] != 4 || got[1] != 7 {
		t.Errorf("Zooms = %v", got)
	}
}

func TestMetadata_JSONNaN(t *testing.T) {
	in := store.Metadata{
		Name: "dem", Scheme: "geodetic", TileSize: 256, MinZoom: 0, MaxZoom: 3,
		Bands: 2, DataType: "float32", NoData: store.NoData{math.NaN(), -1},
		Levels: map[int]coord.TileBounds{3: coord.NewTileBounds(1, 2, 3, 4)},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out store.Metadata
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal(%s): %v", data, err)
	}
	if !math.IsNaN(out.NoData[0]) || out.NoData[1] != -1 {
		t.Errorf("NoData = %v", out.NoData)
	}
	if out.Levels[3] != in.Levels[3] {
		t.Errorf("Levels = %v", out.Levels)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestMetadata_Validate(t *testing.T) {
	good := store.Metadata{Scheme: "webmercator", TileSize: 256, Bands: 1, DataType: "int32", NoData: store.NoData{0}}
	tests := []struct {
		name   string
		mutate func(*store.Metadata)
	}{
		{"scheme", func(m *store.Metadata) { m.Scheme = "utm" }},
		{"data type", func(m *store.Metadata) { m.DataType = "uint8" }},
		{"tile size", func(m *store.Metadata) { m.TileSize = 0 }},
		{"bands", func(m *store.Metadata) { m.Bands = 0 }},
		{"nodata count", func(m *store.Metadata) { m.NoData = nil }},
		{"zoom order", func(m *store.Metadata) { m.MinZoom = 4 }},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid metadata rejected: %v", err)
	}
	for _, tt := range tests {
		m := good
		tt.mutate(&m)
		if err := m.Validate(); err == nil {
			t.Errorf("%s: invalid metadata accepted", tt.name)
		}
	}
}

type countingReader struct {
	tiles map[coord.Tile][]byte
	calls int
}

func (c *countingReader) ReadTile(_ context.Context, z int, x, y int64) ([]byte, error) {
	c.calls++
	d, ok := c.tiles[coord.Tile{Zoom: z, X: x, Y: y}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (c *countingReader) Close() error { return nil }

func TestCachedReader(t *testing.T) {
	ctx := context.Background()
	next := &countingReader{tiles: map[coord.Tile][]byte{{Zoom: 1, X: 0, Y: 0}: []byte("t")}}
	set := metrics.NewSet(prometheus.NewRegistry())
	c, err := store.NewCachedReader(next, 8, set)
	if err != nil {
		t.Fatal(err)
	}

	for range 3 {
		data, err := c.ReadTile(ctx, 1, 0, 0)
		if err != nil || string(data) != "t" {
			t.Fatalf("ReadTile = %q, %v", data, err)
		}
		if _, err := c.ReadTile(ctx, 1, 1, 0); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("missing tile err = %v", err)
		}
	}
	if next.calls != 2 {
		t.Errorf("underlying reads = %d, want 2", next.calls)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Errorf("Len after Close = %d", c.Len())
	}
}

func TestNewCachedReader_BadSize(t *testing.T) {
	if _, err := store.NewCachedReader(&countingReader{}, 0, nil); err == nil {
		t.Error("size 0 accepted")
	}
}
