package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/store"
)

func testMeta() store.Metadata {
	return store.Metadata{
		Name: "dem", Scheme: "webmercator", TileSize: 4,
		MinZoom: 3, MaxZoom: 3, Bands: 1, DataType: "int32",
		NoData: store.NoData{-9999},
	}
}

func TestProvider_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	ns := NewNamespace()
	p, err := ns.Factory()(ctx, "dem")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Metadata(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Metadata before write: err = %v, want ErrNotFound", err)
	}

	w, err := p.OpenWriter(ctx, testMeta())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTile(ctx, 3, 1, 2, []byte("a")); err != nil {
		t.Fatal(err)
	}

	r, _ := p.OpenReader(ctx)
	if _, err := r.ReadTile(ctx, 3, 1, 2); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("tile visible before Finalize: err = %v", err)
	}
	if err := w.Finalize(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTile(ctx, 3, 0, 0, []byte("b")); err == nil {
		t.Error("WriteTile after Finalize succeeded")
	}

	data, err := r.ReadTile(ctx, 3, 1, 2)
	if err != nil || string(data) != "a" {
		t.Fatalf("ReadTile = %q, %v", data, err)
	}
	meta, err := p.Metadata(ctx)
	if err != nil || meta.Name != "dem" {
		t.Fatalf("Metadata = %+v, %v", meta, err)
	}
}

func TestProvider_AbortDiscards(t *testing.T) {
	ctx := context.Background()
	ns := NewNamespace()
	p, _ := ns.Factory()(ctx, "dem")
	w, _ := p.OpenWriter(ctx, testMeta())
	_ = w.WriteTile(ctx, 3, 1, 2, []byte("a"))
	w.Abort()

	r, _ := p.OpenReader(ctx)
	if _, err := r.ReadTile(ctx, 3, 1, 2); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("aborted tile readable: err = %v", err)
	}
}

func TestProvider_DiscoverSplits(t *testing.T) {
	ctx := context.Background()
	ns := NewNamespace()
	tiles := map[coord.Tile][]byte{}
	for y := int64(2); y <= 4; y++ {
		for x := int64(0); x <= 1; x++ {
			tiles[coord.Tile{Zoom: 3, X: x, Y: y}] = []byte{1}
		}
	}
	tiles[coord.Tile{Zoom: 2, X: 0, Y: 0}] = []byte{1}
	ns.Put("dem", testMeta(), tiles)

	p, _ := ns.Factory()(ctx, "dem")
	native, err := p.DiscoverSplits(ctx, 3, 4)
	if err != nil {
		t.Fatal(err)
	}
	want := []coord.TileBounds{
		{MinX: 0, MinY: 2, MaxX: 1, MaxY: 3},
		{MinX: 0, MinY: 4, MaxX: 1, MaxY: 4},
	}
	if len(native) != len(want) {
		t.Fatalf("got %d splits, want %d", len(native), len(want))
	}
	for i, n := range native {
		rs := n.(store.RowSplit)
		if rs.Bounds != want[i] {
			t.Errorf("split %d = %v, want %v", i, rs.Bounds, want[i])
		}
		if rs.Source != "mem:dem" || rs.Zoom != 3 {
			t.Errorf("split %d = %v", i, rs)
		}
	}
}

func TestFactory_EmptyName(t *testing.T) {
	if _, err := NewNamespace().Factory()(context.Background(), ""); err == nil {
		t.Error("empty name accepted")
	}
}
