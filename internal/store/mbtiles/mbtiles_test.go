package mbtiles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/store"
)

func openTemp(t *testing.T) store.Provider {
	t.Helper()
	p, err := Open(context.Background(), filepath.Join(t.TempDir(), "dem.mbtiles"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestProvider_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := openTemp(t)

	if _, err := p.Metadata(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Metadata of empty database: err = %v", err)
	}

	meta := store.Metadata{Name: "dem", Scheme: "webmercator", TileSize: 256, Bands: 1, DataType: "float64", NoData: store.NoData{-1}}
	w, err := p.OpenWriter(ctx, meta)
	if err != nil {
		t.Fatal(err)
	}
	for _, tl := range []coord.Tile{{Zoom: 2, X: 1, Y: 1}, {Zoom: 2, X: 3, Y: 1}, {Zoom: 2, X: 0, Y: 2}} {
		if err := w.WriteTile(ctx, tl.Zoom, tl.X, tl.Y, []byte(tl.String())); err != nil {
			t.Fatal(err)
		}
	}
	// Overwrite keeps the last payload.
	if err := w.WriteTile(ctx, 2, 0, 2, []byte("again")); err != nil {
		t.Fatal(err)
	}
	if err := w.Finalize(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := p.Metadata(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "dem" || got.Levels[2] != coord.NewTileBounds(0, 1, 3, 2) {
		t.Errorf("metadata = %+v", got)
	}

	r, _ := p.OpenReader(ctx)
	data, err := r.ReadTile(ctx, 2, 0, 2)
	if err != nil || string(data) != "again" {
		t.Errorf("ReadTile = %q, %v", data, err)
	}
	if _, err := r.ReadTile(ctx, 2, 2, 2); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing tile err = %v", err)
	}

	native, err := p.DiscoverSplits(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(native) != 2 {
		t.Fatalf("got %d splits, want 2", len(native))
	}
	if s := native[0].(store.RowSplit); s.Bounds != coord.NewTileBounds(1, 1, 3, 1) || s.Tiles != 2 {
		t.Errorf("split 0 = %v", s)
	}
}

func TestWriter_AbortRollsBack(t *testing.T) {
	ctx := context.Background()
	p := openTemp(t)
	w, err := p.OpenWriter(ctx, store.Metadata{Name: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTile(ctx, 1, 0, 0, []byte{1}); err != nil {
		t.Fatal(err)
	}
	w.Abort()

	r, _ := p.OpenReader(ctx)
	if _, err := r.ReadTile(ctx, 1, 0, 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("aborted tile readable: err = %v", err)
	}
	if _, err := p.Metadata(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("metadata after abort: err = %v", err)
	}
}

func TestOpen_MissingFileStaysMissing(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "typo")
	path := filepath.Join(dir, "dem.mbtiles")

	p, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Metadata(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Metadata err = %v, want ErrNotFound", err)
	}
	if native, err := p.DiscoverSplits(ctx, 2, 10); err != nil || len(native) != 0 {
		t.Errorf("DiscoverSplits = %v, %v", native, err)
	}
	r, _ := p.OpenReader(ctx)
	if _, err := r.ReadTile(ctx, 2, 0, 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReadTile err = %v, want ErrNotFound", err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("reading created %s: stat err = %v", dir, err)
	}
}
