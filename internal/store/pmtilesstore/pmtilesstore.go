// Package pmtilesstore keeps a pyramid in a single PMTiles v3 archive, with
// the pyramid metadata stored as the archive's JSON metadata.
package pmtilesstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/pspoerri/mrspyramid/internal/pmtiles"
	"github.com/pspoerri/mrspyramid/internal/store"
)

// Open is the store.Factory for "pmtiles:<path>" names. The archive is read
// lazily, so a path that does not exist yet can still be written.
func Open(_ context.Context, location string) (store.Provider, error) {
	if location == "" {
		return nil, errors.New("pmtilesstore: empty path")
	}
	return &Provider{path: location}, nil
}

type Provider struct {
	path string

	mu     sync.Mutex
	reader *pmtiles.Reader
}

func (p *Provider) archive() (*pmtiles.Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader != nil {
		return p.reader, nil
	}
	if _, err := os.Stat(p.path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p.path, store.ErrNotFound)
	}
	r, err := pmtiles.Open(p.path)
	if err != nil {
		return nil, err
	}
	p.reader = r
	return r, nil
}

func (p *Provider) Metadata(context.Context) (store.Metadata, error) {
	r, err := p.archive()
	if err != nil {
		return store.Metadata{}, err
	}
	var meta store.Metadata
	ok, err := r.ReadMetadata(&meta)
	if err != nil {
		return store.Metadata{}, fmt.Errorf("%s: %w", p.path, err)
	}
	if !ok {
		return store.Metadata{}, fmt.Errorf("%s: archive has no pyramid metadata: %w", p.path, store.ErrNotFound)
	}
	return meta, nil
}

func (p *Provider) DiscoverSplits(_ context.Context, zoom, maxTiles int) ([]any, error) {
	r, err := p.archive()
	if err != nil {
		return nil, err
	}
	splits := store.PlanRowSplits("pmtiles:"+p.path, zoom, r.TilesAtZoom(zoom), maxTiles)
	return store.AsNative(splits), nil
}

func (p *Provider) OpenReader(context.Context) (store.TileReader, error) {
	r, err := p.archive()
	if err != nil {
		return nil, err
	}
	return reader{r}, nil
}

func (p *Provider) OpenWriter(_ context.Context, meta store.Metadata) (store.TileWriter, error) {
	w, err := pmtiles.NewWriter(p.path, pmtiles.WriterOptions{
		MinZoom:  meta.MinZoom,
		MaxZoom:  meta.MaxZoom,
		Bounds:   meta.Bounds,
		TileType: pmtiles.TileTypeUnknown,
	})
	if err != nil {
		return nil, err
	}
	return &writer{p: p, w: w, meta: meta}, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	return err
}

// reload drops the cached archive after it was rewritten.
func (p *Provider) reload() error {
	return p.Close()
}

type reader struct{ r *pmtiles.Reader }

func (r reader) ReadTile(_ context.Context, z int, x, y int64) ([]byte, error) {
	data, err := r.r.ReadTile(z, x, y)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, store.ErrNotFound
	}
	return data, nil
}

// Close is a no-op; the archive is owned by the provider.
func (reader) Close() error { return nil }

type writer struct {
	p      *Provider
	w      *pmtiles.Writer
	meta   store.Metadata
	levels store.LevelTracker
}

func (w *writer) WriteTile(_ context.Context, z int, x, y int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := w.w.WriteTile(z, x, y, data); err != nil {
		return err
	}
	w.levels.Add(z, x, y)
	return nil
}

func (w *writer) Finalize(context.Context) error {
	meta := w.levels.Apply(w.meta)
	w.w.SetMetadata(meta, meta.MinZoom, meta.MaxZoom)
	if err := w.w.Finalize(); err != nil {
		return err
	}
	return w.p.reload()
}

func (w *writer) Abort() {
	w.w.Abort()
}
