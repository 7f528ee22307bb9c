// Package memstore keeps pyramids in process memory. Pyramids live in a
// Namespace and are addressed as "mem:<name>".
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/store"
)

type pyramid struct {
	mu    sync.RWMutex
	meta  *store.Metadata
	tiles map[coord.Tile][]byte
}

// Namespace is a set of named in-memory pyramids.
type Namespace struct {
	mu       sync.Mutex
	pyramids map[string]*pyramid
}

func NewNamespace() *Namespace {
	return &Namespace{pyramids: make(map[string]*pyramid)}
}

func (n *Namespace) get(name string) *pyramid {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.pyramids[name]
	if !ok {
		p = &pyramid{tiles: make(map[coord.Tile][]byte)}
		n.pyramids[name] = p
	}
	return p
}

// Factory returns a store.Factory opening pyramids in n. Opening an unknown
// name creates an empty pyramid that has no metadata until written.
func (n *Namespace) Factory() store.Factory {
	return func(_ context.Context, location string) (store.Provider, error) {
		if location == "" {
			return nil, fmt.Errorf("memstore: empty pyramid name")
		}
		return &Provider{name: location, p: n.get(location)}, nil
	}
}

// Put stores a pyramid directly, replacing any existing one.
func (n *Namespace) Put(name string, meta store.Metadata, tiles map[coord.Tile][]byte) {
	p := n.get(name)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.meta = &meta
	p.tiles = make(map[coord.Tile][]byte, len(tiles))
	for k, v := range tiles {
		p.tiles[k] = v
	}
}

// Provider is the store.Provider of one in-memory pyramid.
type Provider struct {
	name string
	p    *pyramid
}

func (p *Provider) Metadata(context.Context) (store.Metadata, error) {
	p.p.mu.RLock()
	defer p.p.mu.RUnlock()
	if p.p.meta == nil {
		return store.Metadata{}, fmt.Errorf("mem:%s: %w", p.name, store.ErrNotFound)
	}
	return *p.p.meta, nil
}

func (p *Provider) DiscoverSplits(_ context.Context, zoom, maxTiles int) ([]any, error) {
	p.p.mu.RLock()
	var tiles []coord.Tile
	for t := range p.p.tiles {
		if t.Zoom == zoom {
			tiles = append(tiles, t)
		}
	}
	p.p.mu.RUnlock()
	coord.SortTilesRowMajor(tiles)
	return store.AsNative(store.PlanRowSplits("mem:"+p.name, zoom, tiles, maxTiles)), nil
}

func (p *Provider) OpenReader(context.Context) (store.TileReader, error) {
	return reader{p.p}, nil
}

func (p *Provider) OpenWriter(_ context.Context, meta store.Metadata) (store.TileWriter, error) {
	return &writer{p: p.p, meta: meta, staged: make(map[coord.Tile][]byte)}, nil
}

func (p *Provider) Close() error { return nil }

type reader struct{ p *pyramid }

func (r reader) ReadTile(_ context.Context, z int, x, y int64) ([]byte, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()
	data, ok := r.p.tiles[coord.Tile{Zoom: z, X: x, Y: y}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (r reader) Close() error { return nil }

// writer stages tiles and publishes them, with the metadata, on Finalize.
type writer struct {
	mu     sync.Mutex
	p      *pyramid
	meta   store.Metadata
	staged map[coord.Tile][]byte
	levels store.LevelTracker
	done   bool
}

func (w *writer) WriteTile(_ context.Context, z int, x, y int64, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return fmt.Errorf("memstore: write after finalize")
	}
	w.staged[coord.Tile{Zoom: z, X: x, Y: y}] = append([]byte(nil), data...)
	w.levels.Add(z, x, y)
	return nil
}

func (w *writer) Finalize(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return fmt.Errorf("memstore: already finalized")
	}
	w.done = true
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	for k, v := range w.staged {
		w.p.tiles[k] = v
	}
	meta := w.levels.Apply(w.meta)
	w.p.meta = &meta
	return nil
}

func (w *writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = true
	w.staged = nil
}
