// Package store defines the storage contract for tiled raster pyramids and
// a registry that selects a backend from the prefix of a pyramid name.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned by TileReader.ReadTile for absent tiles and by
	// providers for absent pyramids.
	ErrNotFound = errors.New("store: not found")
	// ErrUnknownScheme is returned by Registry.Open for an unregistered prefix.
	ErrUnknownScheme = errors.New("store: unknown scheme")
)

// Provider gives access to one pyramid.
type Provider interface {
	Metadata(ctx context.Context) (Metadata, error)
	// DiscoverSplits partitions the tiles at zoom into native splits of at
	// most maxTiles tiles each, in row-major order.
	DiscoverSplits(ctx context.Context, zoom, maxTiles int) ([]any, error)
	OpenReader(ctx context.Context) (TileReader, error)
	OpenWriter(ctx context.Context, meta Metadata) (TileWriter, error)
	Close() error
}

type TileReader interface {
	ReadTile(ctx context.Context, z int, x, y int64) ([]byte, error)
	Close() error
}

// TileWriter receives the tiles of a pyramid. The metadata passed to
// OpenWriter is published by Finalize, with its levels replaced by the
// extents actually written. Backends that write in batches may expose tiles
// before that.
type TileWriter interface {
	WriteTile(ctx context.Context, z int, x, y int64, data []byte) error
	Finalize(ctx context.Context) error
	Abort()
}

// Factory opens the pyramid at location, the part of the name after the
// scheme prefix.
type Factory func(ctx context.Context, location string) (Provider, error)

// Registry maps name prefixes such as "pmtiles" to backend factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs f under scheme, replacing any earlier factory.
func (r *Registry) Register(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(scheme)] = f
}

// Schemes lists the registered prefixes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for s := range r.factories {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open resolves name, written "scheme:location", to a provider.
func (r *Registry) Open(ctx context.Context, name string) (Provider, error) {
	scheme, location, err := SplitName(name)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.factories[scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q in %q (registered: %s)", ErrUnknownScheme, scheme, name, strings.Join(r.Schemes(), ", "))
	}
	p, err := f(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return p, nil
}

// SplitName separates the scheme prefix from a pyramid name.
func SplitName(name string) (scheme, location string, err error) {
	i := strings.IndexByte(name, ':')
	if i <= 0 {
		return "", "", fmt.Errorf("%w: %q has no scheme prefix", ErrUnknownScheme, name)
	}
	return strings.ToLower(name[:i]), name[i+1:], nil
}
