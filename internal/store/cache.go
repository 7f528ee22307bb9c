package store

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/metrics"
)

// CachedReader keeps the most recently read tiles of a TileReader in memory.
// Absent tiles are cached too, so repeated reads of empty areas stay cheap.
// Safe for concurrent use if the wrapped reader is.
type CachedReader struct {
	next    TileReader
	cache   *lru.Cache[coord.Tile, []byte]
	metrics *metrics.Set
}

// NewCachedReader wraps next with an LRU of size tiles. m may be nil.
func NewCachedReader(next TileReader, size int, m *metrics.Set) (*CachedReader, error) {
	c, err := lru.New[coord.Tile, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating tile cache: %w", err)
	}
	return &CachedReader{next: next, cache: c, metrics: m}, nil
}

func (c *CachedReader) ReadTile(ctx context.Context, z int, x, y int64) ([]byte, error) {
	key := coord.Tile{Zoom: z, X: x, Y: y}
	if data, ok := c.cache.Get(key); ok {
		c.metrics.CacheHit()
		if data == nil {
			return nil, ErrNotFound
		}
		return data, nil
	}
	c.metrics.CacheMiss()

	data, err := c.next.ReadTile(ctx, z, x, y)
	switch {
	case errors.Is(err, ErrNotFound):
		c.cache.Add(key, nil)
		return nil, err
	case err != nil:
		return nil, err
	}
	c.cache.Add(key, data)
	return data, nil
}

// Len returns the number of cached entries.
func (c *CachedReader) Len() int {
	return c.cache.Len()
}

func (c *CachedReader) Close() error {
	c.cache.Purge()
	return c.next.Close()
}
