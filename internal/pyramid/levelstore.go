package pyramid

import (
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pspoerri/mrspyramid/internal/coord"
)

// spillEntry locates a tile in the spill file.
type spillEntry struct {
	offset int64
	length int32
}

// levelStore holds the encoded tiles of one pyramid level while the level
// above it is built from them. Tiles are kept in memory until their total
// size passes memLimit; then all in-memory tiles are appended to a temporary
// file and only a small index entry per tile stays resident.
//
// A level is written once by the workers of one pass and read by the
// workers of the next, so reads after a flush come from the file.
type levelStore struct {
	zoom int

	mu    sync.RWMutex
	tiles map[coord.Tile][]byte
	index map[coord.Tile]spillEntry

	file    *os.File
	fileOff int64
	dir     string

	memBytes atomic.Int64
	memLimit int64
	flushes  int

	log zerolog.Logger
}

// newLevelStore returns an empty store for zoom. A memLimit of 0 disables
// spilling.
func newLevelStore(zoom int, dir string, memLimit int64, log zerolog.Logger) *levelStore {
	if dir == "" {
		dir = os.TempDir()
	}
	return &levelStore{
		zoom:     zoom,
		tiles:    make(map[coord.Tile][]byte, 1024),
		index:    make(map[coord.Tile]spillEntry),
		dir:      dir,
		memLimit: memLimit,
		log:      log,
	}
}

func (s *levelStore) key(x, y int64) coord.Tile {
	return coord.Tile{Zoom: s.zoom, X: x, Y: y}
}

// Get returns the payload of tile (x, y), or nil when the level has none.
func (s *levelStore) Get(x, y int64) ([]byte, error) {
	k := s.key(x, y)

	s.mu.RLock()
	data, inMem := s.tiles[k]
	e, onDisk := s.index[k]
	f := s.file
	s.mu.RUnlock()

	if inMem {
		return data, nil
	}
	if !onDisk || f == nil {
		return nil, nil
	}
	buf := make([]byte, e.length)
	if _, err := f.ReadAt(buf, e.offset); err != nil {
		return nil, fmt.Errorf("reading spilled tile %s: %w", k, err)
	}
	return buf, nil
}

// Put stores the payload of tile (x, y). It may flush the level to disk.
func (s *levelStore) Put(x, y int64, data []byte) error {
	s.mu.Lock()
	s.tiles[s.key(x, y)] = data
	s.mu.Unlock()

	if s.memBytes.Add(int64(len(data))) > s.memLimit && s.memLimit > 0 {
		return s.flush()
	}
	return nil
}

// Len returns the number of stored tiles, in memory and on disk.
func (s *levelStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiles) + len(s.index)
}

// Tiles lists every stored tile in row-major order.
func (s *levelStore) Tiles() []coord.Tile {
	s.mu.RLock()
	out := make([]coord.Tile, 0, len(s.tiles)+len(s.index))
	for k := range s.tiles {
		out = append(out, k)
	}
	for k := range s.index {
		out = append(out, k)
	}
	s.mu.RUnlock()
	coord.SortTilesRowMajor(out)
	return out
}

// Parents returns the tiles one level up that have at least one child in
// the store, in row-major order.
func (s *levelStore) Parents() []coord.Tile {
	children := s.Tiles()
	out := make([]coord.Tile, 0, len(children)/4+1)
	for _, c := range children {
		out = append(out, coord.Tile{Zoom: s.zoom - 1, X: c.X >> 1, Y: c.Y >> 1})
	}
	coord.SortTilesRowMajor(out)
	return slices.Compact(out)
}

func (s *levelStore) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Another Put may have flushed while this one waited for the lock.
	if len(s.tiles) == 0 || s.memBytes.Load() <= s.memLimit {
		return nil
	}
	if s.file == nil {
		f, err := os.CreateTemp(s.dir, "mrspyramid-level-*.tmp")
		if err != nil {
			return fmt.Errorf("creating level spill file: %w", err)
		}
		s.file = f
	}

	n := len(s.tiles)
	var flushed int64
	for k, data := range s.tiles {
		if _, err := s.file.Write(data); err != nil {
			return fmt.Errorf("spilling tile %s: %w", k, err)
		}
		s.index[k] = spillEntry{offset: s.fileOff, length: int32(len(data))}
		s.fileOff += int64(len(data))
		flushed += int64(len(data))
		delete(s.tiles, k)
	}
	s.memBytes.Add(-flushed)
	s.flushes++

	s.log.Debug().
		Int("zoom", s.zoom).
		Int("tiles", n).
		Float64("flushed_mb", float64(flushed)/(1024*1024)).
		Int("on_disk", len(s.index)).
		Float64("file_mb", float64(s.fileOff)/(1024*1024)).
		Msg("Level spilled to disk")
	return nil
}

// Close removes the spill file.
func (s *levelStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	s.file.Close()
	s.file = nil
	return os.Remove(name)
}

// Stats returns a human-readable summary of the store's usage.
func (s *levelStore) Stats() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("in-memory: %d tiles (%.1f MB), on-disk: %d tiles (%.1f MB file), flushes: %d",
		len(s.tiles), float64(s.memBytes.Load())/(1024*1024),
		len(s.index), float64(s.fileOff)/(1024*1024),
		s.flushes)
}
