// Package boltstore keeps a pyramid in a bbolt database file. Each zoom level
// is a bucket keyed by the big-endian (y, x) tile coordinate, so a cursor
// walks a level in row-major order.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/store"
)

var (
	metaBucket = []byte("meta")
	metaKey    = []byte("pyramid")
)

// batchSize is the number of tiles committed per write transaction.
const batchSize = 1000

// pool shares one handle per database file, since bbolt holds an exclusive
// file lock for as long as a database is open.
type pool struct {
	mu   sync.Mutex
	dbs  map[string]*handle
	opts *bolt.Options
}

type handle struct {
	db   *bolt.DB
	refs int
}

var defaultPool = &pool{
	dbs:  make(map[string]*handle),
	opts: &bolt.Options{Timeout: 2 * time.Second},
}

// acquire opens path, creating the file and its directory when missing.
func (p *pool) acquire(path string) (*bolt.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.dbs[path]; ok {
		h.refs++
		return h.db, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, p.opts)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	p.dbs[path] = &handle{db: db, refs: 1}
	return db, nil
}

func (p *pool) release(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.dbs[path]
	if !ok {
		return nil
	}
	h.refs--
	if h.refs > 0 {
		return nil
	}
	delete(p.dbs, path)
	return h.db.Close()
}

// Open is the store.Factory for "bolt:<path>" names. A missing file is not
// created until OpenWriter; until then the provider reads as empty.
func Open(_ context.Context, location string) (store.Provider, error) {
	if location == "" {
		return nil, errors.New("boltstore: empty path")
	}
	p := &Provider{path: location}
	if _, err := os.Stat(location); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, err
	}
	db, err := defaultPool.acquire(location)
	if err != nil {
		return nil, err
	}
	p.db = db
	return p, nil
}

type Provider struct {
	path string

	mu     sync.Mutex
	db     *bolt.DB
	closed bool
}

// database returns the open database, or nil when the file does not exist.
func (p *Provider) database() *bolt.DB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db
}

func levelBucket(z int) []byte {
	return []byte(fmt.Sprintf("z%02d", z))
}

func tileKey(x, y int64) []byte {
	var k [16]byte
	binary.BigEndian.PutUint64(k[:8], uint64(y))
	binary.BigEndian.PutUint64(k[8:], uint64(x))
	return k[:]
}

func parseKey(k []byte) (x, y int64) {
	return int64(binary.BigEndian.Uint64(k[8:])), int64(binary.BigEndian.Uint64(k[:8]))
}

func (p *Provider) Metadata(context.Context) (store.Metadata, error) {
	db := p.database()
	if db == nil {
		return store.Metadata{}, fmt.Errorf("%s: metadata: %w", p.path, store.ErrNotFound)
	}
	var meta store.Metadata
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return store.ErrNotFound
		}
		raw := b.Get(metaKey)
		if raw == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(raw, &meta)
	})
	if err != nil {
		return store.Metadata{}, fmt.Errorf("%s: metadata: %w", p.path, err)
	}
	return meta, nil
}

func (p *Provider) DiscoverSplits(_ context.Context, zoom, maxTiles int) ([]any, error) {
	db := p.database()
	if db == nil {
		return nil, nil
	}
	var tiles []coord.Tile
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(levelBucket(zoom))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			x, y := parseKey(k)
			tiles = append(tiles, coord.Tile{Zoom: zoom, X: x, Y: y})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return store.AsNative(store.PlanRowSplits("bolt:"+p.path, zoom, tiles, maxTiles)), nil
}

func (p *Provider) OpenReader(context.Context) (store.TileReader, error) {
	return reader{p.database()}, nil
}

// OpenWriter creates the database file and its directory when missing.
func (p *Provider) OpenWriter(_ context.Context, meta store.Metadata) (store.TileWriter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("boltstore: %s is closed", p.path)
	}
	if p.db == nil {
		db, err := defaultPool.acquire(p.path)
		if err != nil {
			return nil, err
		}
		p.db = db
	}
	return &writer{db: p.db, meta: meta}, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.db == nil {
		return nil
	}
	return defaultPool.release(p.path)
}

type reader struct{ db *bolt.DB }

func (r reader) ReadTile(_ context.Context, z int, x, y int64) ([]byte, error) {
	if r.db == nil {
		return nil, store.ErrNotFound
	}
	var data []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(levelBucket(z))
		if b == nil {
			return store.ErrNotFound
		}
		v := b.Get(tileKey(x, y))
		if v == nil {
			return store.ErrNotFound
		}
		// v is only valid inside the transaction.
		data = bytes.Clone(v)
		return nil
	})
	return data, err
}

func (reader) Close() error { return nil }

type pending struct {
	z    int
	x, y int64
	data []byte
}

// writer buffers tiles and commits them in batches.
type writer struct {
	db     *bolt.DB
	meta   store.Metadata
	levels store.LevelTracker

	mu    sync.Mutex
	batch []pending
	done  bool
}

func (w *writer) WriteTile(_ context.Context, z int, x, y int64, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.New("boltstore: write after finalize")
	}
	w.batch = append(w.batch, pending{z: z, x: x, y: y, data: bytes.Clone(data)})
	w.levels.Add(z, x, y)
	if len(w.batch) >= batchSize {
		return w.flush()
	}
	return nil
}

func (w *writer) flush() error {
	if len(w.batch) == 0 {
		return nil
	}
	err := w.db.Update(func(tx *bolt.Tx) error {
		for _, t := range w.batch {
			b, err := tx.CreateBucketIfNotExists(levelBucket(t.z))
			if err != nil {
				return err
			}
			if err := b.Put(tileKey(t.x, t.y), t.data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("committing %d tiles: %w", len(w.batch), err)
	}
	w.batch = w.batch[:0]
	return nil
}

func (w *writer) Finalize(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.New("boltstore: already finalized")
	}
	w.done = true
	if err := w.flush(); err != nil {
		return err
	}
	raw, err := json.Marshal(w.levels.Apply(w.meta))
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	return w.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		return b.Put(metaKey, raw)
	})
}

// Abort drops the tiles not yet committed. Committed batches stay in the
// database but no metadata is published for them.
func (w *writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = true
	w.batch = nil
}
