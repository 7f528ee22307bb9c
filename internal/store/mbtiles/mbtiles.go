// Package mbtiles keeps a pyramid in an SQLite database with the MBTiles
// table layout. Rows are stored in the pyramid's own scheme; the pyramid
// metadata is kept as JSON under the "pyramid" metadata key.
package mbtiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/store"
)

const dsnExtras = "?_busy_timeout=2000&_journal_mode=WAL&mode=rwc"

const schema = `
CREATE TABLE IF NOT EXISTS tiles (
	zoom_level  INTEGER NOT NULL,
	tile_column INTEGER NOT NULL,
	tile_row    INTEGER NOT NULL,
	tile_data   BLOB NOT NULL,
	PRIMARY KEY (zoom_level, tile_row, tile_column)
);
CREATE TABLE IF NOT EXISTS metadata (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// Open is the store.Factory for "mbtiles:<path>" names. A missing database
// is created by OpenWriter, not here; until then the provider reads as
// empty.
func Open(ctx context.Context, location string) (store.Provider, error) {
	if location == "" {
		return nil, errors.New("mbtiles: empty path")
	}
	p := &Provider{path: location}
	if _, err := os.Stat(location); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return nil, err
	}
	db, err := connect(ctx, location)
	if err != nil {
		return nil, err
	}
	p.db = db
	return p, nil
}

// connect opens location, creating the file and its directory when missing,
// and makes sure the tables exist.
func connect(ctx context.Context, location string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", "file:"+location+dsnExtras)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", location, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising %s: %w", location, err)
	}
	return db, nil
}

type Provider struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func (p *Provider) database() *sql.DB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db
}

func (p *Provider) Metadata(ctx context.Context) (store.Metadata, error) {
	db := p.database()
	if db == nil {
		return store.Metadata{}, fmt.Errorf("%s: metadata: %w", p.path, store.ErrNotFound)
	}
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE name = 'pyramid'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Metadata{}, fmt.Errorf("%s: metadata: %w", p.path, store.ErrNotFound)
	}
	if err != nil {
		return store.Metadata{}, fmt.Errorf("%s: metadata: %w", p.path, err)
	}
	var meta store.Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return store.Metadata{}, fmt.Errorf("%s: parsing metadata: %w", p.path, err)
	}
	return meta, nil
}

func (p *Provider) DiscoverSplits(ctx context.Context, zoom, maxTiles int) ([]any, error) {
	db := p.database()
	if db == nil {
		return nil, nil
	}
	rows, err := db.QueryContext(ctx,
		`SELECT tile_column, tile_row FROM tiles WHERE zoom_level = ? ORDER BY tile_row, tile_column`, zoom)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tiles []coord.Tile
	for rows.Next() {
		t := coord.Tile{Zoom: zoom}
		if err := rows.Scan(&t.X, &t.Y); err != nil {
			return nil, err
		}
		tiles = append(tiles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return store.AsNative(store.PlanRowSplits("mbtiles:"+p.path, zoom, tiles, maxTiles)), nil
}

func (p *Provider) OpenReader(context.Context) (store.TileReader, error) {
	return reader{p.database()}, nil
}

// OpenWriter starts a transaction that Finalize commits, so a pyramid is
// either written completely or not at all.
func (p *Provider) OpenWriter(ctx context.Context, meta store.Metadata) (store.TileWriter, error) {
	p.mu.Lock()
	if p.db == nil {
		db, err := connect(ctx, p.path)
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.db = db
	}
	db := p.db
	p.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)
		ON CONFLICT (zoom_level, tile_row, tile_column) DO UPDATE SET tile_data = excluded.tile_data`)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return &writer{tx: tx, stmt: stmt, meta: meta}, nil
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

type reader struct{ db *sql.DB }

func (r reader) ReadTile(ctx context.Context, z int, x, y int64) ([]byte, error) {
	if r.db == nil {
		return nil, store.ErrNotFound
	}
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`, z, x, y).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return data, err
}

func (reader) Close() error { return nil }

type writer struct {
	mu     sync.Mutex
	tx     *sql.Tx
	stmt   *sql.Stmt
	meta   store.Metadata
	levels store.LevelTracker
	done   bool
}

func (w *writer) WriteTile(ctx context.Context, z int, x, y int64, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.New("mbtiles: write after finalize")
	}
	if _, err := w.stmt.ExecContext(ctx, z, x, y, data); err != nil {
		return fmt.Errorf("writing tile z%d/%d/%d: %w", z, x, y, err)
	}
	w.levels.Add(z, x, y)
	return nil
}

func (w *writer) Finalize(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.New("mbtiles: already finalized")
	}
	w.done = true
	w.stmt.Close()

	meta := w.levels.Apply(w.meta)
	raw, err := json.Marshal(meta)
	if err != nil {
		w.tx.Rollback()
		return fmt.Errorf("encoding metadata: %w", err)
	}
	b := meta.Bounds
	values := map[string]string{
		"pyramid": string(raw),
		"name":    meta.Name,
		"format":  "mrsr",
		"minzoom": strconv.Itoa(meta.MinZoom),
		"maxzoom": strconv.Itoa(meta.MaxZoom),
		"bounds":  fmt.Sprintf("%g,%g,%g,%g", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat),
	}
	for k, v := range values {
		if _, err := w.tx.ExecContext(ctx,
			`INSERT INTO metadata (name, value) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			w.tx.Rollback()
			return fmt.Errorf("writing metadata %s: %w", k, err)
		}
	}
	return w.tx.Commit()
}

func (w *writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	w.stmt.Close()
	w.tx.Rollback()
}
