// Package redisstore keeps pyramids in Redis. A pyramid is addressed as
// "redis:redis://host:port/db?pyramid=<name>"; its tiles are plain string
// keys and each level has a sorted set indexing its tiles in row-major
// order.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/store"
)

// batchSize is the number of tiles sent per pipeline.
const batchSize = 500

// ParseLocation splits a store location into client options and the pyramid
// name carried by the "pyramid" query parameter.
func ParseLocation(location string) (*redis.Options, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, "", fmt.Errorf("redisstore: %w", err)
	}
	q := u.Query()
	name := q.Get("pyramid")
	if name == "" {
		return nil, "", fmt.Errorf("redisstore: %q has no pyramid parameter", location)
	}
	q.Del("pyramid")
	u.RawQuery = q.Encode()
	opts, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, "", fmt.Errorf("redisstore: %w", err)
	}
	return opts, name, nil
}

// Open is the store.Factory for "redis:" names. It fails when the server
// does not answer a ping.
func Open(ctx context.Context, location string) (store.Provider, error) {
	opts, name, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 2 * time.Second
	}
	opts.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Provider{rdb: rdb, keys: keys{prefix: "mrs:" + name}}, nil
}

type keys struct{ prefix string }

func (k keys) meta() string       { return k.prefix + ":meta" }
func (k keys) index(z int) string { return fmt.Sprintf("%s:z%d:index", k.prefix, z) }
func (k keys) tile(z int, x, y int64) string {
	return fmt.Sprintf("%s:t:%d:%d:%d", k.prefix, z, x, y)
}

func member(x, y int64) string {
	return strconv.FormatInt(x, 10) + "/" + strconv.FormatInt(y, 10)
}

func parseMember(m string) (x, y int64, err error) {
	xs, ys, ok := strings.Cut(m, "/")
	if !ok {
		return 0, 0, fmt.Errorf("malformed index member %q", m)
	}
	if x, err = strconv.ParseInt(xs, 10, 64); err != nil {
		return 0, 0, err
	}
	y, err = strconv.ParseInt(ys, 10, 64)
	return x, y, err
}

// score orders tiles row-major. It is exact up to zoom 26.
func score(z int, x, y int64) float64 {
	return float64(y<<uint(z) + x)
}

type Provider struct {
	rdb  *redis.Client
	keys keys
}

func (p *Provider) Metadata(ctx context.Context) (store.Metadata, error) {
	raw, err := p.rdb.Get(ctx, p.keys.meta()).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Metadata{}, fmt.Errorf("redis GET %q: %w", p.keys.meta(), store.ErrNotFound)
	}
	if err != nil {
		return store.Metadata{}, fmt.Errorf("redis GET %q: %w", p.keys.meta(), err)
	}
	var meta store.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return store.Metadata{}, fmt.Errorf("parsing metadata: %w", err)
	}
	return meta, nil
}

func (p *Provider) DiscoverSplits(ctx context.Context, zoom, maxTiles int) ([]any, error) {
	members, err := p.rdb.ZRange(ctx, p.keys.index(zoom), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ZRANGE %q: %w", p.keys.index(zoom), err)
	}
	tiles := make([]coord.Tile, 0, len(members))
	for _, m := range members {
		x, y, err := parseMember(m)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, coord.Tile{Zoom: zoom, X: x, Y: y})
	}
	// Scores tie-break by member string, not by x.
	coord.SortTilesRowMajor(tiles)
	return store.AsNative(store.PlanRowSplits("redis:"+p.keys.prefix, zoom, tiles, maxTiles)), nil
}

func (p *Provider) OpenReader(context.Context) (store.TileReader, error) {
	return reader{p}, nil
}

func (p *Provider) OpenWriter(_ context.Context, meta store.Metadata) (store.TileWriter, error) {
	return &writer{p: p, meta: meta}, nil
}

func (p *Provider) Close() error {
	if err := p.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

type reader struct{ p *Provider }

func (r reader) ReadTile(ctx context.Context, z int, x, y int64) ([]byte, error) {
	key := r.p.keys.tile(z, x, y)
	data, err := r.p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %q: %w", key, err)
	}
	return data, nil
}

// Close is a no-op; the client belongs to the provider.
func (reader) Close() error { return nil }

type pending struct {
	z    int
	x, y int64
	data []byte
}

type writer struct {
	p      *Provider
	meta   store.Metadata
	levels store.LevelTracker

	mu    sync.Mutex
	batch []pending
	done  bool
}

func (w *writer) WriteTile(ctx context.Context, z int, x, y int64, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.New("redisstore: write after finalize")
	}
	w.batch = append(w.batch, pending{z: z, x: x, y: y, data: append([]byte(nil), data...)})
	w.levels.Add(z, x, y)
	if len(w.batch) >= batchSize {
		return w.flush(ctx)
	}
	return nil
}

func (w *writer) flush(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}
	_, err := w.p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, t := range w.batch {
			pipe.Set(ctx, w.p.keys.tile(t.z, t.x, t.y), t.data, 0)
			pipe.ZAdd(ctx, w.p.keys.index(t.z), redis.Z{Score: score(t.z, t.x, t.y), Member: member(t.x, t.y)})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis pipeline of %d tiles: %w", len(w.batch), err)
	}
	w.batch = w.batch[:0]
	return nil
}

func (w *writer) Finalize(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errors.New("redisstore: already finalized")
	}
	w.done = true
	if err := w.flush(ctx); err != nil {
		return err
	}
	raw, err := json.Marshal(w.levels.Apply(w.meta))
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := w.p.rdb.Set(ctx, w.p.keys.meta(), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %q: %w", w.p.keys.meta(), err)
	}
	return nil
}

// Abort drops unsent tiles. Pipelines already sent stay in Redis.
func (w *writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.done = true
	w.batch = nil
}
