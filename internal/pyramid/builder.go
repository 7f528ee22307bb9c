// Package pyramid builds the coarser levels of raster pyramids. The base
// level is read from one or more input pyramids through the merged split
// plan; every level above it is resampled from the 2x2 children below.
package pyramid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/input"
	"github.com/pspoerri/mrspyramid/internal/metrics"
	"github.com/pspoerri/mrspyramid/internal/raster"
	"github.com/pspoerri/mrspyramid/internal/split"
	"github.com/pspoerri/mrspyramid/internal/store"
)

// Config holds pyramid build settings.
type Config struct {
	// Inputs are read at FromZoom. Overlapping tiles go to the split whose
	// top-left corner sorts first row-major, then to the earlier input.
	Inputs []string
	Output string
	// FromZoom is the base level, or input.Deepest.
	FromZoom int
	// ToZoom is the coarsest level built.
	ToZoom        int
	Bounds        *coord.Bounds
	Concurrency   int
	Resampling    raster.Resampling
	MaxSplitTiles int
	// TempDir and MemoryLimit control level spilling; a MemoryLimit of 0
	// keeps every level in memory.
	TempDir     string
	MemoryLimit int64
	// Progress receives a progress bar per level when set.
	Progress io.Writer
	Metrics  *metrics.Set
}

func (c Config) validate() error {
	var errs []error
	if len(c.Inputs) == 0 {
		errs = append(errs, errors.New("no inputs"))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("no output"))
	}
	for _, in := range c.Inputs {
		if in == c.Output {
			errs = append(errs, fmt.Errorf("output %s is also an input", in))
		}
	}
	if c.ToZoom < 0 {
		errs = append(errs, fmt.Errorf("to-zoom %d is negative", c.ToZoom))
	}
	if c.FromZoom != input.Deepest && c.FromZoom < c.ToZoom {
		errs = append(errs, fmt.Errorf("from-zoom %d is above to-zoom %d", c.FromZoom, c.ToZoom))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency %d must be positive", c.Concurrency))
	}
	return errors.Join(errs...)
}

// Stats holds build statistics.
type Stats struct {
	BaseZoom    int
	Levels      int
	CopiedTiles int64
	TileCount   int64
	EmptyTiles  int64
	TotalBytes  int64
}

type counters struct {
	copied, written, empty, bytes atomic.Int64
}

// Build copies the base level of cfg.Inputs into cfg.Output and adds every
// level from the one above the base up to cfg.ToZoom. Nothing is published
// unless all levels succeed.
func Build(ctx context.Context, cfg Config, reg *store.Registry, log zerolog.Logger) (Stats, error) {
	if err := cfg.validate(); err != nil {
		return Stats{}, fmt.Errorf("invalid build: %w", err)
	}

	format := input.Format{Registry: reg, Logger: log, Metrics: cfg.Metrics}
	job, err := format.Open(ctx, input.Context{
		Inputs:        cfg.Inputs,
		Zoom:          cfg.FromZoom,
		Bounds:        cfg.Bounds,
		MaxSplitTiles: cfg.MaxSplitTiles,
	})
	if err != nil {
		return Stats{}, err
	}
	defer job.Close()

	base := job.Zoom
	if base < cfg.ToZoom {
		return Stats{}, fmt.Errorf("base level %d is above to-zoom %d", base, cfg.ToZoom)
	}

	meta := job.Sources[0].Metadata
	meta.Name = cfg.Output
	meta.Levels = nil
	if cfg.Bounds != nil {
		meta.Bounds = *cfg.Bounds
	}
	nodata := []float64(meta.NoData)
	dt, err := meta.Type()
	if err != nil {
		return Stats{}, err
	}
	scheme, err := meta.TileScheme()
	if err != nil {
		return Stats{}, err
	}

	out, err := reg.Open(ctx, cfg.Output)
	if err != nil {
		return Stats{}, err
	}
	defer out.Close()
	w, err := out.OpenWriter(ctx, meta)
	if err != nil {
		return Stats{}, fmt.Errorf("opening output %s: %w", cfg.Output, err)
	}

	b := &builder{
		cfg:    cfg,
		log:    log,
		w:      w,
		size:   meta.TileSize,
		bands:  meta.Bands,
		dt:     dt,
		nodata: nodata,
		north:  scheme.NorthUp(),
	}
	stats, err := b.run(ctx, job)
	if err != nil {
		w.Abort()
		return Stats{}, err
	}
	if err := w.Finalize(ctx); err != nil {
		return Stats{}, fmt.Errorf("finalizing %s: %w", cfg.Output, err)
	}
	return stats, nil
}

type builder struct {
	cfg    Config
	log    zerolog.Logger
	w      store.TileWriter
	size   int
	bands  int
	dt     raster.DataType
	nodata []float64
	north  bool
	n      counters
}

func (b *builder) run(ctx context.Context, job *input.Job) (Stats, error) {
	base := job.Zoom
	level, err := b.copyBase(ctx, job)
	if err != nil {
		return Stats{}, err
	}
	levels := 1

	for z := base - 1; z >= b.cfg.ToZoom; z-- {
		start := time.Now()
		next, err := b.buildLevel(ctx, level, z)
		level.Close()
		if err != nil {
			return Stats{}, err
		}
		level = next
		levels++
		b.log.Info().
			Int("zoom", z).
			Int("tiles", level.Len()).
			Dur("took", time.Since(start)).
			Msg("Level built")
	}
	level.Close()

	return Stats{
		BaseZoom:    base,
		Levels:      levels,
		CopiedTiles: b.n.copied.Load(),
		TileCount:   b.n.written.Load(),
		EmptyTiles:  b.n.empty.Load(),
		TotalBytes:  b.n.bytes.Load(),
	}, nil
}

// copyBase writes every owned tile of the job to the output and keeps it
// for the first downsampling pass. Each worker handles one composite.
func (b *builder) copyBase(ctx context.Context, job *input.Job) (*levelStore, error) {
	level := newLevelStore(job.Zoom, b.cfg.TempDir, b.cfg.MemoryLimit, b.log)
	pb := newProgressBar(b.cfg.Progress, fmt.Sprintf("Zoom %2d (base)", job.Zoom), "splits", int64(len(job.Composites)))
	defer pb.Finish()

	err := runPool(ctx, b.cfg.Concurrency, job.Composites, func(ctx context.Context, c split.Composite) error {
		defer pb.Increment()
		rr, closeReader, err := job.Reader(ctx, c, b.cfg.Metrics)
		if err != nil {
			return err
		}
		defer closeReader()
		for {
			t, data, err := rr.Next(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := b.w.WriteTile(ctx, t.Zoom, t.X, t.Y, data); err != nil {
				return fmt.Errorf("writing tile %s: %w", t, err)
			}
			if err := level.Put(t.X, t.Y, data); err != nil {
				return err
			}
			b.n.copied.Add(1)
			b.n.bytes.Add(int64(len(data)))
			b.cfg.Metrics.PyramidTile("copied", len(data))
		}
	})
	if err != nil {
		level.Close()
		return nil, err
	}
	b.log.Info().Int("zoom", job.Zoom).Int("tiles", level.Len()).Msg("Base level copied")
	return level, nil
}

// buildLevel resamples level z from the children in child.
func (b *builder) buildLevel(ctx context.Context, child *levelStore, z int) (*levelStore, error) {
	parents := child.Parents()
	next := newLevelStore(z, b.cfg.TempDir, b.cfg.MemoryLimit, b.log)
	pb := newProgressBar(b.cfg.Progress, fmt.Sprintf("Zoom %2d", z), "tiles", int64(len(parents)))
	defer pb.Finish()

	err := runPool(ctx, b.cfg.Concurrency, parents, func(ctx context.Context, p coord.Tile) error {
		defer pb.Increment()
		r, err := b.downsample(child, p)
		if err != nil {
			return err
		}
		if r == nil {
			b.n.empty.Add(1)
			b.cfg.Metrics.PyramidTile("empty", 0)
			return nil
		}
		data := raster.Marshal(r)
		if err := b.w.WriteTile(ctx, p.Zoom, p.X, p.Y, data); err != nil {
			return fmt.Errorf("writing tile %s: %w", p, err)
		}
		if err := next.Put(p.X, p.Y, data); err != nil {
			return err
		}
		b.n.written.Add(1)
		b.n.bytes.Add(int64(len(data)))
		b.cfg.Metrics.PyramidTile("written", len(data))
		return nil
	})
	if err != nil {
		next.Close()
		return nil, err
	}
	b.log.Debug().Int("zoom", z).Str("store", next.Stats()).Msg("Level store")
	return next, nil
}

// downsample composes the four children of p into one raster of twice the
// tile size and resamples it to the tile size. It returns nil when the
// result holds no data.
func (b *builder) downsample(child *levelStore, p coord.Tile) (*raster.Raster, error) {
	ts := b.size
	src := getRaster(2*ts, 2*ts, b.bands, b.dt, b.nodata)
	defer putRaster(src)
	found := false
	block := coord.NewTileBounds(p.X, p.Y, p.X, p.Y).Children()
	for _, ct := range block.Tiles(p.Zoom + 1) {
		data, err := child.Get(ct.X, ct.Y)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		c, err := raster.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("decoding tile %s: %w", ct, err)
		}
		if c.Width() != ts || c.Height() != ts {
			return nil, fmt.Errorf("tile %s is %dx%d, want %dx%d", ct, c.Width(), c.Height(), ts, ts)
		}
		if err := raster.Compatible(c, src); err != nil {
			return nil, fmt.Errorf("tile %s: %w", ct, err)
		}
		col, row := ct.X-block.MinX, ct.Y-block.MinY
		if !b.north {
			row = 1 - row
		}
		src.CopyFrom(c, int(col)*ts, int(row)*ts)
		found = true
	}
	if !found {
		return nil, nil
	}

	dst := raster.New(ts, ts, b.bands, b.dt)
	start := time.Now()
	raster.Resample(src, dst, b.nodata, b.cfg.Resampling)
	b.cfg.Metrics.ObserveResample(b.cfg.Resampling.String(), time.Since(start))
	if dst.IsNoData(b.nodata) {
		return nil, nil
	}
	return dst, nil
}

// runPool hands items to workers goroutines and returns the first error.
// Once a worker fails the remaining items are drained without being
// processed.
func runPool[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan T, workers*2)
	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := fn(ctx, item); err != nil {
					select {
					case errCh <- err:
					default:
					}
					cancel()
				}
			}
		}()
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		jobs <- item
	}
	close(jobs)
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}
	return context.Cause(ctx)
}
