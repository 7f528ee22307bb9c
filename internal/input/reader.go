package input

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/metrics"
	"github.com/pspoerri/mrspyramid/internal/split"
	"github.com/pspoerri/mrspyramid/internal/store"
)

// RecordReader yields the tiles a composite owns, in row-major order.
// Coordinates inside a Pre rectangle belong to an earlier composite and
// coordinates the source has no tile for are skipped.
type RecordReader struct {
	c       split.Composite
	r       store.TileReader
	metrics *metrics.Set
	b       coord.TileBounds
	x, y    int64
}

// NewRecordReader reads the tiles of c through r. m may be nil.
func NewRecordReader(c split.Composite, r store.TileReader, m *metrics.Set) *RecordReader {
	b := c.Bounds()
	return &RecordReader{c: c, r: r, metrics: m, b: b, x: b.MinX, y: b.MinY}
}

// Next returns the next owned tile. It returns io.EOF once the composite is
// exhausted.
func (rr *RecordReader) Next(ctx context.Context) (coord.Tile, []byte, error) {
	for !rr.b.IsEmpty() && rr.y <= rr.b.MaxY {
		x, y := rr.x, rr.y
		rr.x++
		if rr.x > rr.b.MaxX {
			rr.x = rr.b.MinX
			rr.y++
		}

		if !rr.c.Owns(x, y) {
			rr.metrics.Tile("skipped")
			continue
		}
		if err := ctx.Err(); err != nil {
			return coord.Tile{}, nil, err
		}
		t := coord.Tile{Zoom: rr.c.Split.Zoom, X: x, Y: y}
		data, err := rr.r.ReadTile(ctx, t.Zoom, x, y)
		if errors.Is(err, store.ErrNotFound) {
			rr.metrics.Tile("missing")
			continue
		}
		if err != nil {
			return coord.Tile{}, nil, fmt.Errorf("reading %s from %s: %w", t, rr.c.Name, err)
		}
		rr.metrics.Tile("read")
		return t, data, nil
	}
	return coord.Tile{}, nil, io.EOF
}

// Reader opens a RecordReader for c on the source it came from. The tile
// reader is closed by the returned close function.
func (j *Job) Reader(ctx context.Context, c split.Composite, m *metrics.Set) (*RecordReader, func() error, error) {
	if c.Source < 0 || c.Source >= len(j.Sources) {
		return nil, nil, fmt.Errorf("composite %s refers to source %d of %d", c, c.Source, len(j.Sources))
	}
	r, err := j.Sources[c.Source].Provider.OpenReader(ctx)
	if err != nil {
		return nil, nil, err
	}
	return NewRecordReader(c, r, m), r.Close, nil
}
