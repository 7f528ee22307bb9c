// Package input turns a list of pyramid names into a merged split plan and
// reads the tiles each planned split owns.
package input

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/metrics"
	"github.com/pspoerri/mrspyramid/internal/split"
	"github.com/pspoerri/mrspyramid/internal/store"
)

// Deepest requests the deepest level of every input.
const Deepest = -1

// Context describes one read job.
type Context struct {
	// Inputs are pyramid names ("scheme:location"). Where splits overlap,
	// the one whose top-left corner comes first in row-major order owns the
	// shared tiles; input order only decides between equal corners.
	Inputs []string
	// Zoom is the requested level, or Deepest. Pyramids without it are read
	// at their deepest level.
	Zoom int
	// Bounds optionally crops the job to a geographic region.
	Bounds *coord.Bounds
	// TileSize, when set, must match the tile size of every input.
	TileSize int
	// MaxSplitTiles caps the tiles per native split.
	MaxSplitTiles int
}

// Validate checks the job before any pyramid is opened.
func (jc Context) Validate() error {
	if len(jc.Inputs) == 0 {
		return errors.New("no inputs")
	}
	if jc.Zoom < Deepest {
		return fmt.Errorf("zoom %d is negative", jc.Zoom)
	}
	if jc.MaxSplitTiles <= 0 {
		return fmt.Errorf("max split tiles %d must be positive", jc.MaxSplitTiles)
	}
	if jc.TileSize < 0 {
		return fmt.Errorf("tile size %d is negative", jc.TileSize)
	}
	if jc.Bounds != nil {
		if err := jc.Bounds.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// InvalidSplitTypeError reports a backend whose native splits do not
// expose tile bounds.
type InvalidSplitTypeError struct {
	Input string
	Type  string
}

func (e *InvalidSplitTypeError) Error() string {
	return fmt.Sprintf("input %s: split type %s does not report tile bounds", e.Input, e.Type)
}

// Source is one opened input of a job.
type Source struct {
	Name     string
	Provider store.Provider
	Metadata store.Metadata
}

// Job is an opened, planned read job. Close releases its providers.
type Job struct {
	Zoom       int
	Sources    []Source
	Composites []split.Composite
}

func (j *Job) Close() error {
	var errs []error
	for _, s := range j.Sources {
		if err := s.Provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Format plans jobs over the pyramids reachable through Registry.
type Format struct {
	Registry *store.Registry
	Logger   zerolog.Logger
	Metrics  *metrics.Set
}

// GetSplits returns the merged split plan of jc.
func (f Format) GetSplits(ctx context.Context, jc Context) ([]split.Composite, error) {
	job, err := f.Open(ctx, jc)
	if err != nil {
		return nil, err
	}
	defer job.Close()
	return job.Composites, nil
}

// Open opens every input of jc and plans its splits. All inputs must agree
// on scheme, tile size, data layout and the zoom level they are read at.
func (f Format) Open(ctx context.Context, jc Context) (*Job, error) {
	if err := jc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}
	job := &Job{Zoom: -1}
	perSource := make([][]split.TiledSplit, 0, len(jc.Inputs))
	names := make([]string, 0, len(jc.Inputs))

	for _, name := range jc.Inputs {
		src, splits, zoom, err := f.openInput(ctx, jc, name)
		if err != nil {
			job.Close()
			return nil, err
		}
		job.Sources = append(job.Sources, src)
		if err := checkCompatible(job, src, zoom); err != nil {
			job.Close()
			return nil, err
		}
		job.Zoom = zoom
		perSource = append(perSource, splits)
		names = append(names, name)
	}

	m := split.NewMerger(perSource).WithNames(names)
	for c, ok := m.Next(); ok; c, ok = m.Next() {
		job.Composites = append(job.Composites, c)
	}
	f.Metrics.Splits("emitted", len(job.Composites))
	f.Logger.Debug().
		Int("inputs", len(jc.Inputs)).
		Int("zoom", job.Zoom).
		Int("composites", len(job.Composites)).
		Msg("Split plan ready")
	return job, nil
}

func (f Format) openInput(ctx context.Context, jc Context, name string) (Source, []split.TiledSplit, int, error) {
	p, err := f.Registry.Open(ctx, name)
	if err != nil {
		return Source{}, nil, 0, err
	}
	src := Source{Name: name, Provider: p}
	fail := func(err error) (Source, []split.TiledSplit, int, error) {
		p.Close()
		return Source{}, nil, 0, err
	}

	meta, err := p.Metadata(ctx)
	if err != nil {
		return fail(fmt.Errorf("input %s: %w", name, err))
	}
	if err := meta.Validate(); err != nil {
		return fail(fmt.Errorf("input %s: %w", name, err))
	}
	if jc.TileSize > 0 && meta.TileSize != jc.TileSize {
		return fail(fmt.Errorf("input %s: tile size %d, job expects %d", name, meta.TileSize, jc.TileSize))
	}
	src.Metadata = meta

	zoom := meta.ResolveZoom(jc.Zoom)
	if jc.Zoom != Deepest && zoom != jc.Zoom {
		f.Logger.Warn().Str("input", name).Int("requested", jc.Zoom).Int("zoom", zoom).
			Msg("Zoom level not in pyramid, reading deepest level")
	}

	native, err := p.DiscoverSplits(ctx, zoom, jc.MaxSplitTiles)
	if err != nil {
		return fail(fmt.Errorf("input %s: discovering splits: %w", name, err))
	}
	splits := make([]split.TiledSplit, 0, len(native))
	for _, n := range native {
		b, ok := n.(split.Bounded)
		if !ok {
			return fail(&InvalidSplitTypeError{Input: name, Type: fmt.Sprintf("%T", n)})
		}
		splits = append(splits, split.New(zoom, b))
	}
	f.Metrics.Splits("discovered", len(splits))

	if jc.Bounds != nil {
		scheme, err := meta.TileScheme()
		if err != nil {
			return fail(err)
		}
		crop, err := scheme.BoundsToTiles(*jc.Bounds, zoom, meta.TileSize)
		if err != nil {
			return fail(fmt.Errorf("input %s: %w", name, err))
		}
		before := len(splits)
		splits = split.Filter(splits, &crop)
		f.Metrics.Splits("cropped", before-len(splits))
	}

	f.Logger.Debug().Str("input", name).Int("zoom", zoom).Int("splits", len(splits)).Msg("Input planned")
	return src, splits, zoom, nil
}

func checkCompatible(job *Job, src Source, zoom int) error {
	if len(job.Sources) < 2 {
		return nil
	}
	first := job.Sources[0]
	a, b := first.Metadata, src.Metadata
	switch {
	case zoom != job.Zoom:
		return fmt.Errorf("input %s is read at zoom %d, %s at zoom %d", src.Name, zoom, first.Name, job.Zoom)
	case a.Scheme != b.Scheme:
		return fmt.Errorf("input %s uses scheme %s, %s uses %s", src.Name, b.Scheme, first.Name, a.Scheme)
	case a.TileSize != b.TileSize:
		return fmt.Errorf("input %s has tile size %d, %s has %d", src.Name, b.TileSize, first.Name, a.TileSize)
	case a.Bands != b.Bands || a.DataType != b.DataType:
		return fmt.Errorf("input %s holds %d %s bands, %s holds %d %s bands",
			src.Name, b.Bands, b.DataType, first.Name, a.Bands, a.DataType)
	}
	return nil
}
