package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/encode"
	"github.com/pspoerri/mrspyramid/internal/input"
	"github.com/pspoerri/mrspyramid/internal/raster"
	"github.com/pspoerri/mrspyramid/internal/split"
	"github.com/pspoerri/mrspyramid/internal/store"
)

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

type tileRange struct {
	MinX int64 `json:"min_x"`
	MinY int64 `json:"min_y"`
	MaxX int64 `json:"max_x"`
	MaxY int64 `json:"max_y"`
}

func toRange(b coord.TileBounds) tileRange {
	return tileRange{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
}

func toRanges(bs []coord.TileBounds) []tileRange {
	if len(bs) == 0 {
		return nil
	}
	out := make([]tileRange, len(bs))
	for i, b := range bs {
		out[i] = toRange(b)
	}
	return out
}

// splitJSON is one composite of a split plan.
type splitJSON struct {
	Source int         `json:"source"`
	Input  string      `json:"input"`
	Zoom   int         `json:"zoom"`
	Bounds tileRange   `json:"bounds"`
	Pre    []tileRange `json:"pre,omitempty"`
	Post   []tileRange `json:"post,omitempty"`
}

func toSplitJSON(c split.Composite) splitJSON {
	return splitJSON{
		Source: c.Source,
		Input:  c.Name,
		Zoom:   c.Split.Zoom,
		Bounds: toRange(c.Bounds()),
		Pre:    toRanges(c.Pre),
		Post:   toRanges(c.Post),
	}
}

// handleSplits serves the merged split plan of the "input" parameters.
func (s *Server) handleSplits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jc := input.Context{
		Inputs:        q["input"],
		Zoom:          input.Deepest,
		MaxSplitTiles: s.opts.MaxSplitTiles,
	}
	if len(jc.Inputs) == 0 {
		http.Error(w, "missing input parameter", http.StatusBadRequest)
		return
	}
	if z := q.Get("zoom"); z != "" {
		n, err := strconv.Atoi(z)
		if err != nil || n < 0 {
			http.Error(w, fmt.Sprintf("invalid zoom %q", z), http.StatusBadRequest)
			return
		}
		jc.Zoom = n
	}
	if m := q.Get("max_tiles"); m != "" {
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("invalid max_tiles %q", m), http.StatusBadRequest)
			return
		}
		jc.MaxSplitTiles = n
	}
	if bb := q.Get("bbox"); bb != "" {
		b, err := coord.ParseBounds(bb)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		jc.Bounds = &b
	}

	format := input.Format{Registry: s.opts.Registry, Logger: s.log, Metrics: s.set}
	composites, err := format.GetSplits(r.Context(), jc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]splitJSON, len(composites))
	for i, c := range composites {
		out[i] = toSplitJSON(c)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// handleTile renders one stored tile. The "format" parameter overrides the
// encoder chosen by the extension; "min" and "max" fix the gray stretch.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "input"))
	if err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.ParseInt(chi.URLParam(r, "x"), 10, 64)
	y, errY := strconv.ParseInt(chi.URLParam(r, "y"), 10, 64)
	if errZ != nil || errX != nil || errY != nil || z < 0 || x < 0 || y < 0 {
		http.Error(w, "invalid tile address", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = chi.URLParam(r, "ext")
	}
	enc, err := encode.NewEncoder(format, 85)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var lo, hi float64
	if v := q.Get("min"); v != "" {
		if lo, err = strconv.ParseFloat(v, 64); err != nil {
			http.Error(w, "invalid min", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("max"); v != "" {
		if hi, err = strconv.ParseFloat(v, 64); err != nil {
			http.Error(w, "invalid max", http.StatusBadRequest)
			return
		}
	}

	src, release, err := s.source(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer release()
	data, err := src.reader.ReadTile(r.Context(), z, x, y)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ras, err := raster.Unmarshal(data)
	if err != nil {
		s.writeError(w, fmt.Errorf("tile z%d/%d/%d of %s: %w", z, x, y, name, err))
		return
	}
	img, err := encode.Render(enc, ras, src.meta.NoData[0], lo, hi)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", enc.ContentType())
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(img)
}

// writeError maps store and planning errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var splitErr *input.InvalidSplitTypeError
	var boundsErr *coord.BoundsConversionError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrUnknownScheme), errors.As(err, &boundsErr):
		status = http.StatusBadRequest
	case errors.As(err, &splitErr):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Request failed")
	}
	http.Error(w, err.Error(), status)
}
