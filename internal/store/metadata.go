package store

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/raster"
)

// Metadata describes a raster pyramid. Backends persist it as JSON.
type Metadata struct {
	Name     string       `json:"name"`
	Scheme   string       `json:"scheme"`
	TileSize int          `json:"tile_size"`
	MinZoom  int          `json:"min_zoom"`
	MaxZoom  int          `json:"max_zoom"`
	Bands    int          `json:"bands"`
	DataType string       `json:"data_type"`
	NoData   NoData       `json:"nodata"`
	Bounds   coord.Bounds `json:"bounds"`
	// Levels holds the tile extent of every populated zoom level.
	Levels map[int]coord.TileBounds `json:"levels,omitempty"`
}

// Validate checks that the metadata is usable for reading.
func (m Metadata) Validate() error {
	if _, err := m.TileScheme(); err != nil {
		return err
	}
	if _, err := m.Type(); err != nil {
		return err
	}
	if m.TileSize <= 0 {
		return fmt.Errorf("metadata %s: tile size %d", m.Name, m.TileSize)
	}
	if m.Bands <= 0 {
		return fmt.Errorf("metadata %s: %d bands", m.Name, m.Bands)
	}
	if len(m.NoData) != m.Bands {
		return fmt.Errorf("metadata %s: %d nodata values for %d bands", m.Name, len(m.NoData), m.Bands)
	}
	if m.MinZoom > m.MaxZoom {
		return fmt.Errorf("metadata %s: min zoom %d above max zoom %d", m.Name, m.MinZoom, m.MaxZoom)
	}
	return nil
}

func (m Metadata) TileScheme() (coord.Scheme, error) {
	return coord.SchemeByName(m.Scheme)
}

func (m Metadata) Type() (raster.DataType, error) {
	return raster.ParseDataType(m.DataType)
}

// HasZoom reports whether the pyramid has a level at zoom.
func (m Metadata) HasZoom(zoom int) bool {
	if m.Levels != nil {
		_, ok := m.Levels[zoom]
		return ok
	}
	return zoom >= m.MinZoom && zoom <= m.MaxZoom
}

// ResolveZoom returns zoom when the pyramid has that level and the deepest
// level otherwise.
func (m Metadata) ResolveZoom(zoom int) int {
	if m.HasZoom(zoom) {
		return zoom
	}
	return m.MaxZoom
}

// Zooms lists the populated levels in ascending order.
func (m Metadata) Zooms() []int {
	var out []int
	if m.Levels == nil {
		for z := m.MinZoom; z <= m.MaxZoom; z++ {
			out = append(out, z)
		}
		return out
	}
	for z := range m.Levels {
		out = append(out, z)
	}
	sort.Ints(out)
	return out
}

// SetLevel records the extent of zoom and widens the zoom range to include it.
func (m *Metadata) SetLevel(zoom int, b coord.TileBounds) {
	if m.Levels == nil {
		m.Levels = make(map[int]coord.TileBounds)
	}
	m.Levels[zoom] = b
	zs := m.Zooms()
	m.MinZoom, m.MaxZoom = zs[0], zs[len(zs)-1]
}

// NoData holds one sentinel per band. NaN is written as the string "NaN"
// since JSON has no literal for it.
type NoData []float64

func (n NoData) MarshalJSON() ([]byte, error) {
	out := make([]any, len(n))
	for i, v := range n {
		if math.IsNaN(v) {
			out[i] = "NaN"
		} else {
			out[i] = v
		}
	}
	return json.Marshal(out)
}

func (n *NoData) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	vals := make(NoData, len(raw))
	for i, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("nodata[%d]: %w", i, err)
			}
			vals[i] = v
			continue
		}
		if err := json.Unmarshal(r, &vals[i]); err != nil {
			return fmt.Errorf("nodata[%d]: %w", i, err)
		}
	}
	*n = vals
	return nil
}
