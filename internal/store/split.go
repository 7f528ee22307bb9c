package store

import (
	"fmt"

	"github.com/pspoerri/mrspyramid/internal/coord"
)

// RowSplit is the native split shared by the bundled backends: a band of
// consecutive rows of one pyramid level. The splits planned for one level
// never overlap.
type RowSplit struct {
	Source string
	Zoom   int
	Bounds coord.TileBounds
	// Tiles is the number of tiles present inside Bounds.
	Tiles int
}

func (s RowSplit) TileBounds() coord.TileBounds { return s.Bounds }

func (s RowSplit) String() string {
	return fmt.Sprintf("%s z%d%s (%d tiles)", s.Source, s.Zoom, s.Bounds, s.Tiles)
}

// PlanRowSplits groups row-major sorted tiles into row bands of at most
// maxTiles tiles. Whole rows are kept together; a row holding more than
// maxTiles tiles is cut into column ranges. Each split's bounds are the
// tightest rectangle around its tiles.
func PlanRowSplits(source string, zoom int, tiles []coord.Tile, maxTiles int) []RowSplit {
	if maxTiles <= 0 {
		maxTiles = 1
	}
	var out []RowSplit
	band := RowSplit{Source: source, Zoom: zoom, Bounds: coord.EmptyTileBounds()}
	flush := func() {
		if band.Tiles > 0 {
			out = append(out, band)
		}
		band = RowSplit{Source: source, Zoom: zoom, Bounds: coord.EmptyTileBounds()}
	}

	for start := 0; start < len(tiles); {
		end := start
		for end < len(tiles) && tiles[end].Y == tiles[start].Y {
			end++
		}
		row := tiles[start:end]
		start = end

		if len(row) > maxTiles {
			flush()
			for i := 0; i < len(row); i += maxTiles {
				for _, t := range row[i:min(i+maxTiles, len(row))] {
					band.Bounds = band.Bounds.ExpandToInclude(t.X, t.Y)
					band.Tiles++
				}
				flush()
			}
			continue
		}
		if band.Tiles+len(row) > maxTiles {
			flush()
		}
		for _, t := range row {
			band.Bounds = band.Bounds.ExpandToInclude(t.X, t.Y)
		}
		band.Tiles += len(row)
	}
	flush()
	return out
}

// AsNative converts row splits to the untyped form Provider.DiscoverSplits
// returns.
func AsNative(splits []RowSplit) []any {
	out := make([]any, len(splits))
	for i, s := range splits {
		out[i] = s
	}
	return out
}
