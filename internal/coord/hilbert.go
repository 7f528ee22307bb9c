package coord

import "sort"

// XYToHilbert converts (x, y) to a Hilbert curve index for an n x n grid.
// n must be a power of two.
func XYToHilbert(x, y, n uint64) uint64 {
	var d uint64
	s := n / 2
	for s > 0 {
		var rx, ry uint64
		if (x & s) > 0 {
			rx = 1
		}
		if (y & s) > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		// Rotate quadrant.
		if ry == 0 {
			if rx == 1 {
				x = s*2 - 1 - x
				y = s*2 - 1 - y
			}
			x, y = y, x
		}
		s /= 2
	}
	return d
}

// HilbertToXY converts a Hilbert curve index back to (x, y) for an n x n grid.
func HilbertToXY(d, n uint64) (x, y uint64) {
	var rx, ry uint64
	for s := uint64(1); s < n; s *= 2 {
		rx = 1 & (d / 2)
		ry = 1 & (d ^ rx)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
		x += s * rx
		y += s * ry
		d /= 4
	}
	return x, y
}

// SortTilesRowMajor sorts tiles by zoom, then row, then column. Storage
// backends list tiles in their own key order (Hilbert for PMTiles); split
// planning needs them row-major.
func SortTilesRowMajor(tiles []Tile) {
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].Less(tiles[j]) })
}
