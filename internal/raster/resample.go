package raster

import (
	"fmt"
	"math"
	"strings"
)

// Resampling selects how destination pixels are computed from the source.
type Resampling int

const (
	Bilinear Resampling = iota
	Nearest
)

func (m Resampling) String() string {
	switch m {
	case Nearest:
		return "nearest"
	default:
		return "bilinear"
	}
}

// ParseResampling parses a resampling mode name.
func ParseResampling(s string) (Resampling, error) {
	switch strings.ToLower(s) {
	case "", "bilinear":
		return Bilinear, nil
	case "nearest":
		return Nearest, nil
	default:
		return Bilinear, fmt.Errorf("unknown resampling mode %q (use bilinear or nearest)", s)
	}
}

// Scale fills dst from src with bilinear interpolation.
func Scale(src, dst *Raster, nodatas []float64) {
	Resample(src, dst, nodatas, Bilinear)
}

// Resample fills every pixel of dst from src. Both rasters must have the same
// data type and band count (see Compatible); nodatas holds one sentinel per
// band.
//
// For bilinear mode each destination pixel reads the four source pixels at
// (x, y), (x+1, y), (x, y+1), (x+1, y+1), where x and y are the destination
// position scaled by src/dst and floored; the +1 neighbours are clamped to
// the last row and column. The horizontal pairs are blended first, then the
// two results vertically. A no-data value on one side of a pair yields the
// other side unchanged. Weights are float32; float32 rasters blend in
// float32, the others in float64, and integer results are rounded to
// nearest. A destination the size of the source receives an exact copy.
func Resample(src, dst *Raster, nodatas []float64, mode Resampling) {
	switch src.dataType {
	case Int32:
		resample[int32, intDomain](src, dst, nodatas, mode)
	case Float32:
		resample[float32, float32Domain](src, dst, nodatas, mode)
	case Float64:
		resample[float64, float64Domain](src, dst, nodatas, mode)
	}
}

func resample[T sample, D domain[T]](src, dst *Raster, nodatas []float64, mode Resampling) {
	var d D
	sp, dp := pixels[T](src), pixels[T](dst)
	srcW, srcH := src.width, src.height
	if srcW == dst.width && srcH == dst.height {
		copy(dp, sp)
		return
	}
	xRatio := float32(srcW) / float32(dst.width)
	yRatio := float32(srcH) / float32(dst.height)

	for b := 0; b < dst.bands; b++ {
		nd := d.fromFloat64(nanIfMissing(nodatas, b))
		sBand := sp[b*srcW*srcH : (b+1)*srcW*srcH]
		dBand := dp[b*dst.width*dst.height : (b+1)*dst.width*dst.height]

		for j := 0; j < dst.height; j++ {
			fy := yRatio * float32(j)
			y := min(int(fy), srcH-1)
			yDiff := fy - float32(y)
			y2 := y
			if y < srcH-1 {
				y2 = y + 1
			}
			row, row2 := sBand[y*srcW:(y+1)*srcW], sBand[y2*srcW:(y2+1)*srcW]

			for i := 0; i < dst.width; i++ {
				fx := xRatio * float32(i)
				x := min(int(fx), srcW-1)
				if mode == Nearest {
					dBand[j*dst.width+i] = row[x]
					continue
				}
				xDiff := fx - float32(x)
				x2 := x
				if x < srcW-1 {
					x2 = x + 1
				}

				r1 := blend(d, row[x], row[x2], nd, xDiff)
				r2 := blend(d, row2[x], row2[x2], nd, xDiff)
				dBand[j*dst.width+i] = blend(d, r1, r2, nd, yDiff)
			}
		}
	}
}

// blend interpolates between a and b at t, unless one of them is no-data,
// in which case the other is returned as is.
func blend[T sample, D domain[T]](d D, a, b, nodata T, t float32) T {
	if d.isNoData(a, nodata) {
		return b
	}
	if d.isNoData(b, nodata) {
		return a
	}
	return d.lerp(a, b, t)
}

func nanIfMissing(nodatas []float64, b int) float64 {
	if b < len(nodatas) {
		return nodatas[b]
	}
	return math.NaN()
}
