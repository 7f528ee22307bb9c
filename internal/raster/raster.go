// Package raster holds multi-band pixel buffers in one of three numeric
// storage domains and resamples them between sizes.
package raster

import (
	"fmt"
	"math"
	"strings"
)

// DataType is the storage domain of a raster's samples.
type DataType uint8

const (
	Int32 DataType = iota + 1
	Float32
	Float64
)

func (d DataType) String() string {
	switch d {
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(d))
	}
}

// Size returns the number of bytes per sample.
func (d DataType) Size() int {
	switch d {
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// ParseDataType parses a data type name as written in pyramid metadata.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(s) {
	case "int32", "int":
		return Int32, nil
	case "float32", "float":
		return Float32, nil
	case "float64", "double":
		return Float64, nil
	default:
		return 0, fmt.Errorf("unknown data type %q (use int32, float32 or float64)", s)
	}
}

type sample interface {
	~int32 | ~float32 | ~float64
}

// Raster is a width x height grid with one or more bands. Samples are stored
// band-sequentially: all of band 0, then all of band 1.
type Raster struct {
	width, height, bands int
	dataType             DataType
	// data is []int32, []float32 or []float64 depending on dataType.
	data any
}

// New allocates a zeroed raster.
func New(width, height, bands int, dt DataType) *Raster {
	n := width * height * bands
	r := &Raster{width: width, height: height, bands: bands, dataType: dt}
	switch dt {
	case Int32:
		r.data = make([]int32, n)
	case Float32:
		r.data = make([]float32, n)
	case Float64:
		r.data = make([]float64, n)
	default:
		panic(fmt.Sprintf("raster: unsupported data type %v", dt))
	}
	return r
}

// NewFilled allocates a raster with every band set to its no-data value.
func NewFilled(width, height, bands int, dt DataType, nodatas []float64) *Raster {
	r := New(width, height, bands, dt)
	r.Fill(nodatas)
	return r
}

func (r *Raster) Width() int         { return r.width }
func (r *Raster) Height() int        { return r.height }
func (r *Raster) Bands() int         { return r.bands }
func (r *Raster) DataType() DataType { return r.dataType }

func pixels[T sample](r *Raster) []T {
	return r.data.([]T)
}

func (r *Raster) index(x, y, b int) int {
	return (b*r.height+y)*r.width + x
}

// Get returns the sample at (x, y) in band b.
func (r *Raster) Get(x, y, b int) float64 {
	i := r.index(x, y, b)
	switch p := r.data.(type) {
	case []int32:
		return float64(p[i])
	case []float32:
		return float64(p[i])
	default:
		return r.data.([]float64)[i]
	}
}

// Set stores v at (x, y) in band b, converted to the raster's domain the
// same way resampling converts its results.
func (r *Raster) Set(x, y, b int, v float64) {
	i := r.index(x, y, b)
	switch p := r.data.(type) {
	case []int32:
		p[i] = intDomain{}.fromFloat64(v)
	case []float32:
		p[i] = float32(v)
	default:
		r.data.([]float64)[i] = v
	}
}

// Fill sets every sample of band b to nodatas[b]. Bands without an entry
// are left untouched.
func (r *Raster) Fill(nodatas []float64) {
	switch r.dataType {
	case Int32:
		fill[int32, intDomain](r, nodatas)
	case Float32:
		fill[float32, float32Domain](r, nodatas)
	case Float64:
		fill[float64, float64Domain](r, nodatas)
	}
}

func fill[T sample, D domain[T]](r *Raster, nodatas []float64) {
	var d D
	pix := pixels[T](r)
	plane := r.width * r.height
	for b := 0; b < r.bands && b < len(nodatas); b++ {
		v := d.fromFloat64(nodatas[b])
		band := pix[b*plane : (b+1)*plane]
		for i := range band {
			band[i] = v
		}
	}
}

// Clone returns a deep copy of r.
func (r *Raster) Clone() *Raster {
	c := &Raster{width: r.width, height: r.height, bands: r.bands, dataType: r.dataType}
	switch p := r.data.(type) {
	case []int32:
		c.data = append([]int32(nil), p...)
	case []float32:
		c.data = append([]float32(nil), p...)
	case []float64:
		c.data = append([]float64(nil), p...)
	}
	return c
}

// CopyFrom copies all of src into r with its top-left corner at (offX, offY).
// Pixels falling outside r are dropped. Both rasters must share data type
// and band count.
func (r *Raster) CopyFrom(src *Raster, offX, offY int) {
	switch r.dataType {
	case Int32:
		copyFrom[int32](r, src, offX, offY)
	case Float32:
		copyFrom[float32](r, src, offX, offY)
	case Float64:
		copyFrom[float64](r, src, offX, offY)
	}
}

func copyFrom[T sample](dst, src *Raster, offX, offY int) {
	dp, sp := pixels[T](dst), pixels[T](src)
	x0, x1 := max(0, -offX), min(src.width, dst.width-offX)
	if x0 >= x1 {
		return
	}
	for b := 0; b < dst.bands && b < src.bands; b++ {
		for y := max(0, -offY); y < src.height && y+offY < dst.height; y++ {
			s := src.index(x0, y, b)
			d := dst.index(x0+offX, y+offY, b)
			copy(dp[d:d+x1-x0], sp[s:s+x1-x0])
		}
	}
}

// IsNoData reports whether every sample equals its band's no-data value.
func (r *Raster) IsNoData(nodatas []float64) bool {
	switch r.dataType {
	case Int32:
		return allNoData[int32, intDomain](r, nodatas)
	case Float32:
		return allNoData[float32, float32Domain](r, nodatas)
	default:
		return allNoData[float64, float64Domain](r, nodatas)
	}
}

func allNoData[T sample, D domain[T]](r *Raster, nodatas []float64) bool {
	var d D
	pix := pixels[T](r)
	plane := r.width * r.height
	for b := 0; b < r.bands; b++ {
		if b >= len(nodatas) {
			return false
		}
		nd := d.fromFloat64(nodatas[b])
		for _, v := range pix[b*plane : (b+1)*plane] {
			if !d.isNoData(v, nd) {
				return false
			}
		}
	}
	return true
}

// MinMax returns the smallest and largest valid sample in band b. ok is
// false when the band holds only no-data.
func (r *Raster) MinMax(b int, nodata float64) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			v := r.Get(x, y, b)
			if isNoDataValue(v, nodata) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			ok = true
		}
	}
	return lo, hi, ok
}

// Compatible reports why src cannot be resampled into dst, or nil.
func Compatible(src, dst *Raster) error {
	if src.dataType != dst.dataType {
		return fmt.Errorf("data type mismatch: %v vs %v", src.dataType, dst.dataType)
	}
	if src.bands != dst.bands {
		return fmt.Errorf("band count mismatch: %d vs %d", src.bands, dst.bands)
	}
	if src.width == 0 || src.height == 0 || dst.width == 0 || dst.height == 0 {
		return fmt.Errorf("empty raster: %dx%d -> %dx%d", src.width, src.height, dst.width, dst.height)
	}
	return nil
}

func (r *Raster) String() string {
	return fmt.Sprintf("%dx%dx%d %v", r.width, r.height, r.bands, r.dataType)
}

// isNoDataValue compares in float64 with NaN matching NaN.
func isNoDataValue(v, nodata float64) bool {
	return v == nodata || (math.IsNaN(v) && math.IsNaN(nodata))
}
