package raster

import "math"

// domain converts from float64 into a storage type, blends two samples and
// recognises the no-data sentinel. Implementations are zero-size so the
// generic resampler specialises without indirection.
type domain[T sample] interface {
	fromFloat64(v float64) T
	lerp(a, b T, t float32) T
	isNoData(v, nodata T) bool
}

type intDomain struct{}

// lerp blends in float64 so every int32 value is exact, then rounds.
func (d intDomain) lerp(a, b int32, t float32) int32 {
	return d.fromFloat64(float64(a)*float64(1-t) + float64(b)*float64(t))
}

// fromFloat64 rounds to nearest and saturates at the int32 range.
func (intDomain) fromFloat64(v float64) int32 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int32(math.Round(v))
}

func (intDomain) isNoData(v, nodata int32) bool { return v == nodata }

type float32Domain struct{}

func (float32Domain) fromFloat64(v float64) float32 { return float32(v) }

// lerp stays in float32. The conversions keep the products from being
// fused so results do not depend on the target's FMA support.
func (float32Domain) lerp(a, b, t float32) float32 {
	return float32(a*(1-t)) + float32(b*t)
}

func (float32Domain) isNoData(v, nodata float32) bool {
	return v == nodata || (v != v && nodata != nodata)
}

type float64Domain struct{}

func (float64Domain) fromFloat64(v float64) float64 { return v }

// lerp widens the float32 weights and blends in float64.
func (float64Domain) lerp(a, b float64, t float32) float64 {
	return float64(a*float64(1-t)) + float64(b*float64(t))
}

func (float64Domain) isNoData(v, nodata float64) bool {
	return v == nodata || (math.IsNaN(v) && math.IsNaN(nodata))
}
