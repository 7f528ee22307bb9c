package encode

import (
	"image/color"
	"math"
)

// ElevationToTerrarium converts an elevation in meters to Terrarium RGB,
// where elevation = (R * 256 + G + B / 256) - 32768. Values outside
// [-32768, 32767.996] are clamped; NaN and Inf map to transparent.
func ElevationToTerrarium(elevation float64) color.RGBA {
	if math.IsNaN(elevation) || math.IsInf(elevation, 0) {
		return color.RGBA{}
	}
	value := min(max(elevation+32768.0, 0), 65535.996)

	r := min(int(value/256), 255)
	rem := value - float64(r)*256
	g := min(int(rem), 255)
	b := min(int((rem-float64(g))*256), 255)
	return color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
}

// TerrariumToElevation converts Terrarium RGB back to elevation. A
// transparent pixel yields NaN.
func TerrariumToElevation(c color.RGBA) float64 {
	if c.A == 0 {
		return math.NaN()
	}
	return float64(c.R)*256.0 + float64(c.G) + float64(c.B)/256.0 - 32768.0
}
