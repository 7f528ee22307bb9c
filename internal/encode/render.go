package encode

import (
	"image"
	"image/color"
	"math"

	"github.com/pspoerri/mrspyramid/internal/raster"
)

func isNoData(v, nodata float64) bool {
	return math.IsNaN(v) || v == nodata
}

// RasterToImage renders band 0 of r as gray, stretching [lo, hi] linearly
// to [0, 255]. When lo >= hi the band's own range is used. No-data pixels
// are transparent.
func RasterToImage(r *raster.Raster, nodata, lo, hi float64) *image.RGBA {
	if lo >= hi {
		if mn, mx, ok := r.MinMax(0, nodata); ok {
			lo, hi = mn, mx
		}
	}
	span := hi - lo

	img := image.NewRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	for y := 0; y < r.Height(); y++ {
		for x := 0; x < r.Width(); x++ {
			v := r.Get(x, y, 0)
			if isNoData(v, nodata) {
				continue
			}
			g := uint8(0)
			if span > 0 {
				g = uint8(math.Round(min(max((v-lo)*255/span, 0), 255)))
			}
			img.SetRGBA(x, y, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}
	return img
}

// RasterToTerrarium encodes band 0 of r as Terrarium elevation RGB. No-data
// pixels are transparent.
func RasterToTerrarium(r *raster.Raster, nodata float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width(), r.Height()))
	for y := 0; y < r.Height(); y++ {
		for x := 0; x < r.Width(); x++ {
			v := r.Get(x, y, 0)
			if isNoData(v, nodata) {
				continue
			}
			img.SetRGBA(x, y, ElevationToTerrarium(v))
		}
	}
	return img
}

// Render renders r for enc: Terrarium encoders get elevation RGB, every
// other format a gray stretch.
func Render(enc Encoder, r *raster.Raster, nodata, lo, hi float64) ([]byte, error) {
	var img image.Image
	if enc.Format() == "terrarium" {
		img = RasterToTerrarium(r, nodata)
	} else {
		img = RasterToImage(r, nodata, lo, hi)
	}
	return enc.Encode(img)
}
