package pyramid

import (
	"sync"

	"github.com/pspoerri/mrspyramid/internal/raster"
)

type rasterPoolKey struct {
	w, h, bands int
	dt          raster.DataType
}

// rasterPools maps a raster layout to a *sync.Pool of *raster.Raster. A
// build uses one layout, so the map stays tiny.
var rasterPools sync.Map

// getRaster returns a raster of the given layout with every band set to its
// no-data value, reusing a pooled one when available.
func getRaster(w, h, bands int, dt raster.DataType, nodatas []float64) *raster.Raster {
	key := rasterPoolKey{w, h, bands, dt}
	if p, ok := rasterPools.Load(key); ok {
		if v := p.(*sync.Pool).Get(); v != nil {
			r := v.(*raster.Raster)
			r.Fill(nodatas)
			return r
		}
	}
	return raster.NewFilled(w, h, bands, dt, nodatas)
}

// putRaster returns r to its pool. Nil rasters are ignored.
func putRaster(r *raster.Raster) {
	if r == nil {
		return
	}
	key := rasterPoolKey{r.Width(), r.Height(), r.Bands(), r.DataType()}
	p, _ := rasterPools.LoadOrStore(key, &sync.Pool{})
	p.(*sync.Pool).Put(r)
}
