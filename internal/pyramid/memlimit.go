package pyramid

import (
	"runtime"

	"github.com/rs/zerolog"
)

// DefaultSpillFraction is the share of total RAM at which a level store
// starts spilling to disk.
const DefaultSpillFraction = 0.90

// ComputeMemoryLimit returns the bytes of tiles a level store may hold
// before spilling: fraction of system RAM minus the current Go runtime
// footprint and 2 GB of headroom. It returns 0, which disables spilling,
// when RAM cannot be detected or the result is below 512 MB.
func ComputeMemoryLimit(fraction float64, log zerolog.Logger) int64 {
	if fraction <= 0 {
		return 0
	}
	totalRAM, err := totalSystemRAM()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot detect system RAM, disk spilling disabled")
		return 0
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	overhead := m.Sys + 2*1024*1024*1024

	limit := int64(float64(totalRAM)*fraction) - int64(overhead)
	if limit < 512*1024*1024 {
		log.Info().
			Float64("limit_mb", float64(limit)/(1024*1024)).
			Msg("Computed memory limit too small, disk spilling disabled")
		return 0
	}

	log.Debug().
		Float64("ram_gb", float64(totalRAM)/(1024*1024*1024)).
		Float64("limit_gb", float64(limit)/(1024*1024*1024)).
		Float64("fraction", fraction).
		Msg("Level store memory limit")
	return limit
}
