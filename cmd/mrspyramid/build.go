package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/input"
	"github.com/pspoerri/mrspyramid/internal/logger"
	"github.com/pspoerri/mrspyramid/internal/pyramid"
)

type buildFlags struct {
	output     string
	fromZoom   int
	toZoom     int
	bbox       string
	progress   bool
	memLimitMB int
	noSpill    bool
	cpuProfile string
	memProfile string
}

func newBuildCmd(a *app) *cobra.Command {
	var f buildFlags
	cmd := &cobra.Command{
		Use:   "build <input>... --output <pyramid>",
		Short: "Merge pyramids and build every coarser level",
		Long: `build copies the base level of the inputs into the output, then resamples
each coarser level from the one below until --to-zoom. Where inputs overlap,
a tile comes from the split whose top-left corner sorts first in row-major
order; input order only decides between splits with equal corners. The
output is only published when every level succeeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBuild(cmd, args, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "output pyramid (required)")
	fl.IntVar(&f.fromZoom, "from-zoom", input.Deepest, "base zoom level (default: deepest level of the inputs)")
	fl.IntVar(&f.toZoom, "to-zoom", 0, "coarsest zoom level to build")
	fl.StringVar(&f.bbox, "bbox", "", "crop to west,south,east,north in degrees")
	fl.BoolVar(&f.progress, "progress", true, "draw a progress bar per level")
	fl.IntVar(&f.memLimitMB, "mem-limit", 0, "level store memory limit in MB before disk spilling (0 = derived from --spill-fraction)")
	fl.BoolVar(&f.noSpill, "no-spill", false, "keep every level in memory")
	fl.String("temp-dir", "", "directory for spill files (default: system temp dir)")
	fl.Float64("spill-fraction", pyramid.DefaultSpillFraction, "share of system RAM used before spilling")
	fl.StringVar(&f.cpuProfile, "cpuprofile", "", "write a CPU profile to file")
	fl.StringVar(&f.memProfile, "memprofile", "", "write a memory profile to file")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, inputs []string, f buildFlags) error {
	log := logger.Component(a.log, "build")

	if f.cpuProfile != "" {
		pf, err := os.Create(f.cpuProfile)
		if err != nil {
			return fmt.Errorf("creating CPU profile: %w", err)
		}
		defer pf.Close()
		if err := pprof.StartCPUProfile(pf); err != nil {
			return fmt.Errorf("starting CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}
	if f.memProfile != "" {
		defer writeHeapProfile(f.memProfile, log)
	}

	var memLimit int64
	switch {
	case f.noSpill:
	case f.memLimitMB > 0:
		memLimit = int64(f.memLimitMB) * 1024 * 1024
	default:
		memLimit = pyramid.ComputeMemoryLimit(a.cfg.SpillFraction, log)
	}

	cfg := pyramid.Config{
		Inputs:        inputs,
		Output:        f.output,
		FromZoom:      f.fromZoom,
		ToZoom:        f.toZoom,
		Concurrency:   a.cfg.Concurrency,
		Resampling:    a.cfg.Resampling,
		MaxSplitTiles: a.cfg.MaxSplitTiles,
		TempDir:       a.cfg.TempDir,
		MemoryLimit:   memLimit,
		Metrics:       a.metrics.Set(),
	}
	if f.bbox != "" {
		b, err := coord.ParseBounds(f.bbox)
		if err != nil {
			return err
		}
		cfg.Bounds = &b
	}
	if f.progress {
		cfg.Progress = cmd.ErrOrStderr()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mrspyramid %s (commit %s, built %s)\n", version, commit, buildDate)
	fmt.Fprintf(out, "  %-14s %d input(s)\n", "Input:", len(inputs))
	fmt.Fprintf(out, "  %-14s %s\n", "Output:", f.output)
	fmt.Fprintf(out, "  %-14s %s\n", "Resampling:", cfg.Resampling)
	fmt.Fprintf(out, "  %-14s %d\n", "Concurrency:", cfg.Concurrency)
	if memLimit > 0 {
		fmt.Fprintf(out, "  %-14s %s\n", "Mem limit:", humanSize(memLimit))
	} else {
		fmt.Fprintf(out, "  %-14s disabled (all in memory)\n", "Disk spill:")
	}

	start := time.Now()
	stats, err := pyramid.Build(cmd.Context(), cfg, a.registry, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Done: base zoom %d, %d level(s), %d copied + %d built tiles (%d empty), %s in %v\n",
		stats.BaseZoom, stats.Levels, stats.CopiedTiles, stats.TileCount, stats.EmptyTiles,
		humanSize(stats.TotalBytes), time.Since(start).Round(time.Millisecond))
	return nil
}

func writeHeapProfile(path string, log zerolog.Logger) {
	f, err := os.Create(path)
	if err != nil {
		log.Error().Err(err).Msg("Creating memory profile")
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Error().Err(err).Msg("Writing memory profile")
	}
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
