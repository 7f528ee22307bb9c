package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pspoerri/mrspyramid/internal/config"
	"github.com/pspoerri/mrspyramid/internal/logger"
	"github.com/pspoerri/mrspyramid/internal/metrics"
	"github.com/pspoerri/mrspyramid/internal/store"
	"github.com/pspoerri/mrspyramid/internal/store/boltstore"
	"github.com/pspoerri/mrspyramid/internal/store/mbtiles"
	"github.com/pspoerri/mrspyramid/internal/store/memstore"
	"github.com/pspoerri/mrspyramid/internal/store/pmtilesstore"
	"github.com/pspoerri/mrspyramid/internal/store/redisstore"
)

// app carries what every command shares. cfg and log are set once flags
// are parsed.
type app struct {
	cfgFile  string
	registry *store.Registry
	mem      *memstore.Namespace
	metrics  *metrics.Provider
	logOut   io.Writer

	v   *viper.Viper
	cfg config.Config
	log zerolog.Logger
}

func newApp() *app {
	a := &app{
		registry: store.NewRegistry(),
		mem:      memstore.NewNamespace(),
		metrics:  metrics.Init(metrics.BuildInfo{Version: version, Revision: commit}),
		logOut:   os.Stderr,
	}
	a.registry.Register("pmtiles", pmtilesstore.Open)
	a.registry.Register("bolt", boltstore.Open)
	a.registry.Register("mbtiles", mbtiles.Open)
	a.registry.Register("redis", redisstore.Open)
	a.registry.Register("mem", a.mem.Factory())
	return a
}

// flagKeys maps config keys to flags whose names differ from the key.
var flagKeys = map[string]string{
	"log.level":      "log-level",
	"log.console":    "log-console",
	"server.bind":    "bind",
	"server.port":    "port",
	"server.timeout": "timeout",
}

// load reads the configuration of cmd: flags over environment over the
// config file over defaults.
func (a *app) load(cmd *cobra.Command) error {
	v, err := config.New(a.cfgFile)
	if err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.v, a.cfg = v, cfg
	a.log = logger.Build(cfg.Log, a.logOut)
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "mrspyramid",
		Short: "Plan, build and serve tiled raster pyramids",
		Long: `mrspyramid works on tiled raster pyramids kept in pmtiles, bolt, mbtiles,
redis or in-memory stores. Pyramids are named "scheme:location", e.g.
pmtiles:dem.pmtiles, bolt:/data/dem.db?pyramid=dem or
redis://localhost:6379/0?pyramid=dem.

Examples:
  # Show how two overlapping pyramids are split at zoom 12
  mrspyramid splits bolt:a.db bolt:b.db --zoom 12

  # Merge two pyramids and build every coarser level down to zoom 0
  mrspyramid build bolt:a.db bolt:b.db --output pmtiles:merged.pmtiles

  # Serve rendered tiles and split plans
  mrspyramid serve --port 8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, toml or json)")
	pf.String("log-level", "info", "log level: trace, debug, info, warn, error")
	pf.Bool("log-console", false, "human-readable console logs instead of JSON")
	pf.Int("concurrency", 0, "number of parallel workers (default: number of CPUs)")
	pf.Int("max-split-tiles", 1024, "maximum tiles per split")
	pf.String("resampling", "bilinear", "resampling: bilinear, nearest")

	root.AddCommand(
		newSplitsCmd(a),
		newInfoCmd(a),
		newBuildCmd(a),
		newResampleCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}
