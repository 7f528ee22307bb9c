package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pspoerri/mrspyramid/internal/logger"
	"github.com/pspoerri/mrspyramid/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve split plans and rendered tiles over HTTP",
		Long: `serve starts an HTTP server with these routes:

  GET /healthz
  GET /metrics
  GET /splits?input=<pyramid>[&input=...]&zoom=<z>&bbox=w,s,e,n
  GET /tiles/<pyramid>/<z>/<x>/<y>.<png|jpg|webp>[?format=terrarium&min=&max=]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := server.New(server.Options{
				Registry:      a.registry,
				Logger:        logger.Component(a.log, "http"),
				Metrics:       a.metrics,
				CacheTiles:    a.cfg.CacheTiles,
				MaxSplitTiles: a.cfg.MaxSplitTiles,
				Timeout:       a.cfg.Server.Timeout,
			})
			defer s.Close()
			return server.Run(cmd.Context(), a.cfg.Server.Addr(), s.Router(), a.cfg.Server.Timeout, a.log)
		},
	}
	fl := cmd.Flags()
	fl.StringP("bind", "b", "localhost", "bind address")
	fl.IntP("port", "p", 8080, "port to listen on")
	fl.Duration("timeout", 30*time.Second, "request timeout")
	fl.Int("cache-tiles", 4096, "tiles cached per pyramid (0 disables the cache)")
	return cmd
}
