// Package metrics exposes Prometheus metrics for split planning, tile access
// and pyramid building.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version  string
	Revision string
}

type Provider struct {
	reg *prometheus.Registry
	set *Set
}

// Init creates a registry with the Go and process collectors, build info and
// the module's own metric set.
func Init(build BuildInfo) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mrspyramid_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision"},
	)
	reg.MustRegister(info)
	if build.Version == "" {
		build.Version = "dev"
	}
	info.WithLabelValues(build.Version, build.Revision).Set(1)

	return &Provider{reg: reg, set: NewSet(reg)}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Set returns the metric set registered on this provider.
func (p *Provider) Set() *Set { return p.set }

// Set holds the module's collectors. A nil *Set is valid and records nothing,
// so library code can take one optionally.
type Set struct {
	splits   *prometheus.CounterVec
	tiles    *prometheus.CounterVec
	cache    *prometheus.CounterVec
	resample *prometheus.HistogramVec
	built    *prometheus.CounterVec
	bytes    prometheus.Counter
	http     *prometheus.HistogramVec
}

func NewSet(r prometheus.Registerer) *Set {
	s := &Set{
		splits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mrspyramid_splits_total",
				Help: "Splits seen during planning, by stage (discovered, cropped, emitted).",
			},
			[]string{"stage"},
		),
		tiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mrspyramid_tiles_read_total",
				Help: "Tiles visited by record readers, by outcome.",
			},
			[]string{"outcome"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mrspyramid_tile_cache_total",
				Help: "Tile cache lookups by outcome.",
			},
			[]string{"outcome"},
		),
		resample: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mrspyramid_resample_seconds",
				Help:    "Time spent resampling one raster.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
			},
			[]string{"mode"},
		),
		built: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mrspyramid_pyramid_tiles_total",
				Help: "Tiles produced by the pyramid builder, by outcome.",
			},
			[]string{"outcome"},
		),
		bytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mrspyramid_pyramid_bytes_total",
				Help: "Bytes written by the pyramid builder.",
			},
		),
		http: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mrspyramid_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"method", "route", "status"},
		),
	}
	if r != nil {
		r.MustRegister(s.splits, s.tiles, s.cache, s.resample, s.built, s.bytes, s.http)
	}
	return s
}

func (s *Set) Splits(stage string, n int) {
	if s == nil || n == 0 {
		return
	}
	s.splits.WithLabelValues(stage).Add(float64(n))
}

func (s *Set) Tile(outcome string) {
	if s == nil {
		return
	}
	s.tiles.WithLabelValues(outcome).Inc()
}

func (s *Set) CacheHit() {
	if s == nil {
		return
	}
	s.cache.WithLabelValues("hit").Inc()
}

func (s *Set) CacheMiss() {
	if s == nil {
		return
	}
	s.cache.WithLabelValues("miss").Inc()
}

func (s *Set) ObserveResample(mode string, d time.Duration) {
	if s == nil {
		return
	}
	s.resample.WithLabelValues(mode).Observe(d.Seconds())
}

func (s *Set) PyramidTile(outcome string, size int) {
	if s == nil {
		return
	}
	s.built.WithLabelValues(outcome).Inc()
	if size > 0 {
		s.bytes.Add(float64(size))
	}
}

func (s *Set) ObserveHTTP(method, route, status string, d time.Duration) {
	if s == nil {
		return
	}
	s.http.WithLabelValues(method, route, status).Observe(d.Seconds())
}
