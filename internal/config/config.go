// Package config loads runtime settings from flags, environment and an
// optional config file through viper.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/logger"
	"github.com/pspoerri/mrspyramid/internal/raster"
)

// EnvPrefix is prepended to every environment variable, e.g.
// MRSPYRAMID_SERVER_PORT for server.port.
const EnvPrefix = "MRSPYRAMID"

type Config struct {
	Log           logger.Config
	TileSize      int
	MaxSplitTiles int
	Resampling    raster.Resampling
	Concurrency   int
	CacheTiles    int
	// TempDir holds spill files of the pyramid builder; empty means the
	// system temp directory.
	TempDir string
	// SpillFraction is the share of system RAM the builder may fill with
	// tiles before spilling a level to disk. 0 keeps everything in memory.
	SpillFraction float64
	Server        ServerConfig
}

type ServerConfig struct {
	Bind    string
	Port    int
	Timeout time.Duration
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Bind, s.Port)
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
	v.SetDefault("tile-size", coord.DefaultTileSize)
	v.SetDefault("max-split-tiles", 1024)
	v.SetDefault("resampling", "bilinear")
	v.SetDefault("concurrency", runtime.NumCPU())
	v.SetDefault("cache-tiles", 4096)
	v.SetDefault("temp-dir", "")
	v.SetDefault("spill-fraction", 0.9)
	v.SetDefault("server.bind", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout", 30*time.Second)
}

// New returns a viper instance with defaults and environment binding set
// up. When file is non-empty it is read as well.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	}
	return v, nil
}

// Load reads a Config out of v and validates it.
func Load(v *viper.Viper) (Config, error) {
	mode, err := raster.ParseResampling(v.GetString("resampling"))
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Log: logger.Config{
			Level:   v.GetString("log.level"),
			Console: v.GetBool("log.console"),
		},
		TileSize:      v.GetInt("tile-size"),
		MaxSplitTiles: v.GetInt("max-split-tiles"),
		Resampling:    mode,
		Concurrency:   v.GetInt("concurrency"),
		CacheTiles:    v.GetInt("cache-tiles"),
		TempDir:       v.GetString("temp-dir"),
		SpillFraction: v.GetFloat64("spill-fraction"),
		Server: ServerConfig{
			Bind:    v.GetString("server.bind"),
			Port:    v.GetInt("server.port"),
			Timeout: v.GetDuration("server.timeout"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.TileSize <= 0 || c.TileSize&(c.TileSize-1) != 0 {
		errs = append(errs, fmt.Errorf("tile-size must be a positive power of two, got %d", c.TileSize))
	}
	if c.MaxSplitTiles <= 0 {
		errs = append(errs, fmt.Errorf("max-split-tiles must be positive, got %d", c.MaxSplitTiles))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.CacheTiles < 0 {
		errs = append(errs, fmt.Errorf("cache-tiles must not be negative, got %d", c.CacheTiles))
	}
	if c.SpillFraction < 0 || c.SpillFraction > 1 {
		errs = append(errs, fmt.Errorf("spill-fraction must be within [0, 1], got %g", c.SpillFraction))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	return errors.Join(errs...)
}
