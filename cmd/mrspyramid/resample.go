package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pspoerri/mrspyramid/internal/encode"
	"github.com/pspoerri/mrspyramid/internal/raster"
)

type resampleFlags struct {
	zoom    int
	x, y    int64
	size    int
	out     string
	format  string
	quality int
}

func newResampleCmd(a *app) *cobra.Command {
	var f resampleFlags
	cmd := &cobra.Command{
		Use:   "resample <pyramid> --zoom z --x x --y y --out <file>",
		Short: "Resample one stored tile to another size",
		Long: `resample reads one tile, resamples it to --size pixels square with the
configured resampling and writes it to --out. Files ending in .png, .jpg or
.webp are rendered as images (--format terrarium for elevation RGB); any
other extension receives the raw raster payload.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runResample(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&f.zoom, "zoom", 0, "tile zoom level")
	fl.Int64Var(&f.x, "x", 0, "tile column")
	fl.Int64Var(&f.y, "y", 0, "tile row")
	fl.IntVar(&f.size, "size", 0, "output size in pixels (default: tile-size)")
	fl.StringVarP(&f.out, "out", "o", "", "output file (required)")
	fl.StringVar(&f.format, "format", "", "image format overriding the extension")
	fl.IntVar(&f.quality, "quality", 85, "JPEG/WebP quality 1-100")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) runResample(cmd *cobra.Command, name string, f resampleFlags) error {
	ctx := cmd.Context()
	size := f.size
	if size <= 0 {
		size = a.cfg.TileSize
	}

	p, err := a.registry.Open(ctx, name)
	if err != nil {
		return err
	}
	defer p.Close()
	meta, err := p.Metadata(ctx)
	if err != nil {
		return err
	}
	r, err := p.OpenReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	data, err := r.ReadTile(ctx, f.zoom, f.x, f.y)
	if err != nil {
		return fmt.Errorf("tile z%d/%d/%d of %s: %w", f.zoom, f.x, f.y, name, err)
	}
	src, err := raster.Unmarshal(data)
	if err != nil {
		return err
	}

	dst := raster.New(size, size, src.Bands(), src.DataType())
	if err := raster.Compatible(src, dst); err != nil {
		return err
	}
	raster.Resample(src, dst, meta.NoData, a.cfg.Resampling)

	format := f.format
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(f.out)), ".")
	}
	var payload []byte
	switch format {
	case "png", "jpg", "jpeg", "webp", "terrarium":
		enc, err := encode.NewEncoder(format, f.quality)
		if err != nil {
			return err
		}
		if payload, err = encode.Render(enc, dst, meta.NoData[0], 0, 0); err != nil {
			return err
		}
	default:
		payload = raster.Marshal(dst)
	}
	if err := os.WriteFile(f.out, payload, 0o644); err != nil {
		return err
	}

	a.log.Info().
		Str("pyramid", name).
		Str("tile", fmt.Sprintf("z%d/%d/%d", f.zoom, f.x, f.y)).
		Str("from", src.String()).
		Str("to", dst.String()).
		Str("out", f.out).
		Msg("Tile resampled")
	return nil
}
