// Package encode renders raster tiles as web images.
package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/webp"
)

// Encoder encodes an image into tile bytes.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)

	// Format returns the canonical format name: jpeg, png, webp or terrarium.
	Format() string

	// ContentType returns the MIME type served for the format.
	ContentType() string

	FileExtension() string
}

// DefaultQuality applies to jpeg and webp when no quality is given.
const DefaultQuality = 85

type codec struct {
	format      string
	contentType string
	ext         string
	encode      func(w *bytes.Buffer, img image.Image) error
}

func (c codec) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", c.format, err)
	}
	return buf.Bytes(), nil
}

func (c codec) Format() string        { return c.format }
func (c codec) ContentType() string   { return c.contentType }
func (c codec) FileExtension() string { return c.ext }

var pngEncoder = &png.Encoder{CompressionLevel: png.BestSpeed}

func encodePNG(w *bytes.Buffer, img image.Image) error { return pngEncoder.Encode(w, img) }

// NewEncoder returns the encoder for format. quality applies to jpeg and
// webp; values <= 0 mean DefaultQuality. Terrarium is PNG whose image
// already holds elevation RGB, see RasterToTerrarium.
func NewEncoder(format string, quality int) (Encoder, error) {
	if quality <= 0 {
		quality = DefaultQuality
	}
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return codec{"jpeg", "image/jpeg", ".jpg", func(w *bytes.Buffer, img image.Image) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		}}, nil
	case "png":
		return codec{"png", "image/png", ".png", encodePNG}, nil
	case "webp":
		// The codec runs through a system libwebp when one is found and
		// through WASM otherwise.
		return codec{"webp", "image/webp", ".webp", func(w *bytes.Buffer, img image.Image) error {
			return webp.Encode(w, img, webp.Options{Quality: quality})
		}}, nil
	case "terrarium":
		return codec{"terrarium", "image/png", ".png", encodePNG}, nil
	default:
		return nil, fmt.Errorf("unsupported tile format: %q (supported: jpeg, png, webp, terrarium)", format)
	}
}
