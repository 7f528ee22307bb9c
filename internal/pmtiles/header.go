package pmtiles

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pspoerri/mrspyramid/internal/coord"
)

// PMTiles v3 constants.
const (
	HeaderSize = 127

	CompressionUnknown = 0
	CompressionNone    = 1
	CompressionGzip    = 2

	// TileTypeUnknown marks payloads that are not an image or vector format;
	// raster pyramids store their native sample encoding under it.
	TileTypeUnknown = 0
	TileTypeMVT     = 1
	TileTypePNG     = 2
	TileTypeJPEG    = 3
	TileTypeWebP    = 4
)

// ErrNotPMTiles is returned when a file does not start with a v3 header.
var ErrNotPMTiles = errors.New("pmtiles: not a v3 archive")

// Header is the fixed 127-byte archive header.
type Header struct {
	RootDirOffset       uint64
	RootDirLength       uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirOffset       uint64
	LeafDirLength       uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	NumAddressedTiles   uint64
	NumTileEntries      uint64
	NumTileContents     uint64
	Clustered           bool
	InternalCompression uint8
	TileCompression     uint8
	TileType            uint8
	MinZoom             uint8
	MaxZoom             uint8
	Bounds              coord.Bounds
	CenterZoom          uint8
	CenterLon           float64
	CenterLat           float64
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	MinZoom  int
	MaxZoom  int
	Bounds   coord.Bounds
	TileType uint8
	// TempDir holds the spill file; defaults to the output directory.
	TempDir string
	// Metadata is stored as the archive's JSON metadata.
	Metadata any
}

// NewHeader returns a header with the layout fields left zero.
func NewHeader(opts WriterOptions) Header {
	return Header{
		Clustered:           true,
		InternalCompression: CompressionGzip,
		TileCompression:     CompressionNone,
		TileType:            opts.TileType,
		MinZoom:             uint8(opts.MinZoom),
		MaxZoom:             uint8(opts.MaxZoom),
		Bounds:              opts.Bounds,
		CenterZoom:          uint8((opts.MinZoom + opts.MaxZoom) / 2),
		CenterLon:           opts.Bounds.CenterLon(),
		CenterLat:           opts.Bounds.CenterLat(),
	}
}

// Serialize encodes the header.
func (h *Header) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:7], "PMTiles")
	buf[7] = 3

	le := binary.LittleEndian
	for i, v := range [11]uint64{
		h.RootDirOffset, h.RootDirLength,
		h.MetadataOffset, h.MetadataLength,
		h.LeafDirOffset, h.LeafDirLength,
		h.TileDataOffset, h.TileDataLength,
		h.NumAddressedTiles, h.NumTileEntries, h.NumTileContents,
	} {
		le.PutUint64(buf[8+i*8:], v)
	}

	if h.Clustered {
		buf[96] = 1
	}
	buf[97] = h.InternalCompression
	buf[98] = h.TileCompression
	buf[99] = h.TileType
	buf[100] = h.MinZoom
	buf[101] = h.MaxZoom
	le.PutUint32(buf[102:], toE7(h.Bounds.MinLon))
	le.PutUint32(buf[106:], toE7(h.Bounds.MinLat))
	le.PutUint32(buf[110:], toE7(h.Bounds.MaxLon))
	le.PutUint32(buf[114:], toE7(h.Bounds.MaxLat))
	buf[118] = h.CenterZoom
	le.PutUint32(buf[119:], toE7(h.CenterLon))
	le.PutUint32(buf[123:], toE7(h.CenterLat))
	return buf
}

// DeserializeHeader decodes a header produced by Serialize.
func DeserializeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize || string(buf[0:7]) != "PMTiles" {
		return Header{}, ErrNotPMTiles
	}
	if buf[7] != 3 {
		return Header{}, fmt.Errorf("%w: version %d", ErrNotPMTiles, buf[7])
	}

	le := binary.LittleEndian
	var u [11]uint64
	for i := range u {
		u[i] = le.Uint64(buf[8+i*8:])
	}
	return Header{
		RootDirOffset:       u[0],
		RootDirLength:       u[1],
		MetadataOffset:      u[2],
		MetadataLength:      u[3],
		LeafDirOffset:       u[4],
		LeafDirLength:       u[5],
		TileDataOffset:      u[6],
		TileDataLength:      u[7],
		NumAddressedTiles:   u[8],
		NumTileEntries:      u[9],
		NumTileContents:     u[10],
		Clustered:           buf[96] == 1,
		InternalCompression: buf[97],
		TileCompression:     buf[98],
		TileType:            buf[99],
		MinZoom:             buf[100],
		MaxZoom:             buf[101],
		Bounds: coord.Bounds{
			MinLon: fromE7(le.Uint32(buf[102:])),
			MinLat: fromE7(le.Uint32(buf[106:])),
			MaxLon: fromE7(le.Uint32(buf[110:])),
			MaxLat: fromE7(le.Uint32(buf[114:])),
		},
		CenterZoom: buf[118],
		CenterLon:  fromE7(le.Uint32(buf[119:])),
		CenterLat:  fromE7(le.Uint32(buf[123:])),
	}, nil
}

// toE7 encodes degrees as a signed fixed-point integer with 7 decimals.
func toE7(v float64) uint32 {
	return uint32(int32(math.Round(v * 1e7)))
}

func fromE7(v uint32) float64 {
	return float64(int32(v)) / 1e7
}
