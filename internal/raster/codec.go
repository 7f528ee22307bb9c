package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Tile payload layout, little-endian:
//
//	0   4  magic "MRSR"
//	4   1  version
//	5   1  data type
//	6   2  bands
//	8   4  width
//	12  4  height
//	16  .. samples, band-sequential
const (
	codecMagic   = "MRSR"
	codecVersion = 1
	headerLen    = 16
)

// ErrBadPayload is returned by Unmarshal for data that is not a raster tile.
var ErrBadPayload = errors.New("raster: malformed tile payload")

// Marshal serializes r.
func Marshal(r *Raster) []byte {
	n := r.width * r.height * r.bands
	buf := make([]byte, headerLen+n*r.dataType.Size())
	copy(buf[0:4], codecMagic)
	buf[4] = codecVersion
	buf[5] = byte(r.dataType)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(r.bands))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.width))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.height))

	body := buf[headerLen:]
	switch p := r.data.(type) {
	case []int32:
		for i, v := range p {
			binary.LittleEndian.PutUint32(body[i*4:], uint32(v))
		}
	case []float32:
		for i, v := range p {
			binary.LittleEndian.PutUint32(body[i*4:], math.Float32bits(v))
		}
	case []float64:
		for i, v := range p {
			binary.LittleEndian.PutUint64(body[i*8:], math.Float64bits(v))
		}
	}
	return buf
}

// Unmarshal decodes a payload produced by Marshal.
func Unmarshal(data []byte) (*Raster, error) {
	if len(data) < headerLen || string(data[0:4]) != codecMagic {
		return nil, ErrBadPayload
	}
	if data[4] != codecVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadPayload, data[4])
	}
	dt := DataType(data[5])
	if dt.Size() == 0 {
		return nil, fmt.Errorf("%w: unknown data type %d", ErrBadPayload, data[5])
	}
	bands := int(binary.LittleEndian.Uint16(data[6:8]))
	width := int(binary.LittleEndian.Uint32(data[8:12]))
	height := int(binary.LittleEndian.Uint32(data[12:16]))
	// Dimensions come from untrusted input: bound the pixel count by the
	// body length before multiplying.
	per := uint64(bands * dt.Size())
	pixels := uint64(width) * uint64(height)
	body := data[headerLen:]
	if per > 0 && pixels > uint64(len(body))/per || pixels*per != uint64(len(body)) {
		return nil, fmt.Errorf("%w: %dx%dx%d %v does not match %d body bytes",
			ErrBadPayload, width, height, bands, dt, len(body))
	}

	r := New(width, height, bands, dt)
	switch p := r.data.(type) {
	case []int32:
		for i := range p {
			p[i] = int32(binary.LittleEndian.Uint32(body[i*4:]))
		}
	case []float32:
		for i := range p {
			p[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
		}
	case []float64:
		for i := range p {
			p[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
		}
	}
	return r, nil
}
