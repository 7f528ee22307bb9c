package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/pspoerri/mrspyramid/internal/coord"
)

// Entry is one directory record. RunLength 0 marks a pointer to a leaf
// directory; otherwise RunLength consecutive tile IDs share the same data.
type Entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

const (
	maxRootEntries = 16384
	leafEntries    = 4096
)

// zoomBase returns the first tile ID at zoom z: the number of tiles in all
// coarser levels.
func zoomBase(z int) uint64 {
	var acc uint64
	for i := 0; i < z; i++ {
		acc += uint64(1) << uint(2*i)
	}
	return acc
}

// TileID returns the Hilbert-ordered archive ID of tile z/x/y.
func TileID(z int, x, y int64) uint64 {
	if z == 0 {
		return 0
	}
	return zoomBase(z) + coord.XYToHilbert(uint64(x), uint64(y), uint64(1)<<uint(z))
}

// TileIDToZXY inverts TileID.
func TileIDToZXY(id uint64) (z int, x, y int64) {
	var acc uint64
	for {
		count := uint64(1) << uint(2*z)
		if acc+count > id {
			break
		}
		acc += count
		z++
	}
	hx, hy := coord.HilbertToXY(id-acc, uint64(1)<<uint(z))
	return z, int64(hx), int64(hy)
}

// mergeRuns collapses entries whose IDs and data are both contiguous into
// runs. Input must be sorted by TileID.
func mergeRuns(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	cur := entries[0]
	cur.RunLength = 1
	for _, e := range entries[1:] {
		nextID := cur.TileID + uint64(cur.RunLength)
		// Runs repeat one payload, so a contiguous run shares the offset.
		if e.TileID == nextID && e.Offset == cur.Offset && e.Length == cur.Length {
			cur.RunLength++
			continue
		}
		out = append(out, cur)
		cur = e
		cur.RunLength = 1
	}
	return append(out, cur)
}

// buildDirectory sorts entries and encodes the root directory, spilling into
// leaf directories when there are too many entries for the root.
func buildDirectory(entries []Entry) (root, leaves []byte, err error) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].TileID < entries[j].TileID })
	runs := mergeRuns(entries)
	if len(runs) <= maxRootEntries {
		root, err = encodeDirectory(runs)
		return root, nil, err
	}

	var leafBuf bytes.Buffer
	var pointers []Entry
	for start := 0; start < len(runs); start += leafEntries {
		chunk := runs[start:min(start+leafEntries, len(runs))]
		data, err := encodeDirectory(chunk)
		if err != nil {
			return nil, nil, err
		}
		pointers = append(pointers, Entry{
			TileID: chunk[0].TileID,
			Offset: uint64(leafBuf.Len()),
			Length: uint32(len(data)),
		})
		leafBuf.Write(data)
	}
	root, err = encodeDirectory(pointers)
	return root, leafBuf.Bytes(), err
}

// encodeDirectory writes the columnar varint layout and gzips it.
func encodeDirectory(entries []Entry) ([]byte, error) {
	var raw bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	put := func(v uint64) {
		raw.Write(tmp[:binary.PutUvarint(tmp[:], v)])
	}

	put(uint64(len(entries)))
	var prevID uint64
	for _, e := range entries {
		put(e.TileID - prevID)
		prevID = e.TileID
	}
	for _, e := range entries {
		put(uint64(e.RunLength))
	}
	for _, e := range entries {
		put(uint64(e.Length))
	}
	for i, e := range entries {
		// 0 means "directly after the previous entry's data".
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			put(0)
		} else {
			put(e.Offset + 1)
		}
	}
	return gzipBytes(raw.Bytes())
}

// DeserializeDirectory decodes a gzipped directory.
func DeserializeDirectory(data []byte) ([]Entry, error) {
	raw, err := gunzipBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decompressing directory: %w", err)
	}
	r := bytes.NewReader(raw)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("reading entry count: %w", err)
	}
	if n > uint64(len(raw)) {
		return nil, fmt.Errorf("entry count %d exceeds directory size", n)
	}

	entries := make([]Entry, n)
	column := func(name string, set func(i int, v uint64)) error {
		for i := range entries {
			v, err := binary.ReadUvarint(r)
			if err != nil {
				return fmt.Errorf("reading %s %d: %w", name, i, err)
			}
			set(i, v)
		}
		return nil
	}

	var id uint64
	if err := column("tile id", func(i int, v uint64) { id += v; entries[i].TileID = id }); err != nil {
		return nil, err
	}
	if err := column("run length", func(i int, v uint64) { entries[i].RunLength = uint32(v) }); err != nil {
		return nil, err
	}
	if err := column("length", func(i int, v uint64) { entries[i].Length = uint32(v) }); err != nil {
		return nil, err
	}
	err = column("offset", func(i int, v uint64) {
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
