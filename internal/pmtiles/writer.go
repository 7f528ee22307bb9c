package pmtiles

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ErrFinalized is returned when writing to a writer that has been finalized
// or aborted.
var ErrFinalized = errors.New("pmtiles: writer already finalized")

type blob struct {
	offset uint64
	length uint32
}

// Writer builds a PMTiles v3 archive in two passes. Tiles are appended to a
// spill file as they arrive; Finalize reorders the data by tile ID, writes
// the directories and assembles the archive.
//
// Tiles with identical bytes are stored once and share their data.
type Writer struct {
	path string
	opts WriterOptions
	hash func([]byte) uint64

	mu        sync.Mutex
	spill     *os.File
	spillDir  string
	spillLen  uint64
	entries   []Entry
	seen      map[uint64][]blob
	unique    int
	finalized bool
}

// NewWriter creates a writer that will produce the archive at path.
func NewWriter(path string, opts WriterOptions) (*Writer, error) {
	dir := opts.TempDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	f, err := os.CreateTemp(dir, "mrspyramid-tiles-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("creating spill file: %w", err)
	}
	return &Writer{
		path:     path,
		opts:     opts,
		spill:    f,
		spillDir: dir,
		hash:     xxhash.Sum64,
		seen:     make(map[uint64][]blob),
	}, nil
}

// WriteTile stores one tile. Empty payloads are ignored. Safe for concurrent
// use.
func (w *Writer) WriteTile(z int, x, y int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	id := TileID(z, x, y)
	sum := w.hash(data)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}

	b, ok, err := w.stored(sum, data)
	if err != nil {
		return fmt.Errorf("writing tile z%d/%d/%d: %w", z, x, y, err)
	}
	if ok {
		w.entries = append(w.entries, Entry{TileID: id, Offset: b.offset, Length: b.length, RunLength: 1})
		return nil
	}

	n, err := w.spill.Write(data)
	if err != nil {
		return fmt.Errorf("writing tile z%d/%d/%d: %w", z, x, y, err)
	}
	b = blob{offset: w.spillLen, length: uint32(n)}
	w.spillLen += uint64(n)
	w.seen[sum] = append(w.seen[sum], b)
	w.unique++
	w.entries = append(w.entries, Entry{TileID: id, Offset: b.offset, Length: b.length, RunLength: 1})
	return nil
}

// stored returns the spilled copy of data, if any. A hash match is
// confirmed against the spilled bytes.
func (w *Writer) stored(sum uint64, data []byte) (blob, bool, error) {
	var buf []byte
	for _, b := range w.seen[sum] {
		if b.length != uint32(len(data)) {
			continue
		}
		if buf == nil {
			buf = make([]byte, len(data))
		}
		if _, err := w.spill.ReadAt(buf, int64(b.offset)); err != nil {
			return blob{}, false, fmt.Errorf("reading spilled tile: %w", err)
		}
		if bytes.Equal(buf, data) {
			return b, true, nil
		}
	}
	return blob{}, false, nil
}

// SetMetadata replaces the JSON metadata and zoom range recorded by Finalize.
func (w *Writer) SetMetadata(meta any, minZoom, maxZoom int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opts.Metadata = meta
	w.opts.MinZoom, w.opts.MaxZoom = minZoom, maxZoom
}

// Finalize writes the archive and removes the spill file.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true
	defer w.removeSpill()

	sort.Slice(w.entries, func(i, j int) bool { return w.entries[i].TileID < w.entries[j].TileID })
	if err := w.cluster(); err != nil {
		return fmt.Errorf("clustering tile data: %w", err)
	}

	root, leaves, err := buildDirectory(w.entries)
	if err != nil {
		return fmt.Errorf("building directory: %w", err)
	}
	meta, err := w.metadata()
	if err != nil {
		return err
	}

	h := NewHeader(w.opts)
	h.RootDirOffset = HeaderSize
	h.RootDirLength = uint64(len(root))
	h.MetadataOffset = h.RootDirOffset + h.RootDirLength
	h.MetadataLength = uint64(len(meta))
	h.LeafDirOffset = h.MetadataOffset + h.MetadataLength
	h.LeafDirLength = uint64(len(leaves))
	h.TileDataOffset = h.LeafDirOffset + h.LeafDirLength
	h.TileDataLength = w.spillLen
	h.NumAddressedTiles = uint64(len(w.entries))
	h.NumTileEntries = uint64(len(mergeRuns(append([]Entry(nil), w.entries...))))
	h.NumTileContents = uint64(w.unique)

	out, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	for _, part := range [][]byte{h.Serialize(), root, meta, leaves} {
		if _, err := out.Write(part); err != nil {
			out.Close()
			return fmt.Errorf("writing %s: %w", w.path, err)
		}
	}
	if _, err := w.spill.Seek(0, io.SeekStart); err != nil {
		out.Close()
		return fmt.Errorf("seeking spill file: %w", err)
	}
	if _, err := io.Copy(out, w.spill); err != nil {
		out.Close()
		return fmt.Errorf("copying tile data: %w", err)
	}
	return out.Close()
}

// cluster rewrites the spill file in tile ID order so the archive is
// clustered. Shared payloads are copied once, at their first use.
func (w *Writer) cluster() error {
	next, err := os.CreateTemp(w.spillDir, "mrspyramid-clustered-*.tmp")
	if err != nil {
		return err
	}
	moved := make(map[uint64]uint64) // old offset -> new offset
	var off uint64
	var buf []byte
	for i := range w.entries {
		e := &w.entries[i]
		if n, ok := moved[e.Offset]; ok {
			e.Offset = n
			continue
		}
		if cap(buf) < int(e.Length) {
			buf = make([]byte, e.Length)
		}
		buf = buf[:e.Length]
		if _, err := w.spill.ReadAt(buf, int64(e.Offset)); err != nil {
			next.Close()
			os.Remove(next.Name())
			return fmt.Errorf("reading tile at %d: %w", e.Offset, err)
		}
		if _, err := next.Write(buf); err != nil {
			next.Close()
			os.Remove(next.Name())
			return err
		}
		moved[e.Offset] = off
		e.Offset = off
		off += uint64(e.Length)
	}
	w.removeSpill()
	w.spill = next
	w.spillLen = off
	return nil
}

func (w *Writer) metadata() ([]byte, error) {
	if w.opts.Metadata == nil {
		return nil, nil
	}
	raw, err := json.Marshal(w.opts.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return gzipBytes(raw)
}

func (w *Writer) removeSpill() {
	if w.spill == nil {
		return
	}
	name := w.spill.Name()
	w.spill.Close()
	os.Remove(name)
	w.spill = nil
}

// Abort discards everything written so far.
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized = true
	w.removeSpill()
}
