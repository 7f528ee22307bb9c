package pmtiles

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pspoerri/mrspyramid/internal/coord"
)

// Reader provides random access to a PMTiles v3 archive. All directories are
// loaded on open.
type Reader struct {
	file   *os.File
	header Header
	// ids is sorted; refs[i] locates the data of ids[i].
	ids  []uint64
	refs map[uint64]tileRef
}

type tileRef struct {
	offset uint64
	length uint32
}

// Open reads the header and every directory of the archive at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	r := &Reader{file: f, refs: make(map[uint64]tileRef)}
	if err := r.load(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) load() error {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r.file, buf); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	h, err := DeserializeHeader(buf)
	if err != nil {
		return err
	}
	r.header = h

	root, err := r.readDirectory(h.RootDirOffset, h.RootDirLength)
	if err != nil {
		return fmt.Errorf("root directory: %w", err)
	}
	for _, e := range root {
		if e.RunLength > 0 {
			r.add(e)
			continue
		}
		leaf, err := r.readDirectory(h.LeafDirOffset+e.Offset, uint64(e.Length))
		if err != nil {
			return fmt.Errorf("leaf directory at %d: %w", e.Offset, err)
		}
		for _, le := range leaf {
			r.add(le)
		}
	}
	sort.Slice(r.ids, func(i, j int) bool { return r.ids[i] < r.ids[j] })
	return nil
}

func (r *Reader) readDirectory(offset, length uint64) ([]Entry, error) {
	data := make([]byte, length)
	if _, err := r.file.ReadAt(data, int64(offset)); err != nil {
		return nil, err
	}
	return DeserializeDirectory(data)
}

// add expands a run into one reference per tile ID.
func (r *Reader) add(e Entry) {
	ref := tileRef{offset: r.header.TileDataOffset + e.Offset, length: e.Length}
	for i := uint32(0); i < e.RunLength; i++ {
		id := e.TileID + uint64(i)
		r.refs[id] = ref
		r.ids = append(r.ids, id)
	}
}

func (r *Reader) Header() Header {
	return r.header
}

// ReadTile returns the bytes of tile z/x/y, or nil if the archive has no
// such tile.
func (r *Reader) ReadTile(z int, x, y int64) ([]byte, error) {
	ref, ok := r.refs[TileID(z, x, y)]
	if !ok {
		return nil, nil
	}
	data := make([]byte, ref.length)
	if _, err := r.file.ReadAt(data, int64(ref.offset)); err != nil {
		return nil, fmt.Errorf("reading tile z%d/%d/%d: %w", z, x, y, err)
	}
	return data, nil
}

// TilesAtZoom lists the tiles present at zoom z in row-major order.
func (r *Reader) TilesAtZoom(z int) []coord.Tile {
	lo, hi := zoomBase(z), zoomBase(z+1)
	start := sort.Search(len(r.ids), func(i int) bool { return r.ids[i] >= lo })
	var tiles []coord.Tile
	for _, id := range r.ids[start:] {
		if id >= hi {
			break
		}
		_, x, y := TileIDToZXY(id)
		tiles = append(tiles, coord.Tile{Zoom: z, X: x, Y: y})
	}
	coord.SortTilesRowMajor(tiles)
	return tiles
}

// NumTiles returns the number of addressed tiles.
func (r *Reader) NumTiles() int {
	return len(r.ids)
}

// ReadMetadata decodes the archive's JSON metadata into v. It returns false
// when the archive carries no metadata.
func (r *Reader) ReadMetadata(v any) (bool, error) {
	if r.header.MetadataLength == 0 {
		return false, nil
	}
	raw := make([]byte, r.header.MetadataLength)
	if _, err := r.file.ReadAt(raw, int64(r.header.MetadataOffset)); err != nil {
		return false, fmt.Errorf("reading metadata: %w", err)
	}
	if r.header.InternalCompression == CompressionGzip {
		var err error
		if raw, err = gunzipBytes(raw); err != nil {
			return false, fmt.Errorf("decompressing metadata: %w", err)
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("parsing metadata JSON: %w", err)
	}
	return true, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}
