package pyramid

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pspoerri/mrspyramid/internal/coord"
	"github.com/pspoerri/mrspyramid/internal/logger"
	"github.com/pspoerri/mrspyramid/internal/raster"
)

func TestLevelStore_InMemory(t *testing.T) {
	s := newLevelStore(3, t.TempDir(), 0, logger.Nop())
	defer s.Close()

	if err := s.Put(1, 2, []byte("a")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(1, 2)
	if err != nil || string(got) != "a" {
		t.Errorf("Get = %q, %v", got, err)
	}
	if got, err := s.Get(0, 0); got != nil || err != nil {
		t.Errorf("Get(missing) = %q, %v", got, err)
	}
	if !strings.Contains(s.Stats(), "flushes: 0") {
		t.Errorf("Stats = %s", s.Stats())
	}
}

func TestLevelStore_Spill(t *testing.T) {
	dir := t.TempDir()
	s := newLevelStore(3, dir, 10, logger.Nop())

	payloads := map[[2]int64]string{{0, 0}: "tile-0-0", {5, 1}: "tile-5-1", {2, 7}: "tile-2-7"}
	for k, v := range payloads {
		if err := s.Put(k[0], k[1], []byte(v)); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
	if s.file == nil {
		t.Fatal("no spill file after passing the memory limit")
	}
	for k, v := range payloads {
		got, err := s.Get(k[0], k[1])
		if err != nil || string(got) != v {
			t.Errorf("Get(%v) = %q, %v, want %q", k, got, err, v)
		}
	}

	name := s.file.Name()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("spill file %s left behind", name)
	}
}

func TestLevelStore_Parents(t *testing.T) {
	s := newLevelStore(3, t.TempDir(), 0, logger.Nop())
	defer s.Close()
	for _, c := range [][2]int64{{0, 0}, {1, 1}, {5, 0}, {4, 1}, {2, 3}} {
		_ = s.Put(c[0], c[1], []byte{1})
	}
	want := []coord.Tile{{Zoom: 2, X: 0, Y: 0}, {Zoom: 2, X: 2, Y: 0}, {Zoom: 2, X: 1, Y: 1}}
	got := s.Parents()
	if len(got) != len(want) {
		t.Fatalf("Parents = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Parents[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	tiles := s.Tiles()
	if len(tiles) != 5 || tiles[0] != (coord.Tile{Zoom: 3, X: 0, Y: 0}) || tiles[4] != (coord.Tile{Zoom: 3, X: 2, Y: 3}) {
		t.Errorf("Tiles = %v", tiles)
	}
}

func TestComputeMemoryLimit_Disabled(t *testing.T) {
	if got := ComputeMemoryLimit(0, logger.Nop()); got != 0 {
		t.Errorf("ComputeMemoryLimit(0) = %d", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[string]string{"0s": "0s", "45s": "45s", "83s": "1m23s", "3600s": "60m00s"}
	for in, want := range tests {
		d, _ := time.ParseDuration(in)
		if got := formatDuration(d); got != want {
			t.Errorf("formatDuration(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestRasterPool_Refills(t *testing.T) {
	nodata := []float64{-1}
	r := getRaster(3, 3, 1, raster.Int32, nodata)
	r.Set(1, 1, 0, 42)
	putRaster(r)

	for range 3 {
		got := getRaster(3, 3, 1, raster.Int32, nodata)
		if !got.IsNoData(nodata) {
			t.Fatal("pooled raster not reset to no-data")
		}
		putRaster(got)
	}
	if other := getRaster(2, 2, 1, raster.Int32, nodata); other.Width() != 2 {
		t.Errorf("width = %d, want 2", other.Width())
	}
	putRaster(nil)
}

func TestProgressBar(t *testing.T) {
	var buf strings.Builder
	pb := newProgressBar(nil, "Zoom  3", "tiles", 4)
	for range 3 {
		pb.Increment()
	}
	line := pb.line(pb.done.Load(), 30*time.Second, false)
	for _, want := range []string{"Zoom  3", " 75%", "3/4 tiles", "30s eta 10s"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q lacks %q", line, want)
		}
	}

	pb = newProgressBar(&buf, "base", "splits", 0)
	pb.Finish()
	pb.Finish()
	if !strings.Contains(buf.String(), "100%") || strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("final output = %q", buf.String())
	}
}
