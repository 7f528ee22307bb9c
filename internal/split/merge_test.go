package split

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/pspoerri/mrspyramid/internal/coord"
)

func TestMerge_TwoPyramids(t *testing.T) {
	a := rows("a", 0, 0, 3, 5)
	b := rows("b", 0, 3, 3, 8)
	got := NewMerger([][]TiledSplit{a, b}).WithNames([]string{"A", "B"})

	var seq []Composite
	for c, ok := got.Next(); ok; c, ok = got.Next() {
		seq = append(seq, c)
	}
	if len(seq) != len(a)+len(b) {
		t.Fatalf("merged %d splits, want %d", len(seq), len(a)+len(b))
	}
	for i := 1; i < len(seq); i++ {
		if seq[i].Bounds().Less(seq[i-1].Bounds()) {
			t.Fatalf("position %d (%v) sorts before position %d (%v)", i, seq[i], i-1, seq[i-1])
		}
	}

	// Rows 3..5 appear twice, A first.
	for _, c := range seq {
		y := c.Bounds().MinY
		switch {
		case c.Name == "A" && y >= 3:
			if len(c.Post) != 1 || c.Post[0] != tb(0, y, 3, y) {
				t.Errorf("A row %d: post = %v", y, c.Post)
			}
			if len(c.Pre) != 0 {
				t.Errorf("A row %d: pre = %v, want none", y, c.Pre)
			}
		case c.Name == "B" && y <= 5:
			if len(c.Pre) != 1 || c.Pre[0] != tb(0, y, 3, y) {
				t.Errorf("B row %d: pre = %v", y, c.Pre)
			}
			if c.Owns(0, y) {
				t.Errorf("B row %d must not own tiles A already covers", y)
			}
		default:
			if len(c.Pre) != 0 || len(c.Post) != 0 {
				t.Errorf("%s row %d: pre=%v post=%v, want none", c.Name, y, c.Pre, c.Post)
			}
			if !c.Owns(0, y) {
				t.Errorf("%s row %d must own its tiles", c.Name, y)
			}
		}
	}
}

func TestMerge_SingleSplitPerPyramid(t *testing.T) {
	a := []TiledSplit{{Bounds: tb(0, 0, 3, 5), Zoom: 5}}
	b := []TiledSplit{{Bounds: tb(0, 3, 3, 8), Zoom: 5}}
	seq := Merge([][]TiledSplit{a, b})
	if len(seq) != 2 {
		t.Fatalf("got %d composites, want 2", len(seq))
	}
	if seq[0].Source != 0 || seq[1].Source != 1 {
		t.Fatalf("sources = %d, %d", seq[0].Source, seq[1].Source)
	}
	if !reflect.DeepEqual(seq[1].Pre, []coord.TileBounds{tb(0, 0, 3, 5)}) {
		t.Errorf("B pre = %v", seq[1].Pre)
	}
	if !reflect.DeepEqual(seq[0].Post, []coord.TileBounds{tb(0, 3, 3, 8)}) {
		t.Errorf("A post = %v", seq[0].Post)
	}
	if seq[1].Owns(1, 4) || !seq[1].Owns(1, 6) {
		t.Error("B must own only rows 6..8")
	}
}

func TestMerge_IdenticalBoundsKept(t *testing.T) {
	a := []TiledSplit{{Bounds: tb(0, 0, 1, 1)}}
	b := []TiledSplit{{Bounds: tb(0, 0, 1, 1)}}
	seq := Merge([][]TiledSplit{b, a})
	if len(seq) != 2 {
		t.Fatalf("got %d composites, want 2", len(seq))
	}
	if seq[0].Source != 0 || seq[1].Source != 1 {
		t.Error("ties must be broken by source index")
	}
	if !seq[0].Owns(0, 0) || seq[1].Owns(0, 0) {
		t.Error("first source must win identical bounds")
	}
}

func TestMerge_DropsEmpty(t *testing.T) {
	a := []TiledSplit{{Bounds: coord.EmptyTileBounds()}, {Bounds: tb(0, 0, 0, 0)}, {Bounds: coord.EmptyTileBounds()}}
	b := []TiledSplit{{Bounds: coord.EmptyTileBounds()}}
	seq := Merge([][]TiledSplit{a, b, nil})
	if len(seq) != 1 || seq[0].Bounds() != tb(0, 0, 0, 0) {
		t.Errorf("Merge = %v, want one non-empty composite", seq)
	}
	if got := Merge(nil); len(got) != 0 {
		t.Errorf("Merge(nil) = %v", got)
	}
}

func TestMerger_Exhausted(t *testing.T) {
	m := NewMerger([][]TiledSplit{{{Bounds: tb(0, 0, 0, 0)}}})
	if _, ok := m.Next(); !ok {
		t.Fatal("first Next must return a composite")
	}
	for i := 0; i < 3; i++ {
		if _, ok := m.Next(); ok {
			t.Fatal("Next after exhaustion must keep returning false")
		}
	}
}

// bruteForce computes pre and post bounds from the definition.
func bruteForce(seq []Composite) (pre, post [][]coord.TileBounds) {
	pre = make([][]coord.TileBounds, len(seq))
	post = make([][]coord.TileBounds, len(seq))
	for i := range seq {
		for j := range seq {
			if i == j || !seq[i].Bounds().Intersects(seq[j].Bounds()) {
				continue
			}
			if j < i {
				pre[i] = append(pre[i], seq[j].Bounds())
			} else {
				post[i] = append(post[i], seq[j].Bounds())
			}
		}
	}
	return pre, post
}

func TestMerge_RandomMatchesDefinition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 100; round++ {
		nsrc := 1 + rng.Intn(4)
		sources := make([][]TiledSplit, nsrc)
		total := 0
		for i := range sources {
			sources[i] = randomSource(rng, rng.Intn(15))
			total += len(sources[i])
		}
		seq := Merge(sources)

		if len(seq) != total {
			t.Fatalf("round %d: merged %d, want %d", round, len(seq), total)
		}
		for i := 1; i < len(seq); i++ {
			prev, cur := seq[i-1], seq[i]
			if cur.Bounds().Less(prev.Bounds()) {
				t.Fatalf("round %d: out of order at %d", round, i)
			}
			if !prev.Bounds().Less(cur.Bounds()) && prev.Source > cur.Source {
				t.Fatalf("round %d: tie at %d not broken by source", round, i)
			}
		}

		pre, post := bruteForce(seq)
		for i, c := range seq {
			if !reflect.DeepEqual(c.Pre, pre[i]) {
				t.Fatalf("round %d pos %d: pre = %v, want %v", round, i, c.Pre, pre[i])
			}
			if !reflect.DeepEqual(c.Post, post[i]) {
				t.Fatalf("round %d pos %d: post = %v, want %v", round, i, c.Post, post[i])
			}
		}

		// Every covered tile has exactly one owner.
		union := coord.EmptyTileBounds()
		for _, c := range seq {
			union = union.Union(c.Bounds())
		}
		for _, tile := range union.Tiles(5) {
			covered, owners := false, 0
			for _, c := range seq {
				if c.Bounds().Contains(tile.X, tile.Y) {
					covered = true
				}
				if c.Owns(tile.X, tile.Y) {
					owners++
				}
			}
			if covered && owners != 1 {
				t.Fatalf("round %d: tile %v has %d owners", round, tile, owners)
			}
			if !covered && owners != 0 {
				t.Fatalf("round %d: uncovered tile %v has %d owners", round, tile, owners)
			}
		}
	}
}

func TestMerge_AfterCrop(t *testing.T) {
	crop := tb(1, 2, 2, 6)
	a := Filter(rows("a", 0, 0, 3, 5), &crop)
	b := Filter(rows("b", 0, 3, 3, 8), &crop)
	seq := Merge([][]TiledSplit{a, b})
	if len(seq) != 4+4 {
		t.Fatalf("got %d composites, want 8", len(seq))
	}
	for _, c := range seq {
		if c.Bounds().MinX != 1 || c.Bounds().MaxX != 2 {
			t.Errorf("%v not narrowed to crop columns", c)
		}
	}
}

func BenchmarkMerge(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	sources := make([][]TiledSplit, 8)
	for i := range sources {
		sources[i] = randomSource(rng, 500)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Merge(sources)
	}
}
