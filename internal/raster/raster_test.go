package raster

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestCopyFrom(t *testing.T) {
	dst := NewFilled(4, 4, 2, Int32, []float64{-1, -2})
	child := New(2, 2, 2, Int32)
	child.Fill([]float64{7, 8})

	dst.CopyFrom(child, 2, 0)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want0, want1 := -1.0, -2.0
			if x >= 2 && y < 2 {
				want0, want1 = 7, 8
			}
			if got := dst.Get(x, y, 0); got != want0 {
				t.Errorf("band 0 (%d,%d) = %v, want %v", x, y, got, want0)
			}
			if got := dst.Get(x, y, 1); got != want1 {
				t.Errorf("band 1 (%d,%d) = %v, want %v", x, y, got, want1)
			}
		}
	}

	// Partly outside: only the overlapping pixel lands.
	dst.CopyFrom(child, 3, 3)
	if got := dst.Get(3, 3, 0); got != 7 {
		t.Errorf("(3,3) = %v, want 7", got)
	}
	if got := dst.Get(2, 3, 0); got != -1 {
		t.Errorf("(2,3) = %v, want -1", got)
	}
}

func TestIsNoData(t *testing.T) {
	nan := math.NaN()
	r := NewFilled(3, 3, 1, Float32, []float64{nan})
	if !r.IsNoData([]float64{nan}) {
		t.Error("NaN-filled raster should be no-data")
	}
	r.Set(1, 1, 0, 0)
	if r.IsNoData([]float64{nan}) {
		t.Error("raster with a valid pixel reported as no-data")
	}
	if New(1, 1, 2, Int32).IsNoData([]float64{0}) {
		t.Error("band without a sentinel cannot be no-data")
	}
}

func TestMinMax(t *testing.T) {
	r := NewFilled(3, 1, 1, Float64, []float64{testNoData})
	if _, _, ok := r.MinMax(0, testNoData); ok {
		t.Error("MinMax on empty band reported ok")
	}
	r.Set(0, 0, 0, 5)
	r.Set(2, 0, 0, -3)
	lo, hi, ok := r.MinMax(0, testNoData)
	if !ok || lo != -3 || hi != 5 {
		t.Errorf("MinMax = %v, %v, %v", lo, hi, ok)
	}
}

func TestClone(t *testing.T) {
	r := New(2, 2, 1, Float64)
	r.Set(0, 0, 0, 1)
	c := r.Clone()
	c.Set(0, 0, 0, 2)
	if r.Get(0, 0, 0) != 1 {
		t.Error("Clone shares storage with the original")
	}
}

func TestCompatible(t *testing.T) {
	a := New(2, 2, 1, Int32)
	if err := Compatible(a, New(4, 4, 1, Int32)); err != nil {
		t.Errorf("Compatible: %v", err)
	}
	if Compatible(a, New(4, 4, 2, Int32)) == nil {
		t.Error("band mismatch accepted")
	}
	if Compatible(a, New(4, 4, 1, Float32)) == nil {
		t.Error("type mismatch accepted")
	}
	if Compatible(a, New(0, 4, 1, Int32)) == nil {
		t.Error("empty destination accepted")
	}
}

func TestCodec(t *testing.T) {
	for _, dt := range []DataType{Int32, Float32, Float64} {
		r := New(3, 2, 2, dt)
		for b := 0; b < 2; b++ {
			for y := 0; y < 2; y++ {
				for x := 0; x < 3; x++ {
					r.Set(x, y, b, float64(b*100+y*10+x)-7)
				}
			}
		}
		got, err := Unmarshal(Marshal(r))
		if err != nil {
			t.Fatalf("%v: Unmarshal: %v", dt, err)
		}
		if got.String() != r.String() {
			t.Fatalf("%v: decoded %v", dt, got)
		}
		for b := 0; b < 2; b++ {
			for y := 0; y < 2; y++ {
				for x := 0; x < 3; x++ {
					if got.Get(x, y, b) != r.Get(x, y, b) {
						t.Errorf("%v: (%d,%d,%d) = %v, want %v", dt, x, y, b, got.Get(x, y, b), r.Get(x, y, b))
					}
				}
			}
		}
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	good := Marshal(New(2, 2, 1, Float32))
	tests := []struct {
		name string
		data []byte
	}{
		{"short", good[:8]},
		{"magic", append([]byte("XXXX"), good[4:]...)},
		{"truncated body", good[:len(good)-1]},
		{"type", func() []byte { b := append([]byte(nil), good...); b[5] = 9; return b }()},
		// 2^31 x 2^31 x 4 float32 samples wrap to zero bytes in 64-bit ints.
		{"overflowing dimensions", func() []byte {
			b := append([]byte(nil), good[:headerLen]...)
			binary.LittleEndian.PutUint16(b[6:8], 4)
			binary.LittleEndian.PutUint32(b[8:12], 1<<31)
			binary.LittleEndian.PutUint32(b[12:16], 1<<31)
			return b
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshal(tt.data); !errors.Is(err, ErrBadPayload) {
				t.Errorf("err = %v, want ErrBadPayload", err)
			}
		})
	}
}

func TestParseDataType(t *testing.T) {
	for in, want := range map[string]DataType{"int32": Int32, "Float": Float32, "double": Float64} {
		got, err := ParseDataType(in)
		if err != nil || got != want {
			t.Errorf("ParseDataType(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseDataType("uint8"); err == nil {
		t.Error("ParseDataType(uint8) succeeded")
	}
}
