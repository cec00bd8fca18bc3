package chunk

import (
	"math/rand/v2"
	"testing"
)

func TestPalettedStorageSetGet(t *testing.T) {
	s := newPalettedStorage(0)
	for i := uint32(0); i < cellCount; i++ {
		if v := s.At(i); v != 0 {
			t.Fatalf("cell %v: got %v, want 0", i, v)
		}
	}
	if prev := s.Set(42, 7); prev != 0 {
		t.Fatalf("previous value: got %v, want 0", prev)
	}
	if v := s.At(42); v != 7 {
		t.Fatalf("cell 42: got %v, want 7", v)
	}
	if prev := s.Set(42, 9); prev != 7 {
		t.Fatalf("previous value: got %v, want 7", prev)
	}
	// Unrelated cells must be unaffected by the palette growth above.
	if v := s.At(41); v != 0 {
		t.Fatalf("cell 41: got %v, want 0", v)
	}
	if v := s.At(43); v != 0 {
		t.Fatalf("cell 43: got %v, want 0", v)
	}
}

func TestPalettedStorageGrowth(t *testing.T) {
	// Writing n distinct values into the first n cells forces the palette
	// past every width step, including the direct-encoding fallback.
	for _, n := range []uint32{2, 4, 16, 256, 400} {
		s := newPalettedStorage(0)
		for i := uint32(0); i < n; i++ {
			s.Set(i, i*1000)
		}
		for i := uint32(0); i < n; i++ {
			if v := s.At(i); v != i*1000 {
				t.Fatalf("n=%v: cell %v: got %v, want %v", n, i, v, i*1000)
			}
		}
		for i := n; i < cellCount; i++ {
			if v := s.At(i); v != 0 {
				t.Fatalf("n=%v: untouched cell %v: got %v, want 0", n, i, v)
			}
		}
		if n > paletteCap && s.Palette() != nil {
			t.Fatalf("n=%v: storage should have converted to direct encoding", n)
		}
	}
}

func TestPalettedStorageRandomised(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	s := newPalettedStorage(0)
	reference := make([]uint32, cellCount)
	for i := 0; i < 20000; i++ {
		cell, v := uint32(r.IntN(cellCount)), uint32(r.IntN(512))
		if prev := s.Set(cell, v); prev != reference[cell] {
			t.Fatalf("op %v: previous value of cell %v: got %v, want %v", i, cell, prev, reference[cell])
		}
		reference[cell] = v
	}
	for cell, want := range reference {
		if v := s.At(uint32(cell)); v != want {
			t.Fatalf("cell %v: got %v, want %v", cell, v, want)
		}
	}
}

func TestPalettedStorageCompact(t *testing.T) {
	s := newPalettedStorage(0)
	for i := uint32(0); i < 300; i++ {
		s.Set(i, i)
	}
	if s.Palette() != nil {
		t.Fatal("storage should be direct encoded before compacting")
	}
	// Overwrite everything with two values; compacting must return the
	// storage to a small palette without changing any decoded value.
	for i := uint32(0); i < cellCount; i++ {
		s.Set(i, i%2)
	}
	s.compact()
	if s.Palette() == nil || s.Palette().Len() != 2 {
		t.Fatalf("palette after compact: %+v, want 2 entries", s.Palette())
	}
	for i := uint32(0); i < cellCount; i++ {
		if v := s.At(i); v != i%2 {
			t.Fatalf("cell %v after compact: got %v, want %v", i, v, i%2)
		}
	}
}

func TestPalettedStorageOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected out of range access to panic")
		}
	}()
	newPalettedStorage(0).At(cellCount)
}
