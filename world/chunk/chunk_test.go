package chunk

import (
	"bytes"
	"math/rand/v2"
	"testing"
)

const testAir = 11

func testRange() Range {
	return Range{-64, 319}
}

func TestChunkSections(t *testing.T) {
	c := New(testAir, testRange())
	if n := len(c.Sub()); n != 24 {
		t.Fatalf("sub chunk count: got %v, want 24", n)
	}
	if i := c.SubIndex(-64); i != 0 {
		t.Fatalf("sub index of y=-64: got %v, want 0", i)
	}
	if i := c.SubIndex(319); i != 23 {
		t.Fatalf("sub index of y=319: got %v, want 23", i)
	}
	if y := c.SubY(1); y != -48 {
		t.Fatalf("sub y of index 1: got %v, want -48", y)
	}
}

func TestChunkBlocksAndBiomes(t *testing.T) {
	c := New(testAir, testRange())
	if v := c.Block(3, 70, 12); v != testAir {
		t.Fatalf("unset block: got %v, want air (%v)", v, testAir)
	}
	c.SetBlock(3, 70, 12, 801)
	c.SetBiome(3, 70, 12, 5)
	if v := c.Block(3, 70, 12); v != 801 {
		t.Fatalf("block: got %v, want 801", v)
	}
	if v := c.Biome(3, 70, 12); v != 5 {
		t.Fatalf("biome: got %v, want 5", v)
	}
	// A write in one sub chunk must not bleed into the one above or below.
	if v := c.Block(3, 70-16, 12); v != testAir {
		t.Fatalf("block one sub chunk down: got %v, want air", v)
	}
	if v := c.Block(3, 70+16, 12); v != testAir {
		t.Fatalf("block one sub chunk up: got %v, want air", v)
	}
}

func TestNewInvalidRangePanics(t *testing.T) {
	for _, r := range []Range{{0, 10}, {-70, 319}, {319, -64}, {0, 0}} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("range %v accepted: bounds must span whole sub chunks", r)
				}
			}()
			New(testAir, r)
		}()
	}
}

func TestChunkBlockOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected out of range block access to panic")
		}
	}()
	New(testAir, testRange()).Block(0, 320, 0)
}

func TestChunkEncodeDecode(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 9))
	c := New(testAir, testRange())
	for i := 0; i < 5000; i++ {
		x, z := uint8(r.IntN(16)), uint8(r.IntN(16))
		y := int16(r.IntN(c.Range().Height()) + c.Range().Min())
		c.SetBlock(x, y, z, uint32(r.IntN(1000)))
		c.SetBiome(x, y, z, uint32(r.IntN(8)))
	}
	buf := bytes.NewBuffer(nil)
	Encode(c, buf)

	decoded, err := Decode(testAir, testRange(), buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i, sub := range c.Sub() {
		other := decoded.Sub()[i]
		if !sub.Blocks().Equal(other.Blocks()) {
			t.Fatalf("sub chunk %v: block storages differ after round trip", i)
		}
		if !sub.Biomes().Equal(other.Biomes()) {
			t.Fatalf("sub chunk %v: biome storages differ after round trip", i)
		}
	}
}

func TestChunkDecodeRangeMismatch(t *testing.T) {
	c := New(testAir, Range{0, 15})
	buf := bytes.NewBuffer(nil)
	Encode(c, buf)
	if _, err := Decode(testAir, testRange(), buf); err == nil {
		t.Fatal("expected decoding into a mismatched range to fail")
	}
}
