package chunk

import (
	"fmt"
)

// Range is the inclusive range of block Y coordinates a Chunk spans, such as
// [-64, 319] for an overworld chunk. Min must start a sub chunk and Max must
// end one, so the range covers a whole number of sub chunks.
type Range [2]int

// Min returns the lowest block Y coordinate of the range.
func (r Range) Min() int {
	return r[0]
}

// Max returns the highest block Y coordinate of the range.
func (r Range) Max() int {
	return r[1]
}

// Height returns the amount of block Y coordinates the range spans.
func (r Range) Height() int {
	return r[1] - r[0] + 1
}

// Chunk is a 16x16 column of the world spanning the vertical Range passed on
// construction. It is an ordered stack of sub chunks, fixed at construction,
// from the bottom of the range to the top.
type Chunk struct {
	r   Range
	air uint32
	sub []*SubChunk
}

// New initialises a new Chunk spanning the Range passed, with all blocks set
// to the air value passed and all biomes zeroed. A Range that does not span
// a positive whole number of sub chunks is a programming-contract violation
// and panics.
func New(air uint32, r Range) *Chunk {
	if r[0] >= r[1] || r[0]%16 != 0 || (r[1]+1)%16 != 0 {
		panic(fmt.Sprintf("chunk: invalid range %v: bounds must span whole sub chunks", r))
	}
	n := r.Height() >> 4
	sub := make([]*SubChunk, n)
	for i := range sub {
		sub[i] = NewSubChunk(air, 0)
	}
	return &Chunk{r: r, air: air, sub: sub}
}

// Range returns the vertical Range of the chunk as passed to New.
func (c *Chunk) Range() Range {
	return c.r
}

// Air returns the air value the chunk was initialised with.
func (c *Chunk) Air() uint32 {
	return c.air
}

// Sub returns the sub chunks of the chunk, ordered bottom to top. The slice
// must not be modified.
func (c *Chunk) Sub() []*SubChunk {
	return c.sub
}

// SubIndex returns the index into the sub chunk stack of the block Y
// coordinate passed.
func (c *Chunk) SubIndex(y int16) int16 {
	return (y - int16(c.r[0])) >> 4
}

// SubY returns the lowest block Y coordinate of the sub chunk at the stack
// index passed.
func (c *Chunk) SubY(i int16) int16 {
	return i<<4 + int16(c.r[0])
}

// Block returns the block value at a position in the chunk. The x and z
// coordinates are local to the chunk, y is an absolute block Y coordinate
// within the chunk's Range.
func (c *Chunk) Block(x uint8, y int16, z uint8) uint32 {
	return c.subAt(y).Block(x, uint8(y&0xf), z)
}

// SetBlock stores a block value at a position in the chunk.
func (c *Chunk) SetBlock(x uint8, y int16, z uint8, v uint32) {
	c.subAt(y).SetBlock(x, uint8(y&0xf), z, v)
}

// Biome returns the biome value at a position in the chunk.
func (c *Chunk) Biome(x uint8, y int16, z uint8) uint32 {
	return c.subAt(y).Biome(x, uint8(y&0xf), z)
}

// SetBiome stores a biome value at a position in the chunk.
func (c *Chunk) SetBiome(x uint8, y int16, z uint8, v uint32) {
	c.subAt(y).SetBiome(x, uint8(y&0xf), z, v)
}

// Compact re-packs the storages of all sub chunks, dropping palette entries
// no longer referenced. Typically called before a chunk is saved.
func (c *Chunk) Compact() {
	for _, sub := range c.sub {
		sub.compact()
	}
}

// subAt returns the sub chunk that contains the block Y coordinate passed,
// panicking if the coordinate falls outside of the chunk's Range.
func (c *Chunk) subAt(y int16) *SubChunk {
	i := c.SubIndex(y)
	if i < 0 || int(i) >= len(c.sub) {
		panic(fmt.Sprintf("chunk: block y %v out of range %v", y, c.r))
	}
	return c.sub[i]
}
