package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Storage wire format, reproduced exactly by every component that
// (de)serialises chunk data:
//
//	header byte:  index width << 1 | palette flag (1 = paletted, 0 = direct)
//	index words:  wordsFor(width) little-endian uint32 words
//	palette:      uvarint entry count followed by a uvarint per entry;
//	              absent entirely for direct storages
//
// A SubChunk is its block storage followed by its biome storage; a Chunk is
// a uvarint sub chunk count followed by each sub chunk bottom to top.

// Encode appends the serialised form of the chunk to buf and returns it.
func Encode(c *Chunk, buf *bytes.Buffer) {
	writeUvarint(buf, uint64(len(c.sub)))
	for _, sub := range c.sub {
		encodeStorage(sub.blocks, buf)
		encodeStorage(sub.biomes, buf)
	}
}

// Decode reads a chunk spanning the Range passed from buf. The sub chunk
// count in the data must match the amount of sub chunks the Range holds.
func Decode(air uint32, r Range, buf *bytes.Buffer) (*Chunk, error) {
	n, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("decode chunk: sub chunk count: %w", err)
	}
	if int(n) != r.Height()>>4 {
		return nil, fmt.Errorf("decode chunk: %v sub chunks serialised, range %v holds %v", n, r, r.Height()>>4)
	}
	c := &Chunk{r: r, air: air, sub: make([]*SubChunk, n)}
	for i := range c.sub {
		blocks, err := decodeStorage(buf)
		if err != nil {
			return nil, fmt.Errorf("decode chunk: sub chunk %v: blocks: %w", i, err)
		}
		biomes, err := decodeStorage(buf)
		if err != nil {
			return nil, fmt.Errorf("decode chunk: sub chunk %v: biomes: %w", i, err)
		}
		c.sub[i] = &SubChunk{blocks: blocks, biomes: biomes}
	}
	return c, nil
}

func encodeStorage(s *PalettedStorage, buf *bytes.Buffer) {
	header := byte(s.bitsPerIndex << 1)
	if s.palette != nil {
		header |= 1
	}
	buf.WriteByte(header)
	for _, word := range s.indices {
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], word)
		buf.Write(w[:])
	}
	if s.palette != nil {
		writeUvarint(buf, uint64(s.palette.Len()))
		for _, v := range s.palette.Values() {
			writeUvarint(buf, uint64(v))
		}
	}
}

func decodeStorage(buf *bytes.Buffer) (*PalettedStorage, error) {
	header, err := buf.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("storage header: %w", err)
	}
	bits, paletted := uint32(header>>1), header&1 == 1
	if !validBits(bits, paletted) {
		return nil, fmt.Errorf("storage header: unsupported index width %v", bits)
	}
	s := &PalettedStorage{
		bitsPerIndex:   bits,
		indexMask:      uint32(uint64(1)<<bits - 1),
		indicesPerWord: 32 / bits,
		indices:        make([]uint32, wordsFor(bits)),
	}
	for i := range s.indices {
		var w [4]byte
		if _, err := io.ReadFull(buf, w[:]); err != nil {
			return nil, fmt.Errorf("storage words: %w", err)
		}
		s.indices[i] = binary.LittleEndian.Uint32(w[:])
	}
	if !paletted {
		return s, nil
	}
	n, err := binary.ReadUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("palette size: %w", err)
	}
	if n == 0 || n > paletteCap {
		return nil, fmt.Errorf("palette size %v outside of range [1, %v]", n, paletteCap)
	}
	for i := uint64(0); i < n; i++ {
		v, err := binary.ReadUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("palette entry %v: %w", i, err)
		}
		if v > math.MaxUint32 {
			return nil, fmt.Errorf("palette entry %v: value %v overflows uint32", i, v)
		}
		if i == 0 {
			s.palette = newPalette(uint32(v))
			continue
		}
		// A duplicate entry would corrupt the palette's reverse lookup.
		if _, ok := s.palette.Index(uint32(v)); ok {
			return nil, fmt.Errorf("palette entry %v: duplicate value %v", i, v)
		}
		// Add rebuilds the reverse lookup map dropped during encoding.
		s.palette.Add(uint32(v))
	}
	return s, nil
}

// validBits reports whether the index width read from a storage header is
// one this package can produce.
func validBits(bits uint32, paletted bool) bool {
	if !paletted {
		return bits == directBits
	}
	for _, b := range paletteBitSizes {
		if bits == b {
			return true
		}
	}
	return false
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var b [binary.MaxVarintLen64]byte
	buf.Write(b[:binary.PutUvarint(b[:], v)])
}
