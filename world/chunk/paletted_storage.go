package chunk

import (
	"fmt"
)

const (
	// cellCount is the amount of cells in a single PalettedStorage: one value
	// for each position in a 16x16x16 cuboid.
	cellCount = 4096
	// directBits is the index width of a storage that stores raw values
	// without palette indirection.
	directBits = 32
)

// PalettedStorage is a compact storage of 4096 uint32 values, one for every
// cell of a 16x16x16 cuboid. Values are stored as variable-width indices into
// a Palette of the distinct values present, packed into uint32 words. An
// index never spans a word boundary; words that cannot be filled fully are
// padded.
//
// Once more than paletteCap distinct values are stored, the storage converts
// to direct encoding: the palette is dropped and every cell holds the raw
// value itself.
type PalettedStorage struct {
	// bitsPerIndex is the current width of a single index. It is always the
	// smallest supported width able to address the palette, with a minimum of
	// 1, or directBits once the storage is direct.
	bitsPerIndex uint32
	// indexMask has the low bitsPerIndex bits set.
	indexMask uint32
	// indicesPerWord is the amount of indices packed into one uint32 word.
	indicesPerWord uint32

	// palette is nil once the storage has converted to direct encoding.
	palette *Palette
	indices []uint32
}

// paletteBitSizes holds the supported palette index widths in ascending
// order. Widths 7 and 9-31 are skipped so that growing happens in the same
// steps other components (de)serialising the storage expect.
var paletteBitSizes = [...]uint32{1, 2, 3, 4, 5, 6, 8}

// bitsFor returns the smallest supported index width able to address a
// palette of n entries.
func bitsFor(n int) uint32 {
	for _, bits := range paletteBitSizes {
		if n <= 1<<bits {
			return bits
		}
	}
	return directBits
}

// wordsFor returns the amount of uint32 words needed to store cellCount
// indices of the width passed.
func wordsFor(bits uint32) uint32 {
	indicesPerWord := 32 / bits
	return (cellCount + indicesPerWord - 1) / indicesPerWord
}

// newPalettedStorage returns a PalettedStorage with every cell set to the
// value passed.
func newPalettedStorage(v uint32) *PalettedStorage {
	const bits = 1
	return &PalettedStorage{
		bitsPerIndex:   bits,
		indexMask:      (1 << bits) - 1,
		indicesPerWord: 32 / bits,
		palette:        newPalette(v),
		indices:        make([]uint32, wordsFor(bits)),
	}
}

// At returns the value stored at the cell index passed. The index must be in
// the range [0, 4096). At never mutates the storage.
func (s *PalettedStorage) At(i uint32) uint32 {
	idx := s.indexAt(i)
	if s.palette == nil {
		return idx
	}
	return s.palette.Value(idx)
}

// Set stores a value at the cell index passed and returns the value
// previously stored there. Setting a value not yet in the palette may grow
// the palette and re-pack the index array to a wider width, or convert the
// storage to direct encoding once the palette is full. Either way, all other
// cells keep their decoded value exactly.
func (s *PalettedStorage) Set(i, v uint32) uint32 {
	prev := s.At(i)
	if s.palette == nil {
		s.setIndexAt(i, v)
		return prev
	}
	idx, ok := s.palette.Index(v)
	if !ok {
		idx = s.grow(v)
		if s.palette == nil {
			// grow converted the storage to direct encoding.
			s.setIndexAt(i, v)
			return prev
		}
	}
	s.setIndexAt(i, idx)
	return prev
}

// Equal reports whether the storage decodes to the same 4096 values as the
// other storage passed, regardless of palette layout or index width.
func (s *PalettedStorage) Equal(other *PalettedStorage) bool {
	for i := uint32(0); i < cellCount; i++ {
		if s.At(i) != other.At(i) {
			return false
		}
	}
	return true
}

// grow makes room for one additional palette entry holding v and returns its
// palette index. If the palette is at capacity, the storage is converted to
// direct encoding instead and the returned index is meaningless.
func (s *PalettedStorage) grow(v uint32) uint32 {
	if s.palette.Len() >= paletteCap {
		s.toDirect()
		return 0
	}
	if needed := bitsFor(s.palette.Len() + 1); needed != s.bitsPerIndex {
		s.repack(needed)
	}
	return s.palette.Add(v)
}

// repack widens the index array to the index width passed, preserving the
// palette index stored in every cell.
func (s *PalettedStorage) repack(bits uint32) {
	old := *s
	s.bitsPerIndex = bits
	s.indexMask = uint32(1<<bits - 1)
	s.indicesPerWord = 32 / bits
	s.indices = make([]uint32, wordsFor(bits))
	for i := uint32(0); i < cellCount; i++ {
		s.setIndexAt(i, old.indexAt(i))
	}
}

// toDirect converts the storage to direct encoding: every cell is rewritten
// to hold the raw value it currently decodes to and the palette is dropped.
func (s *PalettedStorage) toDirect() {
	old := *s
	s.bitsPerIndex = directBits
	s.indexMask = ^uint32(0)
	s.indicesPerWord = 1
	s.indices = make([]uint32, cellCount)
	s.palette = nil
	for i := uint32(0); i < cellCount; i++ {
		s.indices[i] = old.palette.Value(old.indexAt(i))
	}
}

// compact rebuilds the storage from its decoded values, dropping palette
// entries no longer referenced by any cell and shrinking the index width
// accordingly. A direct storage holding few enough distinct values becomes
// paletted again.
func (s *PalettedStorage) compact() {
	replacement := newPalettedStorage(s.At(0))
	for i := uint32(1); i < cellCount; i++ {
		replacement.Set(i, s.At(i))
	}
	*s = *replacement
}

// indexAt reads the raw index stored at the cell index passed.
func (s *PalettedStorage) indexAt(i uint32) uint32 {
	if i >= cellCount {
		panic(fmt.Sprintf("chunk: paletted storage index %v out of range [0, %v)", i, cellCount))
	}
	word := i / s.indicesPerWord
	offset := (i % s.indicesPerWord) * s.bitsPerIndex
	return (s.indices[word] >> offset) & s.indexMask
}

// setIndexAt writes a raw index at the cell index passed.
func (s *PalettedStorage) setIndexAt(i, idx uint32) {
	if i >= cellCount {
		panic(fmt.Sprintf("chunk: paletted storage index %v out of range [0, %v)", i, cellCount))
	}
	word := i / s.indicesPerWord
	offset := (i % s.indicesPerWord) * s.bitsPerIndex
	s.indices[word] = s.indices[word]&^(s.indexMask<<offset) | (idx&s.indexMask)<<offset
}

// Palette returns the palette of the storage, or nil if the storage is
// direct encoded.
func (s *PalettedStorage) Palette() *Palette {
	return s.palette
}

// Bits returns the current index width of the storage in bits.
func (s *PalettedStorage) Bits() int {
	return int(s.bitsPerIndex)
}
