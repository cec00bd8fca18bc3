package chunk

import (
	"github.com/brentp/intintmap"
)

const (
	// paletteCap is the maximum amount of entries a Palette may hold. Once a
	// PalettedStorage needs more distinct values than this, it abandons the
	// palette and stores raw values directly.
	paletteCap = 256
	// paletteLookupThreshold is the palette size above which an index map is
	// maintained for reverse lookups instead of scanning the value slice.
	paletteLookupThreshold = 16
)

// Palette is an ordered set of the distinct values currently present in a
// PalettedStorage. Values stored in the storage's index array refer to
// entries of the Palette by their position in it.
type Palette struct {
	values []uint32
	// lookup maps value->index once the palette grows beyond
	// paletteLookupThreshold entries. It is nil for small palettes, where a
	// linear scan over values is faster than hashing.
	lookup *intintmap.Map
}

// newPalette returns a Palette with the single value passed as its first
// entry.
func newPalette(first uint32) *Palette {
	return &Palette{values: []uint32{first}}
}

// Len returns the amount of unique values in the Palette.
func (p *Palette) Len() int {
	return len(p.values)
}

// Value returns the value at the palette index passed. The index must have
// been produced by Index or Add and is not bounds checked.
func (p *Palette) Value(i uint32) uint32 {
	return p.values[i]
}

// Index returns the palette index of the value passed and whether the value
// is present in the Palette at all.
func (p *Palette) Index(v uint32) (uint32, bool) {
	if p.lookup != nil {
		i, ok := p.lookup.Get(int64(v))
		return uint32(i), ok
	}
	for i, existing := range p.values {
		if existing == v {
			return uint32(i), true
		}
	}
	return 0, false
}

// Add appends a value not yet present to the Palette and returns its new
// index. Callers must check Index first: adding a duplicate value corrupts
// reverse lookups.
func (p *Palette) Add(v uint32) uint32 {
	i := uint32(len(p.values))
	p.values = append(p.values, v)
	if p.lookup != nil {
		p.lookup.Put(int64(v), int64(i))
	} else if len(p.values) > paletteLookupThreshold {
		p.lookup = intintmap.New(paletteCap, 0.6)
		for j, existing := range p.values {
			p.lookup.Put(int64(existing), int64(j))
		}
	}
	return i
}

// Values returns the palette entries in index order. The returned slice must
// not be modified.
func (p *Palette) Values() []uint32 {
	return p.values
}
