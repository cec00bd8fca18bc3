package chunk

import (
	"slices"
)

// Clone returns a deep copy of the chunk. The copy shares no storage with
// the original: the scheduler snapshots a chunk before running a generation
// stage so a failing stage can be discarded without corrupting the data of
// the stages committed before it.
func (c *Chunk) Clone() *Chunk {
	sub := make([]*SubChunk, len(c.sub))
	for i, s := range c.sub {
		sub[i] = &SubChunk{
			blocks: s.blocks.clone(),
			biomes: s.biomes.clone(),
		}
	}
	return &Chunk{r: c.r, air: c.air, sub: sub}
}

func (s *PalettedStorage) clone() *PalettedStorage {
	cp := *s
	cp.indices = slices.Clone(s.indices)
	if s.palette != nil {
		cp.palette = s.palette.clone()
	}
	return &cp
}

func (p *Palette) clone() *Palette {
	if p.lookup == nil {
		return &Palette{values: slices.Clone(p.values)}
	}
	// Rebuild the lookup map instead of sharing it: intintmap has no copy
	// operation and the clone must not alias the original.
	rebuilt := newPalette(p.values[0])
	for _, v := range p.values[1:] {
		rebuilt.Add(v)
	}
	return rebuilt
}
