package chunk

// SubChunk is a 16x16x16 cube of cells located in a Chunk. It forms part of
// the vertical stack of sub chunks that make up a chunk's full height. Each
// SubChunk stores one block value and one biome value per cell, both in
// their own PalettedStorage.
type SubChunk struct {
	blocks *PalettedStorage
	biomes *PalettedStorage
}

// NewSubChunk creates a SubChunk with all blocks set to the block value
// passed and all biomes set to the biome value passed.
func NewSubChunk(air, biome uint32) *SubChunk {
	return &SubChunk{
		blocks: newPalettedStorage(air),
		biomes: newPalettedStorage(biome),
	}
}

// cellIndex converts local x, y and z coordinates, each in the range [0, 16),
// to a cell index into a PalettedStorage.
func cellIndex(x, y, z uint8) uint32 {
	return uint32(x)<<8 | uint32(z)<<4 | uint32(y)
}

// Block returns the block value at the local coordinates passed.
func (sub *SubChunk) Block(x, y, z uint8) uint32 {
	return sub.blocks.At(cellIndex(x, y, z))
}

// SetBlock stores a block value at the local coordinates passed and returns
// the value previously stored.
func (sub *SubChunk) SetBlock(x, y, z uint8, v uint32) uint32 {
	return sub.blocks.Set(cellIndex(x, y, z), v)
}

// Biome returns the biome value at the local coordinates passed.
func (sub *SubChunk) Biome(x, y, z uint8) uint32 {
	return sub.biomes.At(cellIndex(x, y, z))
}

// SetBiome stores a biome value at the local coordinates passed and returns
// the value previously stored.
func (sub *SubChunk) SetBiome(x, y, z uint8, v uint32) uint32 {
	return sub.biomes.Set(cellIndex(x, y, z), v)
}

// Blocks returns the block storage of the sub chunk.
func (sub *SubChunk) Blocks() *PalettedStorage {
	return sub.blocks
}

// Biomes returns the biome storage of the sub chunk.
func (sub *SubChunk) Biomes() *PalettedStorage {
	return sub.biomes
}

// compact re-packs both storages of the sub chunk, dropping unreferenced
// palette entries before the sub chunk is written to a database.
func (sub *SubChunk) compact() {
	sub.blocks.compact()
	sub.biomes.compact()
}
