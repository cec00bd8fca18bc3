package world

import (
	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/stratum/world/chunk"
)

// Provider stores and loads finished chunks on behalf of a Map. The Map
// calls LoadColumn the first time generation is attempted for a position, so
// previously saved chunks are restored rather than regenerated, and
// StoreColumn when a modified chunk is unloaded or the Map is closed.
//
// Providers must be safe for use by multiple goroutines: the Map calls them
// from its generation workers and its unload sweep concurrently.
type Provider interface {
	// LoadColumn reads the chunk saved at the position passed. If no chunk
	// was saved there, LoadColumn returns an error wrapping
	// leveldb.ErrNotFound and the Map generates the chunk instead.
	LoadColumn(pos ChunkPos) (*chunk.Chunk, error)
	// StoreColumn saves the chunk passed at the position passed.
	StoreColumn(pos ChunkPos, c *chunk.Chunk) error
	// Close releases any resources held. The Map calls Close once during its
	// own Close after all chunks have been stored.
	Close() error
}

// NopProvider is a Provider that never finds saved chunks and discards
// stored ones. It is the default Provider of a Map, making every chunk
// newly generated and in-memory only.
type NopProvider struct{}

// LoadColumn ...
func (NopProvider) LoadColumn(ChunkPos) (*chunk.Chunk, error) {
	return nil, leveldb.ErrNotFound
}

// StoreColumn ...
func (NopProvider) StoreColumn(ChunkPos, *chunk.Chunk) error {
	return nil
}

// Close ...
func (NopProvider) Close() error {
	return nil
}
