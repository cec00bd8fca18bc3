package world

import (
	"fmt"
)

// ChunkPos identifies the position of a chunk on the world's horizontal
// grid. The first value is the X coordinate, the second the Z coordinate.
// Chunk positions compare and hash by value and never change once a chunk
// exists at them.
type ChunkPos [2]int32

// X returns the X coordinate of the chunk position.
func (p ChunkPos) X() int32 {
	return p[0]
}

// Z returns the Z coordinate of the chunk position.
func (p ChunkPos) Z() int32 {
	return p[1]
}

// String implements fmt.Stringer.
func (p ChunkPos) String() string {
	return fmt.Sprintf("(%v, %v)", p[0], p[1])
}

// packed returns the position packed into a single uint64, used for hashing
// and as a database key.
func (p ChunkPos) packed() uint64 {
	return uint64(uint32(p[0]))<<32 | uint64(uint32(p[1]))
}

// neighbours calls f for every chunk position within the radius passed
// around p, excluding p itself. A radius of 1 yields the 8 surrounding
// positions, a radius of 2 the surrounding 24, and so on.
func (p ChunkPos) neighbours(radius int32, f func(pos ChunkPos)) {
	for x := -radius; x <= radius; x++ {
		for z := -radius; z <= radius; z++ {
			if x == 0 && z == 0 {
				continue
			}
			f(ChunkPos{p[0] + x, p[1] + z})
		}
	}
}
