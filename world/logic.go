package world

import (
	"github.com/df-mc/stratum/world/chunk"
)

// StageLogic computes the content of one generation stage. Implementations
// write into the chunk passed and may read, but not write, the neighbouring
// chunks exposed by the Area. The chunk holds all data committed by earlier
// stages; an error discards everything the logic wrote for this stage
// attempt, so implementations must not rely on partial progress surviving.
//
// Advance is called with the chunk's data lock held exclusively and the data
// locks of all area chunks held shared, so it needs no synchronisation of
// its own.
type StageLogic interface {
	Advance(pos ChunkPos, c *chunk.Chunk, area *Area) error
}

// LogicTable maps stages to the logic that computes them. It is the unit of
// extension for new generation content: new stages are added by extending
// the table of a custom pipeline, not by wrapping the scheduler.
type LogicTable map[Stage]StageLogic

// LogicFunc wraps a plain function into a StageLogic.
type LogicFunc func(pos ChunkPos, c *chunk.Chunk, area *Area) error

// Advance ...
func (f LogicFunc) Advance(pos ChunkPos, c *chunk.Chunk, area *Area) error {
	return f(pos, c, area)
}

// NopLogic is a StageLogic that leaves the chunk untouched. It is the
// default for stages without logic and useful in tests.
type NopLogic struct{}

// Advance ...
func (NopLogic) Advance(ChunkPos, *chunk.Chunk, *Area) error {
	return nil
}

// Area is a read-only snapshot of the chunks surrounding the chunk a stage
// is running on. Every chunk in the Area has reached at least the neighbour
// stage the pipeline requires for the stage being executed.
type Area struct {
	centre ChunkPos
	radius int32
	chunks map[ChunkPos]*chunk.Chunk
}

// Centre returns the position of the chunk the stage is running on.
func (a *Area) Centre() ChunkPos {
	return a.centre
}

// Radius returns the neighbour radius of the area. A radius of 0 means the
// area holds no chunks besides the centre's own, which is passed to the
// stage logic directly.
func (a *Area) Radius() int32 {
	return a.radius
}

// Chunk returns the chunk at the position passed, if it is part of the area.
// The returned chunk must only be read.
func (a *Area) Chunk(pos ChunkPos) (*chunk.Chunk, bool) {
	c, ok := a.chunks[pos]
	return c, ok
}
