package world

import (
	"fmt"
)

// Stage is one named step of the chunk generation pipeline. Stages form a
// fixed total order: a chunk is promoted through them one at a time, from
// StageEmpty up to the pipeline's terminal stage, and its stage never
// decreases.
type Stage int8

const (
	// StageEmpty is the stage of a chunk that exists in memory but has had no
	// generation run on it at all.
	StageEmpty Stage = iota
	// StageStructureStarts places the anchor points of large structures.
	StageStructureStarts
	// StageBiomes assigns a biome to every cell of the chunk.
	StageBiomes
	// StageNoise shapes the base terrain. It reads the biomes of neighbouring
	// chunks to blend terrain across chunk borders.
	StageNoise
	// StageSurface replaces the top layers of the base terrain with
	// biome-specific surface blocks.
	StageSurface
	// StageCarvers cuts caves and ravines out of the terrain.
	StageCarvers
	// StageFeatures places features such as trees and ores, reading the
	// terrain of neighbouring chunks where a feature crosses a border.
	StageFeatures
	// StageLight computes the initial light of the chunk from its own blocks
	// and those of its direct neighbours.
	StageLight
	// StageFull is the terminal stage: the chunk is fully playable.
	StageFull
)

// stageNames holds display names for the built-in stages. Custom pipelines
// with more stages fall back to a numeric name.
var stageNames = map[Stage]string{
	StageEmpty:           "empty",
	StageStructureStarts: "structure_starts",
	StageBiomes:          "biomes",
	StageNoise:           "noise",
	StageSurface:         "surface",
	StageCarvers:         "carvers",
	StageFeatures:        "features",
	StageLight:           "light",
	StageFull:            "full",
}

// String implements fmt.Stringer.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%v)", int8(s))
}

// AtLeast reports whether s is at or beyond the stage passed.
func (s Stage) AtLeast(other Stage) bool {
	return s >= other
}

// Before reports whether s is strictly before the stage passed.
func (s Stage) Before(other Stage) bool {
	return s < other
}

// StageSpec describes the dependency requirements of a single stage: before
// the stage may run on a chunk, every chunk within Radius around it must
// have reached NeighbourStage. Radius 0 means the stage only requires the
// previous stage of the chunk itself, which is implicit for every stage.
type StageSpec struct {
	Stage  Stage
	Radius int32
	// NeighbourStage is the minimum stage neighbours within Radius must hold.
	// Ignored if Radius is 0.
	NeighbourStage Stage
	// Logic computes the stage's content. Nil is replaced by NopLogic.
	Logic StageLogic
}

// Pipeline is the static table of generation stages. It is computed once at
// startup and never mutated afterwards; lookups are safe for concurrent use.
type Pipeline struct {
	specs []StageSpec
}

// NewPipeline builds a Pipeline from the stage specs passed. The specs must
// cover every stage from StageEmpty+1 up to the terminal stage in ascending
// order. NewPipeline returns an error for any table that could deadlock at
// runtime: a stage whose neighbour requirement is not strictly below the
// stage itself breaks the well-founded order the scheduler relies on.
func NewPipeline(specs []StageSpec) (*Pipeline, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("pipeline: no stages")
	}
	for i, spec := range specs {
		if want := StageEmpty + 1 + Stage(i); spec.Stage != want {
			return nil, fmt.Errorf("pipeline: spec %v holds stage %v, want %v", i, spec.Stage, want)
		}
		if spec.Radius < 0 {
			return nil, fmt.Errorf("pipeline: stage %v: negative radius %v", spec.Stage, spec.Radius)
		}
		if spec.Radius > 0 && !spec.NeighbourStage.Before(spec.Stage) {
			return nil, fmt.Errorf("pipeline: stage %v requires neighbours at stage %v: neighbour requirements must reference a strictly earlier stage", spec.Stage, spec.NeighbourStage)
		}
		if spec.Logic == nil {
			specs[i].Logic = NopLogic{}
		}
	}
	return &Pipeline{specs: specs}, nil
}

// Terminal returns the last stage of the pipeline, at which a chunk is fully
// playable.
func (p *Pipeline) Terminal() Stage {
	return p.specs[len(p.specs)-1].Stage
}

// Requirements returns the dependency requirements of the stage passed.
// Requesting requirements for StageEmpty or for a stage beyond the terminal
// stage is a programming error and panics.
func (p *Pipeline) Requirements(s Stage) StageSpec {
	if s <= StageEmpty || s > p.Terminal() {
		panic(fmt.Sprintf("pipeline: stage %v out of range (%v, %v]", s, StageEmpty, p.Terminal()))
	}
	return p.specs[int(s)-1]
}

// DefaultPipeline returns the standard nine-stage pipeline with the logic
// table passed supplying per-stage logic. Stages missing from the table run
// NopLogic.
func DefaultPipeline(logic LogicTable) *Pipeline {
	specs := []StageSpec{
		{Stage: StageStructureStarts},
		{Stage: StageBiomes},
		{Stage: StageNoise, Radius: 1, NeighbourStage: StageBiomes},
		{Stage: StageSurface},
		{Stage: StageCarvers},
		{Stage: StageFeatures, Radius: 2, NeighbourStage: StageCarvers},
		{Stage: StageLight, Radius: 1, NeighbourStage: StageFeatures},
		{Stage: StageFull},
	}
	for i := range specs {
		specs[i].Logic = logic[specs[i].Stage]
	}
	p, err := NewPipeline(specs)
	if err != nil {
		// The table above is static: an error here is a bug in this package.
		panic(err)
	}
	return p
}
