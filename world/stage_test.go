package world

import (
	"testing"
)

func TestNewPipelineRejectsBadTables(t *testing.T) {
	if _, err := NewPipeline(nil); err == nil {
		t.Fatal("empty stage table accepted")
	}
	if _, err := NewPipeline([]StageSpec{{Stage: StageBiomes}}); err == nil {
		t.Fatal("table not starting at the first stage accepted")
	}
	if _, err := NewPipeline([]StageSpec{
		{Stage: StageStructureStarts},
		{Stage: StageNoise},
	}); err == nil {
		t.Fatal("table with a gap between stages accepted")
	}
	if _, err := NewPipeline([]StageSpec{
		{Stage: StageStructureStarts, Radius: -1},
	}); err == nil {
		t.Fatal("negative radius accepted")
	}
	// A stage requiring neighbours at its own stage (or beyond) would
	// deadlock at runtime: chunk A waits for B to reach the stage B can
	// only reach by waiting for A.
	if _, err := NewPipeline([]StageSpec{
		{Stage: StageStructureStarts},
		{Stage: StageBiomes, Radius: 1, NeighbourStage: StageBiomes},
	}); err == nil {
		t.Fatal("neighbour requirement at the stage's own stage accepted")
	}
	if _, err := NewPipeline([]StageSpec{
		{Stage: StageStructureStarts},
		{Stage: StageBiomes, Radius: 1, NeighbourStage: StageNoise},
	}); err == nil {
		t.Fatal("neighbour requirement beyond the stage accepted")
	}
}

func TestPipelineRequirements(t *testing.T) {
	p := DefaultPipeline(nil)
	if p.Terminal() != StageFull {
		t.Fatalf("terminal stage %v, want %v", p.Terminal(), StageFull)
	}
	spec := p.Requirements(StageFeatures)
	if spec.Radius != 2 || spec.NeighbourStage != StageCarvers {
		t.Fatalf("features requirements %+v, want radius 2 at %v", spec, StageCarvers)
	}
	spec = p.Requirements(StageBiomes)
	if spec.Radius != 0 {
		t.Fatalf("biomes requirements %+v, want no neighbour radius", spec)
	}
}

func TestPipelineRequirementsPanics(t *testing.T) {
	p := DefaultPipeline(nil)
	for _, s := range []Stage{StageEmpty, StageFull + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("requirements for stage %v did not panic", s)
				}
			}()
			p.Requirements(s)
		}()
	}
}

func TestStageString(t *testing.T) {
	if got := StageFeatures.String(); got != "features" {
		t.Fatalf("StageFeatures.String() = %q", got)
	}
	if got := Stage(100).String(); got != "stage(100)" {
		t.Fatalf("Stage(100).String() = %q", got)
	}
}
