package world

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func loaderMap(t *testing.T) *Map {
	t.Helper()
	p, err := NewPipeline([]StageSpec{{Stage: StageStructureStarts}})
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	return testMap(t, Config{Pipeline: p})
}

func TestLoaderLoadsAroundCentre(t *testing.T) {
	m := loaderMap(t)
	loader := NewLoader(m, 2)
	t.Cleanup(func() { _ = loader.Close() })

	loader.Move(mgl64.Vec3{0, 64, 0})
	if err := loader.Load(context.Background(), 32); err != nil {
		t.Fatalf("load chunks: %v", err)
	}
	if !loader.Chunk(ChunkPos{0, 0}) {
		t.Fatal("centre chunk not loaded")
	}
	if !loader.Chunk(ChunkPos{2, 0}) {
		t.Fatal("outer ring chunk not loaded")
	}
	if loader.Chunk(ChunkPos{2, 2}) {
		t.Fatal("chunk outside the circular radius loaded")
	}
}

func TestLoaderClosestFirst(t *testing.T) {
	m := loaderMap(t)
	loader := NewLoader(m, 2)
	t.Cleanup(func() { _ = loader.Close() })

	loader.Move(mgl64.Vec3{0, 64, 0})
	if err := loader.Load(context.Background(), 1); err != nil {
		t.Fatalf("load chunks: %v", err)
	}
	if !loader.Chunk(ChunkPos{0, 0}) {
		t.Fatal("first loaded chunk is not the centre")
	}
}

func TestLoaderEvictsChunksOutsideRadius(t *testing.T) {
	m := loaderMap(t)
	loader := NewLoader(m, 1)
	t.Cleanup(func() { _ = loader.Close() })

	loader.Move(mgl64.Vec3{0, 64, 0})
	if err := loader.Load(context.Background(), 16); err != nil {
		t.Fatalf("load chunks: %v", err)
	}
	old := ChunkPos{-1, 0}
	if !loader.Chunk(old) {
		t.Fatalf("chunk %v not loaded before moving", old)
	}

	// Moving 10 chunks over evicts everything around the old centre.
	loader.Move(mgl64.Vec3{160, 64, 0})
	if loader.Chunk(old) {
		t.Fatalf("chunk %v still loaded after moving away", old)
	}
	h, ok := m.Holder(old)
	if ok && h.TicketCount() != 0 {
		t.Fatalf("chunk %v still holds %v tickets after eviction", old, h.TicketCount())
	}
}

func TestLoaderCloseReleasesTickets(t *testing.T) {
	m := loaderMap(t)
	loader := NewLoader(m, 1)

	loader.Move(mgl64.Vec3{0, 64, 0})
	if err := loader.Load(context.Background(), 16); err != nil {
		t.Fatalf("load chunks: %v", err)
	}
	if err := loader.Close(); err != nil {
		t.Fatalf("close loader: %v", err)
	}
	if n := awaitUnload(t, m); n == 0 {
		t.Fatal("no chunks unloaded after the loader released its tickets")
	}
}
