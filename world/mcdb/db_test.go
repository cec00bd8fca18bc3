package mcdb

import (
	"errors"
	"testing"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/stratum/world"
	"github.com/df-mc/stratum/world/chunk"
)

func TestDBStoreLoad(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	r := chunk.Range{-64, 319}
	c := chunk.New(0, r)
	c.SetBlock(3, 70, 12, 7)
	c.SetBlock(3, 71, 12, 7)
	c.SetBiome(0, -60, 0, 2)

	pos := world.ChunkPos{4, -9}
	if err := db.StoreColumn(pos, c); err != nil {
		t.Fatalf("store column: %v", err)
	}
	read, err := db.LoadColumn(pos)
	if err != nil {
		t.Fatalf("load column: %v", err)
	}
	if read.Range() != r {
		t.Fatalf("loaded range %v, stored %v", read.Range(), r)
	}
	if v := read.Block(3, 70, 12); v != 7 {
		t.Fatalf("loaded block value %v, stored 7", v)
	}
	if v := read.Biome(0, -60, 0); v != 2 {
		t.Fatalf("loaded biome value %v, stored 2", v)
	}
}

func TestDBLoadMissing(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if _, err := db.LoadColumn(world.ChunkPos{1, 2}); !errors.Is(err, leveldb.ErrNotFound) {
		t.Fatalf("loading a missing column returned %v, expected leveldb.ErrNotFound", err)
	}
}

func TestDBStoreDedupe(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	c := chunk.New(0, chunk.Range{-64, 319})
	pos := world.ChunkPos{0, 0}
	for i := 0; i < 3; i++ {
		if err := db.StoreColumn(pos, c); err != nil {
			t.Fatalf("store column (%v): %v", i, err)
		}
	}
	if _, err := db.LoadColumn(pos); err != nil {
		t.Fatalf("load column after repeated stores: %v", err)
	}
}

func TestDBStoreRetriesAfterFailedWrite(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	c := chunk.New(0, chunk.Range{-64, 319})
	pos := world.ChunkPos{1, 1}
	// Close the underlying database so every write fails.
	_ = db.ldb.Close()

	if err := db.StoreColumn(pos, c); err == nil {
		t.Fatal("store on a closed database did not return an error")
	}
	// The failed store must not count as written: retrying the identical
	// column has to attempt the write again rather than dedupe it away.
	if err := db.StoreColumn(pos, c); err == nil {
		t.Fatal("retrying an identical column after a failed store returned nil")
	}
}

func TestDBReadOnly(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_ = db.Close()

	db, err = Config{ReadOnly: true}.Open(dir)
	if err != nil {
		t.Fatalf("open db read-only: %v", err)
	}
	defer db.Close()

	if err := db.StoreColumn(world.ChunkPos{0, 0}, chunk.New(0, chunk.Range{-64, 319})); err == nil {
		t.Fatal("storing to a read-only db did not return an error")
	}
}
