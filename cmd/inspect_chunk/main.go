// Command inspect_chunk reads a single column from a world database and
// prints the palette size and index width of every sub chunk, which is
// useful when debugging storage growth or palette compaction.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/df-mc/stratum/world"
	"github.com/df-mc/stratum/world/chunk"
	"github.com/df-mc/stratum/world/mcdb"
)

func main() {
	dir := flag.String("dir", "world", "world directory to open")
	x := flag.Int("x", 0, "chunk X coordinate")
	z := flag.Int("z", 0, "chunk Z coordinate")
	flag.Parse()

	db, err := mcdb.Config{ReadOnly: true}.Open(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %v: %v\n", *dir, err)
		os.Exit(1)
	}
	defer db.Close()

	pos := world.ChunkPos{int32(*x), int32(*z)}
	c, err := db.LoadColumn(pos)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load column %v: %v\n", pos, err)
		os.Exit(1)
	}

	fmt.Printf("column %v, range %v\n", pos, c.Range())
	for i, sub := range c.Sub() {
		fmt.Printf("sub chunk %3d (y=%4d): blocks %v, biomes %v\n",
			i, c.SubY(int16(i)), describe(sub.Blocks()), describe(sub.Biomes()))
	}
}

func describe(s *chunk.PalettedStorage) string {
	if p := s.Palette(); p != nil {
		return fmt.Sprintf("%d entries at %d bits", p.Len(), s.Bits())
	}
	return "direct"
}
