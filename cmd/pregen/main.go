// Command pregen generates all chunks within a radius around the origin and
// saves them to a world database, so a server starting on the same world
// serves them from disk instead of generating on demand.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/df-mc/stratum/world"
	"github.com/df-mc/stratum/world/mcdb"
	"github.com/go-gl/mathgl/mgl64"
)

func main() {
	confPath := flag.String("config", "config.toml", "configuration file")
	radius := flag.Int("radius", 8, "radius in chunks to generate around the origin")
	flag.Parse()

	log := slog.Default()
	uc, err := world.ReadUserConfig(*confPath)
	if err != nil {
		log.Error("read config: " + err.Error())
		os.Exit(1)
	}
	db, err := mcdb.Open(uc.World.Folder)
	if err != nil {
		log.Error("open world: " + err.Error())
		os.Exit(1)
	}

	conf := uc.Config(log)
	conf.Provider = db
	conf.Pipeline = world.DefaultPipeline(nil)
	m := conf.New()

	loader := world.NewLoader(m, int32(*radius))
	loader.Move(mgl64.Vec3{})

	total := (*radius*2 + 1) * (*radius*2 + 1)
	start := time.Now()
	if err := loader.Load(context.Background(), total); err != nil {
		log.Error("generate chunks: " + err.Error())
		os.Exit(1)
	}
	log.Info("generation finished", "chunks", m.LoadedCount(), "duration", time.Since(start).Round(time.Millisecond))

	_ = loader.Close()
	// Close saves every generated chunk through the provider.
	if err := m.Close(); err != nil {
		log.Error("close map: " + err.Error())
		os.Exit(1)
	}
}
