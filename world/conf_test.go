package world

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/df-mc/stratum/world/chunk"
)

func TestConfigDefaults(t *testing.T) {
	conf := Config{}.withDefaults()
	if conf.Log == nil || conf.Provider == nil || conf.Pipeline == nil {
		t.Fatalf("defaults left collaborators nil: %+v", conf)
	}
	if conf.Range != (chunk.Range{-64, 319}) {
		t.Fatalf("default range %v", conf.Range)
	}
	if conf.Workers < 1 {
		t.Fatalf("default worker count %v", conf.Workers)
	}
	if conf.QueueSize < conf.Workers {
		t.Fatalf("default queue size %v below worker count %v", conf.QueueSize, conf.Workers)
	}
	if conf.UnloadInterval != time.Minute {
		t.Fatalf("default unload interval %v", conf.UnloadInterval)
	}
}

func TestConfigInvalidRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("config with a range not spanning whole sub chunks accepted")
		}
	}()
	Config{Range: chunk.Range{0, 10}}.withDefaults()
}

func TestReadUserConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	conf, err := ReadUserConfig(path)
	if err != nil {
		t.Fatalf("read missing config: %v", err)
	}
	if conf != DefaultUserConfig() {
		t.Fatalf("config read %+v, want defaults", conf)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
}

func TestUserConfigRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	conf := DefaultUserConfig()
	conf.World.Folder = "overworld"
	conf.World.ReadOnly = true
	conf.Generation.Workers = 3
	conf.Generation.QueueSize = 64
	conf.Generation.UnloadInterval = 30
	if err := WriteUserConfig(path, conf); err != nil {
		t.Fatalf("write config: %v", err)
	}
	read, err := ReadUserConfig(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if read != conf {
		t.Fatalf("config read %+v, written %+v", read, conf)
	}

	c := read.Config(nil)
	if !c.ReadOnly || c.Workers != 3 || c.QueueSize != 64 || c.UnloadInterval != 30*time.Second {
		t.Fatalf("runtime config %+v does not reflect the user config", c)
	}
}
