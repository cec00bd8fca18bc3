package world

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/df-mc/stratum/world/chunk"
	"github.com/pelletier/go-toml"
)

// Config contains the options for a chunk Map. Fields not set are replaced
// by sensible defaults when the Config is used to create a Map.
type Config struct {
	// Log is the Logger used for structural warnings and save errors. If
	// nil, Log is set to slog.Default().
	Log *slog.Logger
	// Provider is the persistence collaborator used to load chunks before
	// generating them and to save them on unload. Defaults to NopProvider.
	Provider Provider
	// Pipeline is the generation stage table. Defaults to DefaultPipeline
	// with no stage logic, producing empty chunks.
	Pipeline *Pipeline
	// Range is the vertical extent of every chunk of the Map. It must span a
	// positive whole number of sub chunks. Defaults to [-64, 319].
	Range chunk.Range
	// Air is the block value new chunks are filled with.
	Air uint32
	// Workers controls the amount of goroutines advancing generation tasks.
	// If 0 or lower, the worker count is derived from the available CPUs.
	Workers int
	// QueueSize limits how many generation tasks may wait for a worker. If 0
	// or lower, a size proportional to the worker count is chosen. Raise it
	// alongside Workers if the logs report scheduler queue saturation.
	QueueSize int
	// UnloadInterval is the period of the sweep that unloads chunks no
	// ticket or task retains. Defaults to a minute. A negative interval
	// disables the sweep entirely; RunUnloadSweep may still be called
	// manually.
	UnloadInterval time.Duration
	// ReadOnly stops the Map from ever calling Provider.StoreColumn.
	ReadOnly bool
}

func (conf Config) withDefaults() Config {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Provider == nil {
		conf.Provider = NopProvider{}
	}
	if conf.Pipeline == nil {
		conf.Pipeline = DefaultPipeline(nil)
	}
	if conf.Range == (chunk.Range{}) {
		conf.Range = chunk.Range{-64, 319}
	}
	if conf.Range[0] >= conf.Range[1] || conf.Range[0]%16 != 0 || (conf.Range[1]+1)%16 != 0 {
		panic(fmt.Sprintf("world: config range %v does not span whole sub chunks", conf.Range))
	}
	if conf.Workers <= 0 {
		conf.Workers = max(runtime.NumCPU()/2, 1)
	}
	if conf.QueueSize <= 0 {
		conf.QueueSize = conf.Workers * 32
	}
	if conf.UnloadInterval == 0 {
		conf.UnloadInterval = time.Minute
	}
	return conf
}

// New creates a chunk Map with the Config and starts its generation workers
// and unload sweep. The Map must be closed using Map.Close once it is no
// longer needed.
func (conf Config) New() *Map {
	conf = conf.withDefaults()
	m := &Map{
		conf:    conf,
		tasks:   make(chan *task, conf.QueueSize),
		closing: make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i].holders = make(map[ChunkPos]*Holder)
	}
	m.running.Add(conf.Workers)
	for i := 0; i < conf.Workers; i++ {
		go m.worker()
	}
	if conf.UnloadInterval > 0 {
		m.running.Add(1)
		go m.sweeper()
	}
	return m
}

// UserConfig is the TOML-serialisable form of the settings a server operator
// may tune. Convert it to a runtime Config using UserConfig.Config.
type UserConfig struct {
	World struct {
		// Folder is the directory chunk data is saved in.
		Folder string `toml:"folder"`
		// ReadOnly stops all saving of chunk data.
		ReadOnly bool `toml:"read_only"`
	} `toml:"world"`
	Generation struct {
		Workers        int `toml:"workers"`
		QueueSize      int `toml:"queue_size"`
		UnloadInterval int `toml:"unload_interval_seconds"`
	} `toml:"generation"`
}

// DefaultUserConfig returns the default configuration written when no
// configuration file exists yet.
func DefaultUserConfig() UserConfig {
	conf := UserConfig{}
	conf.World.Folder = "world"
	conf.Generation.UnloadInterval = 60
	return conf
}

// Config converts the UserConfig to a runtime Config using the logger
// passed. The Provider and Pipeline fields remain unset: callers attach a
// provider opened on UserConfig.World.Folder and their own stage logic.
func (uc UserConfig) Config(log *slog.Logger) Config {
	return Config{
		Log:            log,
		Workers:        uc.Generation.Workers,
		QueueSize:      uc.Generation.QueueSize,
		UnloadInterval: time.Duration(uc.Generation.UnloadInterval) * time.Second,
		ReadOnly:       uc.World.ReadOnly,
	}
}

// ReadUserConfig reads a UserConfig from the TOML file at the path passed.
// If the file does not exist, it is created holding the default
// configuration, which is then returned.
func ReadUserConfig(path string) (UserConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		conf := DefaultUserConfig()
		return conf, WriteUserConfig(path, conf)
	}
	if err != nil {
		return UserConfig{}, fmt.Errorf("read config: %w", err)
	}
	var conf UserConfig
	if err := toml.Unmarshal(data, &conf); err != nil {
		return UserConfig{}, fmt.Errorf("read config: decode: %w", err)
	}
	return conf, nil
}

// WriteUserConfig writes a UserConfig to the TOML file at the path passed.
func WriteUserConfig(path string, conf UserConfig) error {
	data, err := toml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("write config: encode: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
