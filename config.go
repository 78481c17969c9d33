package lattice

import (
	"runtime"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/rotisserie/eris"
)

// Config carries the world's tunables. Zero or out-of-range fields fall
// back to defaults, so a partially populated Config is fine.
type Config struct {
	// Workers is the number of goroutines used for parallel system
	// groups and ForEachPar. Defaults to max(NumCPU-2, 1).
	Workers int `config:"LATTICE_WORKERS"`

	// MapCapacity is the initial capacity of entity maps. Must be a
	// power of two. Defaults to 64.
	MapCapacity int `config:"LATTICE_MAP_CAPACITY"`

	// LoadFactor is the entity-map load factor above which the table
	// doubles its capacity. Must be in (0, 1). Defaults to 0.5.
	LoadFactor float64 `config:"LATTICE_LOAD_FACTOR"`

	// DefragRatio is the fragmentation ratio (removals since the last
	// defragmentation over total slots) above which bucket storages
	// start advertising a defragmentation estimate. Defaults to 0.1.
	DefragRatio float64 `config:"LATTICE_DEFRAG_RATIO"`
}

// DefaultConfig returns the built-in tunables.
func DefaultConfig() Config {
	return Config{
		Workers:     defaultWorkers(),
		MapCapacity: DefaultMapCapacity,
		LoadFactor:  DefaultLoadFactor,
		DefragRatio: 0.1,
	}
}

// LoadConfig populates a Config from the environment on top of the
// defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := jlconfig.FromEnv().To(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "failed to load config from environment")
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers()
	}
	if c.MapCapacity <= 0 || !isPowerOfTwo(c.MapCapacity) {
		c.MapCapacity = DefaultMapCapacity
	}
	if c.LoadFactor <= 0 || c.LoadFactor >= 1 {
		c.LoadFactor = DefaultLoadFactor
	}
	if c.DefragRatio <= 0 {
		c.DefragRatio = 0.1
	}
}

func defaultWorkers() int {
	return max(runtime.NumCPU()-2, 1)
}
