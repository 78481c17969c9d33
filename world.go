// Package lattice is a data-oriented entity-component-system runtime for
// simulations that update large uniform populations each tick. Component
// data lives in typed storages keyed by entity id (a sparse robin-hood
// map or a bucketed dense array with stable handles), each system keeps
// a sorted set of the entities matching its component subscription, and
// structural changes are batched between system runs so every system
// sees a consistent world.
package lattice

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/lattice-engine/lattice/statsd"
)

// World owns the component storages, the entity mask table, the
// registered systems with their followed sets, the structural change
// queues, and the resource store. A World is not safe for concurrent
// use except through RunParallel and ForEachPar.
type World struct {
	log zerolog.Logger
	cfg Config

	components componentRegistry
	masks      *EntityMap[Mask]
	buffers    structuralBuffers
	resources  Resources

	systems       []*systemEntry
	systemIndex   map[string]int
	checkedGroups map[string]struct{}
}

// Option configures a World at construction.
type Option func(*World)

// WithConfig replaces the default tunables.
func WithConfig(cfg Config) Option {
	return func(w *World) {
		cfg.normalize()
		w.cfg = cfg
	}
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(w *World) { w.log = log }
}

// WithWorkers sets the worker count for parallel groups and ForEachPar.
func WithWorkers(n int) Option {
	return func(w *World) {
		if n > 0 {
			w.cfg.Workers = n
		}
	}
}

// NewWorld creates an empty world. Register components, systems, and
// resources, then call Init.
func NewWorld(opts ...Option) *World {
	w := &World{
		log:           zerolog.Nop(),
		cfg:           DefaultConfig(),
		components:    newComponentRegistry(),
		buffers:       newStructuralBuffers(),
		resources:     newResources(),
		systemIndex:   make(map[string]int),
		checkedGroups: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.masks = newEntityMapLoad[Mask](w.cfg.MapCapacity, w.cfg.LoadFactor)
	return w
}

// Init runs the resource initializer and verifies that every declared
// resource slot was filled. On failure the world must not be ticked.
func (w *World) Init(initializer func(*Resources)) error {
	if initializer != nil {
		initializer(&w.resources)
	}
	if !w.resources.allInitialized() {
		missing := w.resources.missing()
		w.log.Error().Strs("missing", missing).Msg("world init failed")
		return eris.Wrapf(ErrResourceMissing, "unfilled resources: %v", missing)
	}
	return nil
}

// BuildEntities hands an entity builder to fn and drains the creations
// before returning, so the new entities are live and followed.
func (w *World) BuildEntities(fn func(Builder)) {
	fn(Builder{w: w})
	w.drainCreations()
}

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int {
	return w.masks.Len()
}

// SetSystemActive enables or disables a system. Inactive systems are
// skipped by the dispatcher; their followed sets keep updating.
func (w *World) SetSystemActive(name string, active bool) error {
	sys, err := w.system(name)
	if err != nil {
		return err
	}
	sys.active = active
	return nil
}

// FollowedCount returns the size of a system's followed set.
func (w *World) FollowedCount(name string) (int, error) {
	sys, err := w.system(name)
	if err != nil {
		return 0, err
	}
	return sys.followed.len(), nil
}

// RunMaintenance walks the bucket storages and defragments those whose
// advisory estimate fits in the remaining time budget. Must not run
// concurrently with any system.
func (w *World) RunMaintenance(budget time.Duration) {
	remaining := budget
	for _, st := range w.components.storages {
		m, ok := st.(maintainable)
		if !ok {
			continue
		}
		seconds, due := m.estimateDefragCost()
		if !due || time.Duration(seconds*float64(time.Second)) > remaining {
			continue
		}

		start := time.Now()
		m.defragment()
		spent := time.Since(start)
		statsd.EmitTickStat(start, "defrag:"+st.componentName())
		w.log.Debug().
			Str("component", st.componentName()).
			Dur("took", spent).
			Msg("defragmented storage")

		remaining -= spent
		if remaining <= 0 {
			return
		}
	}
}

func (w *World) system(name string) (*systemEntry, error) {
	at, ok := w.systemIndex[name]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownSystem, "system %s", name)
	}
	return w.systems[at], nil
}
