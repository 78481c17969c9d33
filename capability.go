package lattice

import (
	"reflect"

	"github.com/lattice-engine/lattice/internal/assert"
)

// fieldInfo is what a capability field reports about itself at system
// registration: which components it subscribes to, which it reads,
// writes, or structurally mutates, and the drain step (if any) the
// post-processor must run after the owning system finishes.
type fieldInfo struct {
	subscribe  []componentID
	reads      []componentID
	writes     []componentID
	structural []componentID
	resReads   []int
	resWrites  []int
	builds     bool
	destroys   bool
	drain      func(*World)
}

// stateField is implemented by every capability type that may appear in
// a system state struct.
type stateField interface {
	initField(w *World) (fieldInfo, error)
}

// followedBinder is implemented by fields that need the system's own
// followed set, which only exists once registration completes.
type followedBinder interface {
	bind(set *followedSet)
}

var _ stateField = &FollowedEntities{}
var _ stateField = &Read[Component]{}
var _ stateField = &Write[Component]{}
var _ stateField = &Attach[Component]{}
var _ stateField = &Detach[Component]{}
var _ stateField = &Builder{}
var _ stateField = &Destroyer{}
var _ followedBinder = &FollowedEntities{}

// -------------------------------------------------------------------------------------------------
// Followed entities
// -------------------------------------------------------------------------------------------------

func (f *FollowedEntities) initField(w *World) (fieldInfo, error) {
	f.workers = w.cfg.Workers
	return fieldInfo{}, nil
}

func (f *FollowedEntities) bind(set *followedSet) {
	f.set = set
}

// -------------------------------------------------------------------------------------------------
// Component access
// -------------------------------------------------------------------------------------------------

// Read grants lookup access to component T and, by default, adds T to
// the owning system's subscription.
//
// Example:
//
//	type TranslationState struct {
//	    Entities lattice.FollowedEntities
//	    Pos      lattice.Write[Position]
//	    Vel      lattice.Read[Velocity]
//	}
//
//	func Translation(state *TranslationState) error {
//	    for id := range state.Entities.Iter() {
//	        pos := state.Pos.Get(id)
//	        vel := state.Vel.Get(id)
//	        pos.X += 0.016 * vel.X
//	        pos.Y += 0.016 * vel.Y
//	    }
//	    return nil
//	}
type Read[T Component] struct {
	store Store[T]
}

func (r *Read[T]) initField(w *World) (fieldInfo, error) {
	if err := RegisterComponent[T](w); err != nil {
		return fieldInfo{}, err
	}
	id, st := storageOf[T](w)
	r.store = st
	return fieldInfo{
		subscribe: []componentID{id},
		reads:     []componentID{id},
	}, nil
}

// Get returns the component for id, failing fatally if absent.
func (r Read[T]) Get(id EntityID) T { return *r.store.Get(id) }

// GetIf returns the component for id if present.
func (r Read[T]) GetIf(id EntityID) (T, bool) {
	ptr, ok := r.store.GetIf(id)
	if !ok {
		var zero T
		return zero, false
	}
	return *ptr, true
}

// Has reports whether id carries the component.
func (r Read[T]) Has(id EntityID) bool { return r.store.Has(id) }

// Write grants mutable lookup access to component T and, by default,
// adds T to the owning system's subscription. At most one system in a
// parallel group may write a given component.
type Write[T Component] struct {
	store Store[T]
}

func (wc *Write[T]) initField(w *World) (fieldInfo, error) {
	if err := RegisterComponent[T](w); err != nil {
		return fieldInfo{}, err
	}
	id, st := storageOf[T](w)
	wc.store = st
	return fieldInfo{
		subscribe: []componentID{id},
		writes:    []componentID{id},
	}, nil
}

// Get returns a mutable pointer to the component for id, failing fatally
// if absent. The pointer is valid until the component's storage next
// changes: an attach or detach of any entity, or a defragmentation.
func (wc Write[T]) Get(id EntityID) *T { return wc.store.Get(id) }

// GetIf returns a mutable pointer to the component for id if present.
func (wc Write[T]) GetIf(id EntityID) (*T, bool) { return wc.store.GetIf(id) }

// Has reports whether id carries the component.
func (wc Write[T]) Has(id EntityID) bool { return wc.store.Has(id) }

// -------------------------------------------------------------------------------------------------
// Structural component access
// -------------------------------------------------------------------------------------------------

// Attach lets a system give component T to entities. The storage is
// updated immediately; masks and followed sets update at the system's
// drain. Attach does not subscribe the system to T.
type Attach[T Component] struct {
	w     *World
	store Store[T]
	comp  componentID
}

func (a *Attach[T]) initField(w *World) (fieldInfo, error) {
	if err := RegisterComponent[T](w); err != nil {
		return fieldInfo{}, err
	}
	id, st := storageOf[T](w)
	a.w = w
	a.store = st
	a.comp = id
	w.buffers.ensureComponent(id)
	return fieldInfo{
		structural: []componentID{id},
		drain:      func(world *World) { world.drainAttached(id) },
	}, nil
}

// Attach gives id the component, failing fatally if it already has one.
func (a Attach[T]) Attach(id EntityID, component T) *T {
	ptr := a.store.Attach(id, component)
	a.w.buffers.attached[a.comp] = append(a.w.buffers.attached[a.comp], id)
	return ptr
}

// Detach lets a system take component T away from entities. The storage
// is updated immediately; masks and followed sets update at the system's
// drain. Detach does not subscribe the system to T.
type Detach[T Component] struct {
	w     *World
	store Store[T]
	comp  componentID
}

func (d *Detach[T]) initField(w *World) (fieldInfo, error) {
	if err := RegisterComponent[T](w); err != nil {
		return fieldInfo{}, err
	}
	id, st := storageOf[T](w)
	d.w = w
	d.store = st
	d.comp = id
	w.buffers.ensureComponent(id)
	return fieldInfo{
		structural: []componentID{id},
		drain:      func(world *World) { world.drainDetached(id) },
	}, nil
}

// Detach removes the component from id, failing fatally if absent.
func (d Detach[T]) Detach(id EntityID) {
	d.store.Detach(id)
	d.w.buffers.detached[d.comp] = append(d.w.buffers.detached[d.comp], id)
}

// -------------------------------------------------------------------------------------------------
// Entity lifecycle
// -------------------------------------------------------------------------------------------------

// Builder creates entities. A new entity is pending until the owning
// system's drain (or the end of World.BuildEntities); live afterwards.
//
// Example:
//
//	sk := state.Builder.NewEntity()
//	lattice.WithComponent(sk, Position{X: 1})
//	lattice.WithComponent(sk, Velocity{X: 2})
type Builder struct {
	w *World
}

func (b *Builder) initField(w *World) (fieldInfo, error) {
	b.w = w
	return fieldInfo{
		builds: true,
		drain:  func(world *World) { world.drainCreations() },
	}, nil
}

// NewEntity allocates a fresh entity id and returns a skeleton that
// accumulates components until the next drain.
func (b Builder) NewEntity() *EntitySkeleton {
	assert.That(b.w != nil, "Builder used before initialization")
	spec := &entitySpec{id: nextEntityID(), mask: NewMask()}
	b.w.buffers.pending = append(b.w.buffers.pending, spec)
	return &EntitySkeleton{w: b.w, spec: spec}
}

// EntitySkeleton is a pending entity under construction.
type EntitySkeleton struct {
	w    *World
	spec *entitySpec
}

// ID returns the pending entity's id.
func (s *EntitySkeleton) ID() EntityID { return s.spec.id }

// WithComponent attaches a component to a pending entity. The component
// type is registered on first use.
func WithComponent[T Component](sk *EntitySkeleton, component T) *EntitySkeleton {
	err := RegisterComponent[T](sk.w)
	assert.That(err == nil, "failed to register component during entity build: %v", err)

	id, st := storageOf[T](sk.w)
	st.Attach(sk.spec.id, component)
	sk.spec.mask.Set(id)
	return sk
}

// Destroyer marks entities for destruction. The entity and all its
// components are removed at the owning system's drain.
type Destroyer struct {
	w *World
}

func (d *Destroyer) initField(w *World) (fieldInfo, error) {
	d.w = w
	return fieldInfo{
		destroys: true,
		drain:    func(world *World) { world.drainDestroyed() },
	}, nil
}

// Destroy queues id for destruction. Destroying the same entity twice in
// one window is fine; destroying an entity that is not live is fatal at
// the drain.
func (d Destroyer) Destroy(id EntityID) {
	d.w.buffers.deathRow = append(d.w.buffers.deathRow, id)
}

// -------------------------------------------------------------------------------------------------
// Resource access
// -------------------------------------------------------------------------------------------------

// ReadResource grants shared access to the resource of type R. The slot
// is declared on registration and must be filled during World.Init.
type ReadResource[R any] struct {
	res  *Resources
	slot int
}

func (r *ReadResource[R]) initField(w *World) (fieldInfo, error) {
	r.res = &w.resources
	r.slot = w.resources.declare(reflect.TypeFor[R]())
	return fieldInfo{resReads: []int{r.slot}}, nil
}

// Get returns the resource. Mutating through the returned pointer from a
// ReadResource handle is a caller error the runtime cannot see.
func (r ReadResource[R]) Get() *R { return resourceOf[R](r.res) }

// WriteResource grants exclusive access to the resource of type R. At
// most one system in a parallel group may write a given resource.
type WriteResource[R any] struct {
	res  *Resources
	slot int
}

func (r *WriteResource[R]) initField(w *World) (fieldInfo, error) {
	r.res = &w.resources
	r.slot = w.resources.declare(reflect.TypeFor[R]())
	return fieldInfo{resWrites: []int{r.slot}}, nil
}

// Get returns the resource.
func (r WriteResource[R]) Get() *R { return resourceOf[R](r.res) }
