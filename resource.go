package lattice

import (
	"reflect"

	"github.com/lattice-engine/lattice/internal/assert"
)

// resourceSlot holds one typed singleton. owned records whether the
// store constructed the value itself or was handed an external pointer.
type resourceSlot struct {
	value any
	owned bool
}

// Resources is the world's typed singleton store. Slots are declared
// with RegisterResource before World.Init; the initializer passed to
// Init must fill every declared slot or Init fails.
type Resources struct {
	index map[reflect.Type]int
	slots []resourceSlot
}

func newResources() Resources {
	return Resources{index: make(map[reflect.Type]int)}
}

// declare reserves a slot for type t. Re-declaring is a no-op.
func (r *Resources) declare(t reflect.Type) int {
	if at, ok := r.index[t]; ok {
		return at
	}
	at := len(r.slots)
	r.index[t] = at
	r.slots = append(r.slots, resourceSlot{})
	return at
}

// allInitialized reports whether every declared slot holds a value.
func (r *Resources) allInitialized() bool {
	for _, slot := range r.slots {
		if slot.value == nil {
			return false
		}
	}
	return true
}

// missing lists the declared types whose slots are still empty.
func (r *Resources) missing() []string {
	var names []string
	for t, at := range r.index {
		if r.slots[at].value == nil {
			names = append(names, t.String())
		}
	}
	return names
}

// RegisterResource declares a resource slot of type R on the world.
// The slot must be filled during World.Init.
func RegisterResource[R any](w *World) {
	w.resources.declare(reflect.TypeFor[R]())
}

// ConstructResource builds and stores an owned resource value. Fails
// fatally if the slot was never declared or is already filled.
func ConstructResource[R any](r *Resources, value R) *R {
	t := reflect.TypeFor[R]()
	at, ok := r.index[t]
	assert.That(ok, "resource %s is not registered", t)
	assert.That(r.slots[at].value == nil, "resource %s constructed twice", t)

	ptr := &value
	r.slots[at] = resourceSlot{value: ptr, owned: true}
	return ptr
}

// StoreUnownedResource places an externally owned resource pointer in
// its slot. Fails fatally if the slot was never declared, is already
// filled, or ptr is nil.
func StoreUnownedResource[R any](r *Resources, ptr *R) {
	t := reflect.TypeFor[R]()
	at, ok := r.index[t]
	assert.That(ok, "resource %s is not registered", t)
	assert.That(r.slots[at].value == nil, "resource %s stored twice", t)
	assert.That(ptr != nil, "attempted to store a nil %s resource", t)

	r.slots[at] = resourceSlot{value: ptr, owned: false}
}

// GetResource returns the world's resource of type R, failing fatally if
// the slot is empty or was never declared.
func GetResource[R any](w *World) *R {
	return resourceOf[R](&w.resources)
}

func resourceOf[R any](r *Resources) *R {
	t := reflect.TypeFor[R]()
	at, ok := r.index[t]
	assert.That(ok, "resource %s is not registered", t)

	ptr, ok := r.slots[at].value.(*R)
	assert.That(ok && ptr != nil, "resource %s is not initialized", t)
	return ptr
}
