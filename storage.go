package lattice

import (
	"github.com/rotisserie/eris"

	"github.com/lattice-engine/lattice/internal/assert"
)

// Component is the interface all components must implement. Components
// are pure data records attached to entities.
type Component interface {
	// Name returns a unique, stable identifier for the component type.
	Name() string
}

// BucketStored is implemented by components that want dense bucketed
// storage instead of the default sparse map. BucketSize is the number of
// slots per bucket and must be below 65535.
//
// Example:
//
//	type Position struct{ X, Y float32 }
//
//	func (Position) Name() string   { return "position" }
//	func (Position) BucketSize() int { return 2000 }
type BucketStored interface {
	Component
	BucketSize() int
}

// Store is the typed contract every concrete component storage fulfills.
// Get and Detach fail fatally when the entity lacks the component; Attach
// fails fatally when it already has one. Iteration order is unspecified;
// systems iterate their followed set and look entities up.
type Store[T Component] interface {
	Has(id EntityID) bool
	Get(id EntityID) *T
	GetIf(id EntityID) (*T, bool)
	Attach(id EntityID, component T) *T
	Detach(id EntityID)
}

// store is the untyped face of a storage, used by the drain machinery
// and diagnostics where the concrete component type is unknown.
type store interface {
	componentName() string
	hasEntity(id EntityID) bool
	detachEntity(id EntityID)
	size() int
}

// maintainable is implemented by storages that support an explicit
// defragmentation pass (see BucketStorage).
type maintainable interface {
	estimateDefragCost() (float64, bool)
	defragment()
}

// componentID is the dense index of a component type in the registry.
type componentID = int

// componentRegistry assigns dense integer indices to component types and
// owns their storages. The index doubles as the component's bit position
// in every Mask.
type componentRegistry struct {
	catalog  map[string]componentID
	storages []store
}

func newComponentRegistry() componentRegistry {
	return componentRegistry{
		catalog:  make(map[string]componentID),
		storages: make([]store, 0),
	}
}

// register adds a storage under name and returns its index. Registering
// the same name twice returns the existing index and discards st.
func (r *componentRegistry) register(name string, st store) (componentID, error) {
	if name == "" {
		return 0, eris.New("component name cannot be empty")
	}
	if id, exists := r.catalog[name]; exists {
		return id, nil
	}
	id := len(r.storages)
	r.catalog[name] = id
	r.storages = append(r.storages, st)
	assert.That(len(r.catalog) == len(r.storages), "component catalog out of sync with storages")
	return id, nil
}

func (r *componentRegistry) id(name string) (componentID, bool) {
	id, ok := r.catalog[name]
	return id, ok
}

// RegisterComponent registers T with the world, constructing its storage.
// Components implementing BucketStored get a BucketStorage of the
// requested bucket size; everything else gets a SparseStorage. The
// registration order defines the component's bit in every entity mask.
// Re-registering a component type is a no-op.
func RegisterComponent[T Component](w *World) error {
	var zero T

	var st store
	if bucketed, ok := any(zero).(BucketStored); ok {
		st = newBucketStorage[T](bucketed.BucketSize(), w.cfg)
	} else {
		st = newSparseStorage[T](w.cfg)
	}

	_, err := w.components.register(zero.Name(), st)
	if err != nil {
		return eris.Wrapf(err, "failed to register component %s", zero.Name())
	}
	return nil
}

// storageOf resolves T's registered storage and component index. Fails
// fatally if T was never registered: that is a wiring mistake, not a
// runtime condition.
func storageOf[T Component](w *World) (componentID, Store[T]) {
	var zero T
	id, ok := w.components.id(zero.Name())
	assert.That(ok, "component %s is not registered", zero.Name())

	typed, ok := w.components.storages[id].(Store[T])
	assert.That(ok, "component %s registered with a mismatched storage type", zero.Name())
	return id, typed
}
