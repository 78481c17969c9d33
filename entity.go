package lattice

import (
	"math"
	"sync/atomic"

	"github.com/lattice-engine/lattice/internal/assert"
)

// EntityID is a unique identifier for an entity. Entities carry no data of
// their own; all state lives in component storages keyed by this ID.
type EntityID uint32

// MaxEntityID is the largest entity ID the allocator will hand out.
const MaxEntityID = math.MaxUint32 - 1

// IDs 0 and 1 are reserved as the EntityMap's empty and tombstone markers,
// so the allocator starts at 2 and never hands them out.
const firstEntityID EntityID = 2

// nextID is process-wide so that entity IDs are unique across worlds.
var nextID atomic.Uint32

func init() {
	nextID.Store(uint32(firstEntityID))
}

// nextEntityID allocates a fresh entity ID. IDs increase monotonically and
// are never reused within a process.
func nextEntityID() EntityID {
	id := EntityID(nextID.Add(1) - 1)
	// Past MaxEntityID the counter wraps onto the reserved ids.
	assert.That(id >= firstEntityID && id <= MaxEntityID, "entity id space exhausted")
	return id
}
