package lattice

import (
	"github.com/lattice-engine/lattice/internal/assert"
)

const (
	// Reserved key values. The entity allocator starts at 2, so the zero
	// value of an unused slot already reads as empty.
	emptyKey     EntityID = 0
	tombstoneKey EntityID = 1

	// Odd Knuth multiplier. Capacity-1 masks the product down to a bucket.
	hashMultiplier uint32 = 2654435761

	// DefaultMapCapacity is the initial capacity of an EntityMap when the
	// caller doesn't choose one.
	DefaultMapCapacity = 64

	// DefaultLoadFactor is the load factor above which an EntityMap
	// doubles its capacity.
	DefaultLoadFactor = 0.5

	// A probe sequence this long means the hash function or the load
	// factor is broken.
	maxReasonableProbe = 100
)

func hashID(id EntityID) uint32 {
	return uint32(id) * hashMultiplier
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

type mapSlot[V any] struct {
	id    EntityID
	value V
}

// EntityMap is an open-addressed hash table from EntityID to V using
// robin-hood probing. It is the building block for component storages,
// the entity mask table, and bucket handle maps. Capacity is always a
// power of two; two key values (0 and 1) are reserved as the empty and
// tombstone markers and are never produced by the entity allocator.
//
// An EntityMap must not be copied after first use. Pointers returned by
// Lookup, Insert, and Index are valid only until the next Insert or
// Remove on the same map.
type EntityMap[V any] struct {
	slots        []mapSlot[V]
	count        int
	longestProbe uint32
	maxLoad      float64
}

// NewEntityMap creates a map with the given initial capacity, which must
// be a power of two, and the default load factor.
func NewEntityMap[V any](initialCapacity int) *EntityMap[V] {
	return newEntityMapLoad[V](initialCapacity, DefaultLoadFactor)
}

// newEntityMapLoad creates a map with an explicit load factor, which
// must be in (0, 1).
func newEntityMapLoad[V any](initialCapacity int, loadFactor float64) *EntityMap[V] {
	assert.That(isPowerOfTwo(initialCapacity), "EntityMap capacity must be a power of two, got %d", initialCapacity)
	assert.That(loadFactor > 0 && loadFactor < 1, "EntityMap load factor must be in (0, 1), got %v", loadFactor)
	return &EntityMap[V]{
		slots:   make([]mapSlot[V], initialCapacity),
		maxLoad: loadFactor,
	}
}

// Len returns the number of live entries.
func (m *EntityMap[V]) Len() int { return m.count }

// Capacity returns the current table capacity.
func (m *EntityMap[V]) Capacity() int { return len(m.slots) }

// LongestProbe returns the longest probe distance any live key has
// required so far.
func (m *EntityMap[V]) LongestProbe() int { return int(m.longestProbe) }

func (m *EntityMap[V]) loadFactor() float64 {
	return float64(m.count) / float64(len(m.slots))
}

// Lookup returns a pointer to the value stored for id, or false if the
// key is absent. Probing stops at an empty slot, at a match, or once the
// probe distance exceeds the longest distance any insert has produced.
func (m *EntityMap[V]) Lookup(id EntityID) (*V, bool) {
	mask := uint32(len(m.slots) - 1)
	probe := hashID(id) & mask

	for dib := uint32(0); ; dib++ {
		slot := &m.slots[probe]
		if slot.id == id {
			return &slot.value, true
		}
		if slot.id == emptyKey {
			return nil, false
		}
		if dib >= m.longestProbe {
			return nil, false
		}
		probe = (probe + 1) & mask
	}
}

// Index returns a pointer to the value stored for id and fails fatally if
// the key is absent.
func (m *EntityMap[V]) Index(id EntityID) *V {
	v, ok := m.Lookup(id)
	assert.That(ok, "EntityMap: no entry for entity %d", id)
	return v
}

// Insert stores value under id, overwriting any existing value in place.
// If adding the key would take the table above its load factor, the
// capacity doubles first.
// Robin-hood discipline: while probing, a slot whose occupant is closer
// to its own home bucket than the insertee is to its home is swapped.
func (m *EntityMap[V]) Insert(id EntityID, value V) *V {
	assert.That(id != emptyKey && id != tombstoneKey, "EntityMap: reserved key %d", id)

	// An existing key may sit past a tombstone the probe below would
	// reuse, so overwrite it here rather than plant a second copy.
	if existing, ok := m.Lookup(id); ok {
		*existing = value
		return existing
	}

	if float64(m.count+1) > m.maxLoad*float64(len(m.slots)) {
		m.rehash(len(m.slots) * 2)
	}

	mask := uint32(len(m.slots) - 1)
	probe := hashID(id) & mask
	dib := uint32(0)

	// The final resting place of the original key, recorded when it is
	// first planted so that swap cascades don't lose it.
	var result *V
	original := id

	for {
		slot := &m.slots[probe]

		switch {
		case slot.id == emptyKey || slot.id == tombstoneKey:
			slot.id = id
			slot.value = value
			m.count++
			m.bumpProbe(dib)
			if id == original {
				result = &slot.value
			}
			return result

		case slot.id == id:
			slot.value = value
			if id == original {
				result = &slot.value
			}
			return result

		default:
			probedDib := (probe - hashID(slot.id)) & mask
			if probedDib < dib {
				m.bumpProbe(dib)
				slot.id, id = id, slot.id
				slot.value, value = value, slot.value
				if slot.id == original {
					result = &slot.value
				}
				dib = probedDib
			}
		}

		probe = (probe + 1) & mask
		dib++
	}
}

// Remove deletes the entry for id, leaving a tombstone. Returns false if
// the key was absent.
func (m *EntityMap[V]) Remove(id EntityID) bool {
	mask := uint32(len(m.slots) - 1)
	probe := hashID(id) & mask

	for dib := uint32(0); ; dib++ {
		slot := &m.slots[probe]
		if slot.id == id {
			var zero V
			slot.id = tombstoneKey
			slot.value = zero
			m.count--
			return true
		}
		if slot.id == emptyKey {
			return false
		}
		if dib >= m.longestProbe {
			return false
		}
		probe = (probe + 1) & mask
	}
}

// Range calls fn for every live entry. fn must not mutate the map.
func (m *EntityMap[V]) Range(fn func(id EntityID, value *V) bool) {
	for i := range m.slots {
		slot := &m.slots[i]
		if slot.id == emptyKey || slot.id == tombstoneKey {
			continue
		}
		if !fn(slot.id, &slot.value) {
			return
		}
	}
}

// rehash re-inserts all live entries into a fresh table of newCapacity,
// dropping tombstones.
func (m *EntityMap[V]) rehash(newCapacity int) {
	assert.That(newCapacity > len(m.slots), "EntityMap: rehash must grow the table")
	assert.That(isPowerOfTwo(newCapacity), "EntityMap: capacity must be a power of two, got %d", newCapacity)

	fresh := &EntityMap[V]{
		slots:   make([]mapSlot[V], newCapacity),
		maxLoad: m.maxLoad,
	}
	for i := range m.slots {
		slot := &m.slots[i]
		if slot.id != emptyKey && slot.id != tombstoneKey {
			fresh.Insert(slot.id, slot.value)
		}
	}

	m.slots = fresh.slots
	m.longestProbe = fresh.longestProbe
	m.count = fresh.count
}

func (m *EntityMap[V]) bumpProbe(dib uint32) {
	if dib > m.longestProbe {
		m.longestProbe = dib
	}
	assert.That(m.longestProbe < maxReasonableProbe, "EntityMap: probe sequence of %d is unreasonably long", m.longestProbe)
}
