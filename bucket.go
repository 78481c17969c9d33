package lattice

import (
	"math"
	"time"

	"github.com/lattice-engine/lattice/internal/assert"
)

const (
	// noEntity marks an empty slot in a bucket's slot-id table.
	noEntity EntityID = math.MaxUint32

	// noOpenSlot means a bucket's next-open-slot hint has nothing to
	// point at: the bucket is full.
	noOpenSlot uint16 = math.MaxUint16

	// maxBucketSize bounds the per-bucket slot count so that a slot
	// index always fits in a uint16 with room for the hint sentinel.
	maxBucketSize = 65534
)

// handle locates a component inside a BucketStorage: (bucket, slot).
// It packs into 32 bits so handle maps stay small.
type handle struct {
	bucket uint16
	slot   uint16
}

// bucket owns a fixed-size block of component values plus a parallel
// table of the entity occupying each slot. nextOpen always points at the
// earliest empty slot, or noOpenSlot when full.
type bucket[T Component] struct {
	data     []T
	slotIDs  []EntityID
	active   int
	nextOpen uint16
}

func newBucket[T Component](size int) *bucket[T] {
	b := &bucket[T]{
		data:     make([]T, size),
		slotIDs:  make([]EntityID, size),
		nextOpen: 0,
	}
	for i := range b.slotIDs {
		b.slotIDs[i] = noEntity
	}
	return b
}

func (b *bucket[T]) isFull() bool { return b.active == len(b.slotIDs) }

// insert places a component at the hinted slot and advances the hint to
// the next empty slot.
func (b *bucket[T]) insert(id EntityID, component T) uint16 {
	assert.That(!b.isFull(), "attempted to insert into a full bucket")

	slot := b.nextOpen
	b.data[slot] = component
	b.slotIDs[slot] = id
	b.active++

	for next := int(slot) + 1; next < len(b.slotIDs); next++ {
		if b.slotIDs[next] == noEntity {
			b.nextOpen = uint16(next)
			return slot
		}
	}
	b.nextOpen = noOpenSlot
	return slot
}

// release empties a slot and keeps the hint pointing at the earliest
// empty slot.
func (b *bucket[T]) release(slot uint16) {
	assert.That(b.active > 0, "attempted to release a slot from an empty bucket")
	assert.That(b.slotIDs[slot] != noEntity, "attempted to release an unoccupied slot")

	var zero T
	b.data[slot] = zero
	b.slotIDs[slot] = noEntity
	b.active--

	if b.nextOpen == noOpenSlot || slot < b.nextOpen {
		b.nextOpen = slot
	}
}

// BucketStorage stores components densely in fixed-size buckets, for
// large populations that are iterated often and detached rarely. An
// EntityMap of handles maps each entity to its (bucket, slot). Detaches
// leave holes; an explicit Defragment pass re-sorts slot contents into
// entity-id order to restore iteration locality.
type BucketStorage[T Component] struct {
	bucketSize  int
	buckets     []*bucket[T]
	handles     *EntityMap[handle]
	sortScratch []EntityID
	removals    int
	defragRatio float64
}

func newBucketStorage[T Component](bucketSize int, cfg Config) *BucketStorage[T] {
	assert.That(bucketSize > 0 && bucketSize <= maxBucketSize,
		"bucket size must be in [1, %d], got %d", maxBucketSize, bucketSize)
	return &BucketStorage[T]{
		bucketSize:  bucketSize,
		buckets:     []*bucket[T]{newBucket[T](bucketSize)},
		handles:     newEntityMapLoad[handle](cfg.MapCapacity, cfg.LoadFactor),
		sortScratch: make([]EntityID, 0, bucketSize),
		defragRatio: cfg.DefragRatio,
	}
}

// Has reports whether id carries the component.
func (s *BucketStorage[T]) Has(id EntityID) bool {
	_, ok := s.handles.Lookup(id)
	return ok
}

// Get returns the component for id, failing fatally if absent.
func (s *BucketStorage[T]) Get(id EntityID) *T {
	h := s.handles.Index(id)
	return &s.buckets[h.bucket].data[h.slot]
}

// GetIf returns the component for id if present.
func (s *BucketStorage[T]) GetIf(id EntityID) (*T, bool) {
	h, ok := s.handles.Lookup(id)
	if !ok {
		return nil, false
	}
	return &s.buckets[h.bucket].data[h.slot], true
}

// Attach stores a component for id in the first bucket with room,
// growing the bucket list if all are full. Fails fatally if the entity
// already has the component.
func (s *BucketStorage[T]) Attach(id EntityID, component T) *T {
	assert.That(!s.Has(id), "%s: entity %d already has the component", s.componentName(), id)

	for i, b := range s.buckets {
		if !b.isFull() {
			slot := b.insert(id, component)
			h := handle{bucket: uint16(i), slot: slot}
			s.handles.Insert(id, h)
			return &b.data[slot]
		}
	}

	assert.That(len(s.buckets) < math.MaxUint16, "%s: bucket count exceeds handle range", s.componentName())
	fresh := newBucket[T](s.bucketSize)
	s.buckets = append(s.buckets, fresh)
	slot := fresh.insert(id, component)
	s.handles.Insert(id, handle{bucket: uint16(len(s.buckets) - 1), slot: slot})
	return &fresh.data[slot]
}

// Detach removes the component for id, failing fatally if absent.
func (s *BucketStorage[T]) Detach(id EntityID) {
	h, ok := s.handles.Lookup(id)
	assert.That(ok, "%s: entity %d does not have the component", s.componentName(), id)

	s.buckets[h.bucket].release(h.slot)
	s.handles.Remove(id)
	s.removals++
}

// Defragment re-orders slot contents so entities appear in ascending id
// order across (bucket 0, slot 0 .. bucket B-1, slot N-1), with empty
// slots compacted toward the tail. The pass is atomic from the world's
// point of view: no concurrent access is permitted.
func (s *BucketStorage[T]) Defragment() {
	n := s.bucketSize
	total := len(s.buckets) * n

	s.sortScratch = s.sortScratch[:0]
	for _, b := range s.buckets {
		s.sortScratch = append(s.sortScratch, b.slotIDs...)
	}
	assert.That(len(s.sortScratch) == total, "slot scratch does not cover all buckets")

	// The table is nearly sorted already (ids are handed out in order),
	// so insertion sort beats a general sort here. noEntity is the max
	// uint32, so empty slots sort to the end on their own.
	insertionSort(s.sortScratch)

	for ib, b := range s.buckets {
		b.active = 0
		b.nextOpen = noOpenSlot
		for is := 0; is < n; is++ {
			current := b.slotIDs[is]
			target := s.sortScratch[ib*n+is]

			if target != noEntity {
				b.active++
			} else if b.nextOpen == noOpenSlot {
				b.nextOpen = uint16(is)
			}

			if current == target {
				continue
			}

			// Pull the target entity from wherever it lives now and push
			// the current occupant (if any) into its place.
			src := *s.handles.Index(target)
			dst := handle{bucket: uint16(ib), slot: uint16(is)}
			other := s.buckets[src.bucket]

			other.data[src.slot], b.data[is] = b.data[is], other.data[src.slot]
			other.slotIDs[src.slot], b.slotIDs[is] = b.slotIDs[is], other.slotIDs[src.slot]

			*s.handles.Index(target) = dst
			if current != noEntity {
				*s.handles.Index(current) = src
			}
		}
	}

	s.removals = 0
}

// EstimateDefragCost returns the predicted duration of a Defragment
// pass, but only once the fragmentation ratio (removals since the last
// pass over total slots) exceeds the configured threshold. Callers
// decide whether to spend the time. The cost model is empirical.
func (s *BucketStorage[T]) EstimateDefragCost() (time.Duration, bool) {
	total := len(s.buckets) * s.bucketSize
	if total == 0 {
		return 0, false
	}
	if float64(s.removals)/float64(total) <= s.defragRatio {
		return 0, false
	}
	seconds := math.Log2(float64(s.bucketSize)) * (3.5e-4 + 3.4e-9*float64(s.removals))
	return time.Duration(seconds * float64(time.Second)), true
}

func (s *BucketStorage[T]) componentName() string {
	var zero T
	return zero.Name()
}

func (s *BucketStorage[T]) hasEntity(id EntityID) bool { return s.Has(id) }
func (s *BucketStorage[T]) detachEntity(id EntityID)   { s.Detach(id) }
func (s *BucketStorage[T]) size() int                  { return s.handles.Len() }

func (s *BucketStorage[T]) estimateDefragCost() (float64, bool) {
	d, ok := s.EstimateDefragCost()
	return d.Seconds(), ok
}

func (s *BucketStorage[T]) defragment() { s.Defragment() }

func insertionSort(ids []EntityID) {
	for i := 1; i < len(ids); i++ {
		key := ids[i]
		j := i - 1
		for j >= 0 && ids[j] > key {
			ids[j+1] = ids[j]
			j--
		}
		ids[j+1] = key
	}
}

var _ Store[Component] = (*BucketStorage[Component])(nil)
var _ store = (*BucketStorage[Component])(nil)
var _ maintainable = (*BucketStorage[Component])(nil)
