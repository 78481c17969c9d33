package lattice

import (
	"iter"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/lattice-engine/lattice/internal/assert"
)

// followedSet is a sorted, duplicate-free array of entity IDs: the set of
// live entities a system's subscription currently matches. Because IDs
// are handed out monotonically, creations append at the tail; everything
// else is a linear merge or difference.
type followedSet struct {
	entities []EntityID
}

func (f *followedSet) len() int { return len(f.entities) }

// appendNewest bulk-copies ids to the tail. Every id must be strictly
// greater than the current last element and ids must be ascending.
func (f *followedSet) appendNewest(ids []EntityID) {
	if len(ids) == 0 {
		return
	}
	assert.That(len(f.entities) == 0 || ids[0] > f.entities[len(f.entities)-1],
		"appendNewest requires ids newer than every followed entity")
	f.entities = append(f.entities, ids...)
}

// mergeInsert merges sorted ids into the set and drops duplicates.
func (f *followedSet) mergeInsert(ids []EntityID) {
	if len(ids) == 0 {
		return
	}

	// Fast path: the batch is strictly newer than everything held.
	if len(f.entities) == 0 || ids[0] > f.entities[len(f.entities)-1] {
		f.entities = append(f.entities, ids...)
		return
	}

	// Merge from the back around the old end so the pass is in place
	// apart from a copy of the incoming batch.
	old := len(f.entities)
	batch := make([]EntityID, len(ids))
	copy(batch, ids)
	f.entities = append(f.entities, ids...)

	i, j, k := old-1, len(batch)-1, len(f.entities)-1
	for j >= 0 {
		if i >= 0 && f.entities[i] > batch[j] {
			f.entities[k] = f.entities[i]
			i--
		} else {
			f.entities[k] = batch[j]
			j--
		}
		k--
	}

	f.entities = slices.Compact(f.entities)
}

// differenceRemove removes every id in remove from the set. Both sides
// sorted; one linear pass with a write cursor.
func (f *followedSet) differenceRemove(remove []EntityID) {
	if len(remove) == 0 || len(f.entities) == 0 {
		return
	}

	// Skip ahead to the first element that could be removed.
	w, _ := slices.BinarySearch(f.entities, remove[0])
	r, j := w, 0

	for r < len(f.entities) && j < len(remove) {
		switch {
		case f.entities[r] < remove[j]:
			f.entities[w] = f.entities[r]
			w++
			r++
		case remove[j] < f.entities[r]:
			j++
		default:
			r++
			j++
		}
	}
	for r < len(f.entities) {
		f.entities[w] = f.entities[r]
		w++
		r++
	}
	f.entities = f.entities[:w]
}

func (f *followedSet) contains(id EntityID) bool {
	_, ok := slices.BinarySearch(f.entities, id)
	return ok
}

// split divides the set into n contiguous sub-ranges covering it exactly
// once. The first len%n ranges hold one extra element.
func (f *followedSet) split(n int) [][]EntityID {
	assert.That(n > 0, "split requires a positive range count, got %d", n)

	size := len(f.entities)
	base := size / n
	extra := size % n

	ranges := make([][]EntityID, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		length := base
		if i < extra {
			length++
		}
		ranges = append(ranges, f.entities[start:start+length])
		start += length
	}
	return ranges
}

// FollowedEntities is the read-only view of a system's followed set
// handed to its run function. The set does not change while the system
// runs; structural changes made during the run become visible after the
// next drain.
type FollowedEntities struct {
	set     *followedSet
	workers int
}

// Len returns the number of followed entities.
func (f FollowedEntities) Len() int { return f.set.len() }

// Contains reports whether id is currently followed.
func (f FollowedEntities) Contains(id EntityID) bool { return f.set.contains(id) }

// Iter yields the followed entities in ascending id order.
func (f FollowedEntities) Iter() iter.Seq[EntityID] {
	return func(yield func(EntityID) bool) {
		for _, id := range f.set.entities {
			if !yield(id) {
				return
			}
		}
	}
}

// Split returns n contiguous sub-ranges whose concatenation is the whole
// set in order, with sizes differing by at most one.
func (f FollowedEntities) Split(n int) [][]EntityID {
	return f.set.split(n)
}

// ForEach applies fn to every followed entity in ascending order.
func (f FollowedEntities) ForEach(fn func(EntityID)) {
	for _, id := range f.set.entities {
		fn(id)
	}
}

// ForEachPar applies fn to every followed entity exactly once, splitting
// the set into one contiguous range per worker and running the ranges
// concurrently. fn must be safe to call concurrently for distinct
// entities; the call blocks until all ranges finish.
func (f FollowedEntities) ForEachPar(fn func(EntityID)) {
	workers := f.workers
	if workers <= 1 || f.set.len() < workers {
		f.ForEach(fn)
		return
	}

	var g errgroup.Group
	for _, span := range f.set.split(workers) {
		if len(span) == 0 {
			continue
		}
		g.Go(func() error {
			for _, id := range span {
				fn(id)
			}
			return nil
		})
	}
	// Workers cannot fail; the group is only used for the join.
	_ = g.Wait()
}
