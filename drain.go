package lattice

import (
	"slices"

	"github.com/lattice-engine/lattice/internal/assert"
)

// The post-processor. Each drain step reconciles one structural queue
// with the entity mask table and the followed sets. Steps run after a
// system finishes (or after a parallel group joins), in the order of the
// owning system's capability fields; a step with an empty queue is a
// no-op, so back-to-back drains are idempotent.

// drainSystem runs the drain steps for the capabilities sys declared.
func (w *World) drainSystem(sys *systemEntry) {
	for _, step := range sys.drains {
		step(w)
	}
}

// drainCreations moves pending entities into the live world: each gets
// its accumulated mask in the mask table, and every system whose
// subscription the mask covers starts following it. Creation ids are
// monotonic, so a batch usually lands at the tail of each followed set;
// when batches of different masks interleave, mergeInsert merges instead.
func (w *World) drainCreations() {
	batches := w.buffers.groupPendingByMask()
	if batches == nil {
		return
	}

	created := 0
	for _, batch := range batches {
		for _, id := range batch.ids {
			_, exists := w.masks.Lookup(id)
			assert.That(!exists, "entity %d already live during creation drain", id)
			// Each entity owns its mask: the batch mask is shared state.
			w.masks.Insert(id, batch.mask.Clone())
		}
		for _, sys := range w.systems {
			if sys.subscription.SubsetOf(batch.mask) {
				sys.followed.mergeInsert(batch.ids)
			}
		}
		created += len(batch.ids)
	}

	w.buffers.pending = w.buffers.pending[:0]
	w.log.Debug().Int("entities", created).Msg("creation drain")
}

// drainDestroyed removes every entity on death row: its mask entry goes
// away, every storage holding one of its components detaches it, and
// every system following it stops. Destroyed ids are grouped by mask so
// followed sets are pruned with one set-difference per group.
func (w *World) drainDestroyed() {
	if len(w.buffers.deathRow) == 0 {
		return
	}

	row := w.buffers.deathRow
	slices.Sort(row)
	row = slices.Compact(row)

	batches := make([]newBatch, 0, 1)
	index := make(map[string]int, 1)
	for _, id := range row {
		maskPtr, ok := w.masks.Lookup(id)
		assert.That(ok, "destroyed entity %d is not live", id)
		mask := maskPtr.Clone()
		w.masks.Remove(id)

		mask.Range(func(j int) {
			w.components.storages[j].detachEntity(id)
		})

		key := mask.Key()
		at, ok := index[key]
		if !ok {
			at = len(batches)
			index[key] = at
			batches = append(batches, newBatch{mask: mask})
		}
		batches[at].ids = append(batches[at].ids, id)
	}

	for _, sys := range w.systems {
		for _, batch := range batches {
			if sys.subscription.SubsetOf(batch.mask) {
				sys.followed.differenceRemove(batch.ids)
			}
		}
	}

	w.buffers.deathRow = w.buffers.deathRow[:0]
	w.log.Debug().Int("entities", len(row)).Msg("destruction drain")
}

// drainAttached flips bit j on for every entity queued in attached[j],
// then offers the batch to each system subscribed to j: the entities
// whose full mask now covers the subscription are merge-inserted.
func (w *World) drainAttached(j componentID) {
	if j >= len(w.buffers.attached) {
		return
	}
	ids := w.buffers.attached[j]
	if len(ids) == 0 {
		return
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	for _, id := range ids {
		w.masks.Index(id).Set(j)
	}

	var matched []EntityID
	for _, sys := range w.systems {
		if !sys.subscription.Test(j) {
			continue
		}
		matched = matched[:0]
		for _, id := range ids {
			if sys.subscription.SubsetOf(*w.masks.Index(id)) {
				matched = append(matched, id)
			}
		}
		sys.followed.mergeInsert(matched)
	}

	w.buffers.attached[j] = w.buffers.attached[j][:0]
}

// drainDetached flips bit j off for every entity queued in detached[j]
// and removes the batch from every system subscribed to j. Entities that
// were never followed fall out of the set-difference untouched.
func (w *World) drainDetached(j componentID) {
	if j >= len(w.buffers.detached) {
		return
	}
	ids := w.buffers.detached[j]
	if len(ids) == 0 {
		return
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	for _, id := range ids {
		w.masks.Index(id).Unset(j)
	}

	for _, sys := range w.systems {
		if sys.subscription.Test(j) {
			sys.followed.differenceRemove(ids)
		}
	}

	w.buffers.detached[j] = w.buffers.detached[j][:0]
}
