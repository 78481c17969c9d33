package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Heat struct {
	Value float64
}

func (Heat) Name() string { return "heat" }

type Charge struct {
	Value float64
}

func (Charge) Name() string { return "charge" }

type Rate struct {
	Value float64
}

type heatState struct {
	Entities FollowedEntities
	Heat     Write[Heat]
	Rate     ReadResource[Rate]
}

type chargeState struct {
	Entities FollowedEntities
	Charge   Write[Charge]
	Rate     ReadResource[Rate]
}

func heatSystem(state *heatState) error {
	rate := state.Rate.Get().Value
	for id := range state.Entities.Iter() {
		state.Heat.Get(id).Value += rate
	}
	return nil
}

func chargeSystem(state *chargeState) error {
	rate := state.Rate.Get().Value
	for id := range state.Entities.Iter() {
		state.Charge.Get(id).Value += 2 * rate
	}
	return nil
}

func setupParallelWorld(t *testing.T, entities int) *World {
	t.Helper()

	w := NewWorld(WithWorkers(4))
	RegisterResource[Rate](w)
	require.NoError(t, RegisterSystem(w, "heat", heatSystem))
	require.NoError(t, RegisterSystem(w, "charge", chargeSystem))
	require.NoError(t, w.Init(func(r *Resources) {
		ConstructResource(r, Rate{Value: 0.5})
	}))

	w.BuildEntities(func(b Builder) {
		for i := 0; i < entities; i++ {
			sk := b.NewEntity()
			WithComponent(sk, Heat{})
			WithComponent(sk, Charge{})
		}
	})
	return w
}

// Two systems sharing a read-only resource but writing distinct
// components must produce the same result in parallel as in either
// sequential order.
func TestRunParallel_EquivalentToSequential(t *testing.T) {
	t.Parallel()

	const entities = 2000
	const rounds = 50

	parallel := setupParallelWorld(t, entities)
	forward := setupParallelWorld(t, entities)
	backward := setupParallelWorld(t, entities)

	for i := 0; i < rounds; i++ {
		require.NoError(t, parallel.RunParallel("heat", "charge"))
		require.NoError(t, forward.RunSequential("heat", "charge"))
		require.NoError(t, backward.RunSequential("charge", "heat"))
	}

	snapshot := func(w *World) (heats, charges []float64) {
		_, heatStore := storageOf[Heat](w)
		_, chargeStore := storageOf[Charge](w)
		w.masks.Range(func(id EntityID, _ *Mask) bool {
			heats = append(heats, heatStore.Get(id).Value)
			charges = append(charges, chargeStore.Get(id).Value)
			return true
		})
		return heats, charges
	}

	ph, pc := snapshot(parallel)
	fh, fc := snapshot(forward)
	bh, bc := snapshot(backward)

	assert.Equal(t, fh, ph)
	assert.Equal(t, fc, pc)
	assert.Equal(t, bh, ph)
	assert.Equal(t, bc, pc)

	for _, v := range ph {
		assert.Equal(t, float64(rounds)*0.5, v)
	}
	for _, v := range pc {
		assert.Equal(t, float64(rounds), v)
	}
}

func TestRunParallel_ConflictDetection(t *testing.T) {
	t.Parallel()

	type heatWriter struct {
		Heat Write[Heat]
	}
	type heatReader struct {
		Heat Read[Heat]
	}
	type heatAttacher struct {
		Heat Attach[Heat]
	}
	type maker struct {
		Builder Builder
	}
	type reaper struct {
		Reaper Destroyer
	}
	type rateWriter struct {
		Rate WriteResource[Rate]
	}
	type rateReader struct {
		Rate ReadResource[Rate]
	}

	tests := []struct {
		name     string
		register func(w *World) error
		group    []string
		conflict bool
	}{
		{
			name: "two writers of the same component",
			register: func(w *World) error {
				if err := RegisterSystem(w, "a", func(*heatWriter) error { return nil }); err != nil {
					return err
				}
				return RegisterSystem(w, "b", func(*heatWriter) error { return nil })
			},
			group:    []string{"a", "b"},
			conflict: true,
		},
		{
			name: "writer plus reader of the same component",
			register: func(w *World) error {
				if err := RegisterSystem(w, "a", func(*heatWriter) error { return nil }); err != nil {
					return err
				}
				return RegisterSystem(w, "b", func(*heatReader) error { return nil })
			},
			group:    []string{"a", "b"},
			conflict: true,
		},
		{
			name: "structural capability plus reader of the same component",
			register: func(w *World) error {
				if err := RegisterSystem(w, "a", func(*heatAttacher) error { return nil }); err != nil {
					return err
				}
				return RegisterSystem(w, "b", func(*heatReader) error { return nil })
			},
			group:    []string{"a", "b"},
			conflict: true,
		},
		{
			name: "two builders",
			register: func(w *World) error {
				if err := RegisterSystem(w, "a", func(*maker) error { return nil }); err != nil {
					return err
				}
				return RegisterSystem(w, "b", func(*maker) error { return nil })
			},
			group:    []string{"a", "b"},
			conflict: true,
		},
		{
			name: "two destroyers",
			register: func(w *World) error {
				if err := RegisterSystem(w, "a", func(*reaper) error { return nil }); err != nil {
					return err
				}
				return RegisterSystem(w, "b", func(*reaper) error { return nil })
			},
			group:    []string{"a", "b"},
			conflict: true,
		},
		{
			name: "resource writer plus resource reader",
			register: func(w *World) error {
				if err := RegisterSystem(w, "a", func(*rateWriter) error { return nil }); err != nil {
					return err
				}
				return RegisterSystem(w, "b", func(*rateReader) error { return nil })
			},
			group:    []string{"a", "b"},
			conflict: true,
		},
		{
			name: "disjoint writers",
			register: func(w *World) error {
				if err := RegisterSystem(w, "a", func(*heatWriter) error { return nil }); err != nil {
					return err
				}
				type chargeWriter struct {
					Charge Write[Charge]
				}
				return RegisterSystem(w, "b", func(*chargeWriter) error { return nil })
			},
			group:    []string{"a", "b"},
			conflict: false,
		},
		{
			name: "shared readers",
			register: func(w *World) error {
				if err := RegisterSystem(w, "a", func(*heatReader) error { return nil }); err != nil {
					return err
				}
				return RegisterSystem(w, "b", func(*heatReader) error { return nil })
			},
			group:    []string{"a", "b"},
			conflict: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := NewWorld()
			RegisterResource[Rate](w)
			require.NoError(t, tt.register(w))
			require.NoError(t, w.Init(func(r *Resources) {
				ConstructResource(r, Rate{Value: 1})
			}))

			err := w.RunParallel(tt.group...)
			if tt.conflict {
				require.ErrorIs(t, err, ErrConflictingGroup)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRunSequential_UnknownSystem(t *testing.T) {
	t.Parallel()

	w := NewWorld()
	assert.ErrorIs(t, w.RunSequential("ghost"), ErrUnknownSystem)
	assert.ErrorIs(t, w.RunParallel("ghost"), ErrUnknownSystem)
}

func TestRunSequential_SystemErrorStopsDispatch(t *testing.T) {
	t.Parallel()

	w := NewWorld()
	type emptyState struct{}
	ran := false
	require.NoError(t, RegisterSystem(w, "boom", func(*emptyState) error {
		return assert.AnError
	}))
	require.NoError(t, RegisterSystem(w, "after", func(*emptyState) error {
		ran = true
		return nil
	}))

	err := w.RunSequential("boom", "after")
	require.Error(t, err)
	assert.False(t, ran, "dispatch must stop at the failing system")
}

// Structural changes made inside a parallel group become visible only
// after the group's join and drain.
func TestRunParallel_DrainsAfterJoin(t *testing.T) {
	t.Parallel()

	w := NewWorld(WithWorkers(2))

	type observer struct {
		Entities FollowedEntities
		Heat     Read[Heat]
	}
	observedDuring := -1
	require.NoError(t, RegisterSystem(w, "observer", func(s *observer) error {
		observedDuring = s.Entities.Len()
		return nil
	}))

	type spawner struct {
		Builder Builder
	}
	require.NoError(t, RegisterSystem(w, "spawner", func(s *spawner) error {
		WithComponent(s.Builder.NewEntity(), Heat{Value: 1})
		return nil
	}))

	require.NoError(t, w.RunParallel("observer", "spawner"))

	assert.Equal(t, 0, observedDuring, "observer must see the pre-group snapshot")
	followed, err := w.FollowedCount("observer")
	require.NoError(t, err)
	assert.Equal(t, 1, followed, "drain after join makes the entity visible")
}
