package lattice

import (
	"reflect"
	"slices"

	"github.com/rotisserie/eris"
)

// accessProfile summarizes a system's declared access for the parallel
// conflict check.
type accessProfile struct {
	reads      Mask
	writes     Mask
	structural Mask
	resReads   []int
	resWrites  []int
	builds     bool
	destroys   bool
}

// systemEntry is the world's record of one registered system.
type systemEntry struct {
	name         string
	subscription Mask
	followed     followedSet
	active       bool
	run          func() error
	drains       []func(*World)
	access       accessProfile
}

// systemConfig holds the configurable options for system registration.
type systemConfig struct {
	subscriptions []Component
}

// SystemOption configures a system at registration.
type SystemOption func(*systemConfig)

// WithSubscriptions overrides the default subscription mask (the union
// of the system's Read and Write component fields) with exactly the
// given components.
func WithSubscriptions(components ...Component) SystemOption {
	return func(cfg *systemConfig) { cfg.subscriptions = components }
}

// RegisterSystem registers fn under name. S is the system's state
// struct; every field must be exported and of a capability type (Read, Write,
// Attach, Detach, Builder, Destroyer, ReadResource, WriteResource,
// FollowedEntities). Component types referenced by fields are registered
// automatically. The system's followed set is seeded from entities that
// are already live.
func RegisterSystem[S any](w *World, name string, fn func(*S) error, opts ...SystemOption) error {
	if name == "" {
		return eris.New("system name cannot be empty")
	}
	if _, exists := w.systemIndex[name]; exists {
		return eris.Errorf("system %s is already registered", name)
	}

	cfg := systemConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	state := new(S)
	entry := &systemEntry{
		name:         name,
		subscription: NewMask(),
		active:       true,
		run:          func() error { return fn(state) },
	}

	value := reflect.ValueOf(state).Elem()
	if value.Kind() != reflect.Struct {
		return eris.Errorf("system %s state must be a struct, got %s", name, value.Kind())
	}

	fields := make([]stateField, 0, value.NumField())
	for i := range value.NumField() {
		field := value.Field(i)
		fieldType := value.Type().Field(i)

		if !fieldType.IsExported() {
			return eris.Errorf("system %s: field %s must be exported", name, fieldType.Name)
		}

		sf, ok := field.Addr().Interface().(stateField)
		if !ok {
			return eris.Errorf("system %s: field %s is not a capability type", name, fieldType.Name)
		}

		info, err := sf.initField(w)
		if err != nil {
			return eris.Wrapf(err, "system %s: failed to initialize field %s", name, fieldType.Name)
		}

		for _, c := range info.subscribe {
			entry.subscription.Set(c)
		}
		for _, c := range info.reads {
			entry.access.reads.Set(c)
		}
		for _, c := range info.writes {
			entry.access.writes.Set(c)
		}
		for _, c := range info.structural {
			entry.access.structural.Set(c)
		}
		entry.access.resReads = append(entry.access.resReads, info.resReads...)
		entry.access.resWrites = append(entry.access.resWrites, info.resWrites...)
		entry.access.builds = entry.access.builds || info.builds
		entry.access.destroys = entry.access.destroys || info.destroys
		if info.drain != nil {
			entry.drains = append(entry.drains, info.drain)
		}

		fields = append(fields, sf)
	}

	if cfg.subscriptions != nil {
		sub, err := w.maskFor(cfg.subscriptions)
		if err != nil {
			return eris.Wrapf(err, "system %s: invalid subscription override", name)
		}
		entry.subscription = sub
	}

	// Seed the followed set from entities that already exist.
	entry.followed = w.matchingEntities(entry.subscription)

	for _, sf := range fields {
		if binder, ok := sf.(followedBinder); ok {
			binder.bind(&entry.followed)
		}
	}

	w.systemIndex[name] = len(w.systems)
	w.systems = append(w.systems, entry)

	w.log.Debug().
		Str("system", name).
		Int("followed", entry.followed.len()).
		Msg("registered system")
	return nil
}

// maskFor resolves component values to a mask over their registered
// indices.
func (w *World) maskFor(components []Component) (Mask, error) {
	m := NewMask()
	for _, c := range components {
		id, ok := w.components.id(c.Name())
		if !ok {
			return Mask{}, eris.Errorf("component %s is not registered", c.Name())
		}
		m.Set(id)
	}
	return m, nil
}

// matchingEntities collects the live entities whose mask covers sub,
// sorted ascending.
func (w *World) matchingEntities(sub Mask) followedSet {
	var set followedSet
	w.masks.Range(func(id EntityID, mask *Mask) bool {
		if sub.SubsetOf(*mask) {
			set.entities = append(set.entities, id)
		}
		return true
	})
	slices.Sort(set.entities)
	return set
}

// masksIntersect reports whether two masks share any set bit.
func masksIntersect(a, b Mask) bool {
	n := min(len(a.bits), len(b.bits))
	for i := 0; i < n; i++ {
		if a.bits[i]&b.bits[i] != 0 {
			return true
		}
	}
	return false
}

func slicesIntersect(a, b []int) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}
