package lattice

import (
	"github.com/lattice-engine/lattice/internal/assert"
)

// SparseStorage stores components in an EntityMap. It is the default
// storage: right for small components accessed randomly by entity ID.
type SparseStorage[T Component] struct {
	entries *EntityMap[T]
}

func newSparseStorage[T Component](cfg Config) *SparseStorage[T] {
	return &SparseStorage[T]{entries: newEntityMapLoad[T](cfg.MapCapacity, cfg.LoadFactor)}
}

// Has reports whether id carries the component.
func (s *SparseStorage[T]) Has(id EntityID) bool {
	_, ok := s.entries.Lookup(id)
	return ok
}

// Get returns the component for id, failing fatally if absent.
func (s *SparseStorage[T]) Get(id EntityID) *T {
	v, ok := s.entries.Lookup(id)
	assert.That(ok, "%s: entity %d does not have the component", s.componentName(), id)
	return v
}

// GetIf returns the component for id if present.
func (s *SparseStorage[T]) GetIf(id EntityID) (*T, bool) {
	return s.entries.Lookup(id)
}

// Attach stores a component for id, failing fatally if one is already
// present.
func (s *SparseStorage[T]) Attach(id EntityID, component T) *T {
	_, exists := s.entries.Lookup(id)
	assert.That(!exists, "%s: entity %d already has the component", s.componentName(), id)
	return s.entries.Insert(id, component)
}

// Detach removes the component for id, failing fatally if absent.
func (s *SparseStorage[T]) Detach(id EntityID) {
	removed := s.entries.Remove(id)
	assert.That(removed, "%s: entity %d does not have the component", s.componentName(), id)
}

func (s *SparseStorage[T]) componentName() string {
	var zero T
	return zero.Name()
}

func (s *SparseStorage[T]) hasEntity(id EntityID) bool { return s.Has(id) }
func (s *SparseStorage[T]) detachEntity(id EntityID)   { s.Detach(id) }
func (s *SparseStorage[T]) size() int                  { return s.entries.Len() }

var _ Store[Component] = (*SparseStorage[Component])(nil)
var _ store = (*SparseStorage[Component])(nil)
