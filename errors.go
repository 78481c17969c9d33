package lattice

import "github.com/rotisserie/eris"

var (
	// ErrResourceMissing is returned by World.Init when a registered
	// resource slot was left unfilled by the initializer.
	ErrResourceMissing = eris.New("resource slot not initialized")

	// ErrUnknownSystem is returned when a dispatch call names a system
	// that was never registered.
	ErrUnknownSystem = eris.New("system is not registered")

	// ErrConflictingGroup is returned by RunParallel when two systems in
	// the group declare overlapping write or structural access to the
	// same component.
	ErrConflictingGroup = eris.New("parallel group declares conflicting access")
)
