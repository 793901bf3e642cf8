package ecstore

import (
	"errors"
	"fmt"

	"github.com/neketka/ecstore/internal/column"
)

var (
	// ErrCapacityExhausted is returned when a create would exceed a
	// store's dense-slot capacity.
	ErrCapacityExhausted = column.ErrCapacityExhausted
	// ErrStorageClosed is returned by operations on a closed Storage.
	ErrStorageClosed = errors.New("ecstore: storage closed")
	// ErrTooManyComponents is returned when the component registry is full.
	ErrTooManyComponents = errors.New("ecstore: too many component types")
	// ErrTooManyArchetypes is returned when the 39-bit prefix space is
	// exhausted.
	ErrTooManyArchetypes = errors.New("ecstore: archetype prefix space exhausted")
	// ErrUnregisteredComponent is returned when an archetype references
	// a component ID that was never registered.
	ErrUnregisteredComponent = errors.New("ecstore: unregistered component")
)

// ErrInvalidComponent indicates a component type that cannot be stored
// in pool-backed columns.
type ErrInvalidComponent struct {
	Type   string
	Reason string
}

func (e *ErrInvalidComponent) Error() string {
	return fmt.Sprintf("ecstore: invalid component %s: %s", e.Type, e.Reason)
}
