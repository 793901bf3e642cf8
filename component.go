package ecstore

import (
	"reflect"
	"sync"

	"github.com/neketka/ecstore/internal/parstore"
	"github.com/neketka/ecstore/internal/pool"
)

// ComponentID identifies a registered component type within one
// Storage.
type ComponentID uint16

// MaxComponents is the registry capacity of a Storage.
const MaxComponents = 256

type componentInfo struct {
	id        ComponentID
	typ       reflect.Type
	newColumn func(p *pool.Pool) parstore.Column
}

type registry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*componentInfo
	infos  []*componentInfo
}

func newRegistry() *registry {
	return &registry{
		byType: make(map[reflect.Type]*componentInfo),
	}
}

func (r *registry) lookupType(typ reflect.Type) (ComponentID, bool) {
	r.mu.RLock()
	info, ok := r.byType[typ]
	r.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return info.id, true
}

func (r *registry) info(id ComponentID) (*componentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.infos) {
		return nil, false
	}
	return r.infos[id], true
}

// Register registers T as a component type of st, returning its ID.
// Registration is idempotent per type. T must be pointer-free (its
// data lives off the Go heap), at least one word wide and at most one
// block wide.
func Register[T any](st *Storage) (ComponentID, error) {
	var zero T
	typ := reflect.TypeOf(zero)

	if typ == nil {
		return 0, &ErrInvalidComponent{Type: "interface{}", Reason: "interface types cannot be stored"}
	}
	if size := typ.Size(); size < 8 {
		return 0, &ErrInvalidComponent{Type: typ.String(), Reason: "smaller than one word"}
	} else if size > pool.BlockSize {
		return 0, &ErrInvalidComponent{Type: typ.String(), Reason: "larger than one block"}
	}
	if hasPointers(typ) {
		return 0, &ErrInvalidComponent{Type: typ.String(), Reason: "contains pointers"}
	}

	r := st.reg
	r.mu.Lock()
	defer r.mu.Unlock()

	if info, ok := r.byType[typ]; ok {
		return info.id, nil
	}
	if len(r.infos) >= MaxComponents {
		return 0, ErrTooManyComponents
	}

	info := &componentInfo{
		id:  ComponentID(len(r.infos)),
		typ: typ,
		newColumn: func(p *pool.Pool) parstore.Column {
			return parstore.NewColumn[T](p)
		},
	}
	r.byType[typ] = info
	r.infos = append(r.infos, info)
	return info.id, nil
}

// hasPointers reports whether values of typ contain pointers the
// garbage collector would need to see.
func hasPointers(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return hasPointers(typ.Elem())
	case reflect.Struct:
		for i := 0; i < typ.NumField(); i++ {
			if hasPointers(typ.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
