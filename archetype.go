package ecstore

import "math/bits"

const maskWords = MaxComponents / 64

// Archetype is a set of component types, identifying one storage lane.
// It is a value type and can be used as a map key.
type Archetype struct {
	mask [maskWords]uint64
}

// NewArchetype returns the set of the given component IDs.
func NewArchetype(ids ...ComponentID) Archetype {
	var a Archetype
	for _, id := range ids {
		a.mask[id/64] |= 1 << (id % 64)
	}
	return a
}

// Contains reports whether the set includes id.
func (a Archetype) Contains(id ComponentID) bool {
	return a.mask[id/64]&(1<<(id%64)) != 0
}

// With returns the union of the set and the given IDs.
func (a Archetype) With(ids ...ComponentID) Archetype {
	for _, id := range ids {
		a.mask[id/64] |= 1 << (id % 64)
	}
	return a
}

// Union returns the set union of a and b.
func (a Archetype) Union(b Archetype) Archetype {
	var u Archetype
	for i := range a.mask {
		u.mask[i] = a.mask[i] | b.mask[i]
	}
	return u
}

// IsSubsetOf reports whether every component of a is in b.
func (a Archetype) IsSubsetOf(b Archetype) bool {
	for i := range a.mask {
		if a.mask[i]&^b.mask[i] != 0 {
			return false
		}
	}
	return true
}

// AnyIn reports whether a and b share at least one component.
func (a Archetype) AnyIn(b Archetype) bool {
	for i := range a.mask {
		if a.mask[i]&b.mask[i] != 0 {
			return true
		}
	}
	return false
}

// MeetsAnyCriterion reports whether at least one clause is fully
// contained in the set. An empty clause list is trivially met.
func (a Archetype) MeetsAnyCriterion(clauses []Archetype) bool {
	if len(clauses) == 0 {
		return true
	}
	for _, c := range clauses {
		if c.IsSubsetOf(a) {
			return true
		}
	}
	return false
}

// Empty reports whether the set has no components.
func (a Archetype) Empty() bool {
	for _, w := range a.mask {
		if w != 0 {
			return false
		}
	}
	return true
}

// Len returns the number of components in the set.
func (a Archetype) Len() int {
	n := 0
	for _, w := range a.mask {
		n += bits.OnesCount64(w)
	}
	return n
}

// Components returns the set's IDs in ascending order.
func (a Archetype) Components() []ComponentID {
	ids := make([]ComponentID, 0, a.Len())
	for w, word := range a.mask {
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			ids = append(ids, ComponentID(w*64+bit))
			word &= word - 1
		}
	}
	return ids
}
