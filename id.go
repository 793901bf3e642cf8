package ecstore

import "github.com/neketka/ecstore/internal/parstore"

// ID is a stable external entity identifier.
//
// Layout: bit 63 is the tag bit (always set for valid IDs), bits 62..24
// carry the owning store's archetype prefix, bits 23..0 the slot id.
// IDs are opaque to callers except that equal prefixes identify the
// same archetype.
type ID uint64

// Valid reports whether the tag bit is set.
func (id ID) Valid() bool {
	return uint64(id)&parstore.TagBit != 0
}

// Prefix returns the archetype prefix bits.
func (id ID) Prefix() uint64 {
	return (uint64(id) >> parstore.SlotBits) & parstore.PrefixMask
}

// Slot returns the 24-bit slot id.
func (id ID) Slot() uint64 {
	return uint64(id) & parstore.SlotMask
}
