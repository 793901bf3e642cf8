// Package parstore binds several component columns into one archetype
// store: an ID column, one column per component, a deleted-slot
// bitset, and the external-ID map.
//
// # External Identity
//
// Every entity gets a 64-bit external ID: high tag bit set, a 39-bit
// archetype prefix, and a 24-bit slot id. The slot id indexes the id
// map, which holds the entity's current dense index. Dense indices move
// during compaction; the id map is the single source of truth.
//
// # View Protocol
//
// All iteration happens through refcounted views. View construction
// takes the view gate shared; when the last view is released the
// releaser takes the gate exclusively, re-checks that the refcount is
// still zero (a racing acquirer may have slipped in before the gate
// closed), and only then compacts. Compaction therefore runs only when
// the live-view set is provably empty, so moving entities between
// dense slots can never invalidate a reader.
//
// # Compaction
//
// The cleanup pass drains every column's reclaim queue, then walks the
// deleted bitset left-to-right with a consuming iterator while a right
// cursor walks inward over live slots. Each deleted slot receives the
// rightmost live entity; the dead slot's external ID is stamped into
// the vacated slot, keeping a perfect bijection between unused dense
// slots and unused external IDs across generations.
package parstore
