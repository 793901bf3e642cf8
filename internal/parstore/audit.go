package parstore

import (
	"fmt"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Audit verifies the store's identity invariants: every live slot
// carries this store's prefix, maps back to itself through the id map,
// and no external ID appears twice. It also cross-checks the deleted
// bitset's one-count. The caller must hold a view (or otherwise
// guarantee no concurrent compaction) for the duration.
func (s *Store) Audit() error {
	n := s.curCount.Load()
	live := roaring64.New()
	dead := uint64(0)

	for idx := uint64(0); idx < n; idx++ {
		if s.deleted.Get(idx) {
			dead++
			continue
		}

		id := *s.ids.PtrAt(idx)
		if !s.Owns(id) {
			return fmt.Errorf("parstore: slot %d holds foreign id %#x (prefix %#x)", idx, id, s.Prefix())
		}
		if live.Contains(id) {
			return fmt.Errorf("parstore: duplicate live id %#x at slot %d", id, idx)
		}
		live.Add(id)

		slot := id & SlotMask
		if slot >= s.idMapSize.Load() {
			return fmt.Errorf("parstore: id %#x slot %d beyond id-map watermark %d", id, slot, s.idMapSize.Load())
		}
		if mapped := atomic.LoadUint64(s.idMap.PtrAt(slot)); mapped != idx {
			return fmt.Errorf("parstore: id %#x maps to %d, stored at %d", id, mapped, idx)
		}
	}

	if ones := s.deleted.OneCount(); ones != dead {
		return fmt.Errorf("parstore: deleted one-count %d, counted %d set bits in [0, %d)", ones, dead, n)
	}

	return nil
}

// LiveIDs returns the set of live external IDs as a bitmap snapshot.
// Same precondition as Audit.
func (s *Store) LiveIDs() *roaring64.Bitmap {
	n := s.curCount.Load()
	live := roaring64.New()
	for idx := uint64(0); idx < n; idx++ {
		if !s.deleted.Get(idx) {
			live.Add(*s.ids.PtrAt(idx))
		}
	}
	return live
}
