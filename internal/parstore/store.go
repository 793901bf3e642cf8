package parstore

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/neketka/ecstore/internal/bitset"
	"github.com/neketka/ecstore/internal/column"
	"github.com/neketka/ecstore/internal/pool"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// SlotBits is the width of the slot-id field of an external ID.
	SlotBits = 24
	// SlotMask extracts the slot id from an external ID.
	SlotMask = (1 << SlotBits) - 1
	// PrefixBits is the width of the archetype prefix field.
	PrefixBits = 39
	// PrefixMask extracts the (unshifted) archetype prefix.
	PrefixMask = (1 << PrefixBits) - 1
	// TagBit marks a value as an external ID.
	TagBit = uint64(1) << 63
)

// Observer receives store lifecycle notifications. All methods may be
// called concurrently.
type Observer interface {
	// CompactionDone fires after an exclusive cleanup pass.
	CompactionDone(live, removed uint64, elapsed time.Duration)
}

// Store aggregates an ID column, one column per component, the
// deleted-slot bitset and the external-ID map for a single archetype.
type Store struct {
	pool *pool.Pool

	// prefix is the fully shifted high part of every external ID
	// issued by this store: TagBit | archPrefix<<SlotBits.
	prefix uint64

	ids   *column.Store[uint64]
	idMap *column.Store[uint64]
	cols  []Column

	deleted *bitset.Bitset

	curCount  atomic.Uint64
	idMapSize atomic.Uint64

	viewRefs atomic.Int64
	gate     *xsync.RBMutex

	maxElems uint64
	observer Observer
}

// New creates a store for the given component columns. archPrefix must
// fit in 39 bits and be unique across stores sharing an ID space.
func New(p *pool.Pool, archPrefix uint64, cols []Column) *Store {
	s := &Store{
		pool:   p,
		prefix: TagBit | (archPrefix&PrefixMask)<<SlotBits,
		cols:   cols,
		gate:   xsync.NewRBMutex(),
	}

	s.ids = column.New[uint64](p, func(base uint64, elems []uint64) {
		for i := range elems {
			elems[i] = s.prefix | (base + uint64(i))
		}
	})
	s.idMap = column.New[uint64](p, nil)

	s.maxElems = uint64(SlotMask) + 1
	if m := s.ids.Max(); m < s.maxElems {
		s.maxElems = m
	}
	for _, c := range cols {
		if m := c.Max(); m < s.maxElems {
			s.maxElems = m
		}
	}

	s.deleted = bitset.New(p, s.maxElems)
	return s
}

// SetObserver installs a lifecycle observer. Call before first use.
func (s *Store) SetObserver(o Observer) {
	s.observer = o
}

// Prefix returns the archetype prefix baked into this store's IDs.
func (s *Store) Prefix() uint64 {
	return (s.prefix >> SlotBits) & PrefixMask
}

// Owns reports whether id carries this store's prefix and tag.
func (s *Store) Owns(id uint64) bool {
	return id&^uint64(SlotMask) == s.prefix
}

// CurCount returns the dense-slot watermark.
func (s *Store) CurCount() uint64 {
	return s.curCount.Load()
}

// LiveCount returns the number of live (non-deleted) entities.
func (s *Store) LiveCount() uint64 {
	n := s.curCount.Load()
	dead := s.deleted.OneCount()
	if dead > n {
		return 0
	}
	return n - dead
}

// MaxElems returns the store's dense-slot capacity.
func (s *Store) MaxElems() uint64 {
	return s.maxElems
}

// ref registers a new view under the gate's shared side.
func (s *Store) ref() {
	t := s.gate.RLock()
	s.viewRefs.Add(1)
	s.gate.RUnlock(t)
}

// unref drops a view reference. The goroutine that observes the count
// hit zero closes the gate and, if the count is still zero inside the
// exclusive section, runs the cleanup pass.
func (s *Store) unref() {
	if s.viewRefs.Add(-1) != 0 {
		return
	}
	s.gate.Lock()
	if s.viewRefs.Load() == 0 {
		s.exclusiveCleanup()
	}
	s.gate.Unlock()
}

// Emplace reserves count dense slots, materializes every column over
// the new range, stamps id-map entries and returns a view over the
// range. The ID column assigns fresh IDs to slots it has never touched
// and leaves recycled IDs (stamped by a previous compaction) in place.
func (s *Store) Emplace(ctx context.Context, count uint64) (*View, error) {
	s.ref()

	var base uint64
	for {
		cur := s.curCount.Load()
		if cur+count > s.maxElems {
			s.unref()
			return nil, column.ErrCapacityExhausted
		}
		if s.curCount.CompareAndSwap(cur, cur+count) {
			base = cur
			break
		}
	}

	if count == 0 {
		return s.newView(base, base, s.allWritable()), nil
	}

	if err := s.materialize(ctx, base, count); err != nil {
		s.unref()
		return nil, err
	}

	return s.newView(base, base+count, s.allWritable()), nil
}

func (s *Store) materialize(ctx context.Context, base, count uint64) error {
	if err := s.deleted.GrowBitsTo(ctx, base+count); err != nil {
		return err
	}
	if err := s.idMap.Emplace(ctx, base, count); err != nil {
		return err
	}
	if err := s.ids.Emplace(ctx, base, count); err != nil {
		return err
	}
	for _, c := range s.cols {
		if err := c.Emplace(ctx, base, count); err != nil {
			return err
		}
	}

	for {
		m := s.idMapSize.Load()
		if base+count <= m || s.idMapSize.CompareAndSwap(m, base+count) {
			break
		}
	}

	r := s.ids.Reader(base)
	for i := uint64(0); i < count; i++ {
		id := *r.Item()
		atomic.StoreUint64(s.idMap.PtrAt(id&SlotMask), base+i)
		if i+1 < count {
			r.Advance(1)
		}
	}
	return nil
}

// lookup resolves an external ID to its dense index. It rejects IDs
// whose slot is beyond the id-map watermark, whose mapping points past
// the dense watermark, or whose mapping is stale (the ID is parked in a
// compacted-out slot).
func (s *Store) lookup(id uint64) (uint64, bool) {
	slot := id & SlotMask
	if slot >= s.idMapSize.Load() {
		return 0, false
	}
	idx := atomic.LoadUint64(s.idMap.PtrAt(slot))
	if idx >= s.curCount.Load() {
		return 0, false
	}
	if *s.ids.PtrAt(idx) != id {
		return 0, false
	}
	return idx, true
}

// Delete marks the entity's dense slot deleted. Unknown and
// already-deleted IDs are no-ops. The mark happens under a passive
// reference so it cannot interleave with a compaction's slot moves;
// unlike a view release it never triggers the cleanup pass itself, so
// quiescence transitions stay view-driven.
func (s *Store) Delete(id uint64) {
	if !s.Owns(id) {
		return
	}
	s.ref()
	if idx, ok := s.lookup(id); ok {
		s.deleted.Set(idx, true)
	}
	s.viewRefs.Add(-1)
}

// GetView returns a view over every dense slot allocated so far.
func (s *Store) GetView(sel []Selection) *View {
	s.ref()
	return s.newView(0, s.curCount.Load(), sel)
}

// GetViewAt returns a single-entity view for id, or an empty view if
// the ID does not resolve or its slot is deleted.
func (s *Store) GetViewAt(id uint64, sel []Selection) *View {
	s.ref()
	if !s.Owns(id) {
		return s.newView(0, 0, sel)
	}
	idx, ok := s.lookup(id)
	if !ok || s.deleted.Get(idx) {
		return s.newView(0, 0, sel)
	}
	return s.newView(idx, idx+1, sel)
}

func (s *Store) allWritable() []Selection {
	sel := make([]Selection, len(s.cols))
	for i := range s.cols {
		sel[i] = Selection{Col: i, Writable: true}
	}
	return sel
}

// exclusiveCleanup compacts the store. Precondition: the caller holds
// the gate exclusively and the view refcount is zero.
func (s *Store) exclusiveCleanup() {
	s.ids.ReclaimBlocks()
	s.idMap.ReclaimBlocks()
	for _, c := range s.cols {
		c.ReclaimBlocks()
	}

	n := s.curCount.Load()
	if n == 0 || s.deleted.OneCount() == 0 {
		return
	}

	start := time.Now()
	right := n - 1
	removed := uint64(0)

	it := s.deleted.ConsumingOnes()
	for it.Next() {
		d := it.Index()
		if d >= n {
			break
		}

		for right > d && s.deleted.Get(right) {
			s.deleted.Set(right, false)
			removed++
			right--
		}
		if d >= right {
			removed++
			break
		}

		deadID := *s.ids.PtrAt(d)
		movedID := *s.ids.PtrAt(right)

		s.ids.CopySlot(d, right)
		for _, c := range s.cols {
			c.CopySlot(d, right)
		}
		*s.ids.PtrAt(right) = deadID
		atomic.StoreUint64(s.idMap.PtrAt(movedID&SlotMask), d)

		removed++
		right--
	}

	live := n - removed
	s.curCount.Store(live)

	if s.observer != nil {
		s.observer.CompactionDone(live, removed, time.Since(start))
	}
}

// Release returns every block owned by the store to the pool. The
// store must be quiescent and is unusable afterwards.
func (s *Store) Release() {
	s.ids.Release()
	s.idMap.Release()
	for _, c := range s.cols {
		c.Release()
	}
	s.deleted.Release()
}
