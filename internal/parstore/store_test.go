package parstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/neketka/ecstore/internal/column"
	"github.com/neketka/ecstore/internal/pool"
)

type testComp struct {
	X uint64
}

func newTestPool(t *testing.T, blocks int) *pool.Pool {
	t.Helper()
	p, err := pool.New(blocks)
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	t.Cleanup(func() {
		if err := p.Close(); err != nil {
			t.Errorf("pool.Close failed: %v", err)
		}
	})
	return p
}

func newTestStore(t *testing.T, blocks int, prefix uint64) *Store {
	t.Helper()
	p := newTestPool(t, blocks)
	s := New(p, prefix, []Column{NewColumn[testComp](p)})
	t.Cleanup(s.Release)
	return s
}

func collectIDs(v *View) []uint64 {
	var ids []uint64
	for it := v.Iter(); it.Next(); {
		ids = append(ids, it.Entity())
	}
	return ids
}

func comp(it *Iter) *testComp {
	return (*testComp)(it.Ptr(0))
}

func TestStore_EmplaceIDs(t *testing.T) {
	s := newTestStore(t, 64, 5)

	v, err := s.Emplace(context.Background(), 4)
	if err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	defer v.Release()

	ids := collectIDs(v)
	if len(ids) != 4 {
		t.Fatalf("expected 4 entities, got %d", len(ids))
	}

	seen := map[uint64]bool{}
	for i, id := range ids {
		if !s.Owns(id) {
			t.Errorf("id %#x does not carry prefix %d", id, s.Prefix())
		}
		if id&SlotMask != uint64(i) {
			t.Errorf("fresh id %#x has slot %d, expected %d", id, id&SlotMask, i)
		}
		if seen[id] {
			t.Errorf("duplicate id %#x", id)
		}
		seen[id] = true
	}

	if got := s.CurCount(); got != 4 {
		t.Errorf("expected cur count 4, got %d", got)
	}
	if err := s.Audit(); err != nil {
		t.Errorf("audit failed: %v", err)
	}
}

func TestStore_EmplaceZero(t *testing.T) {
	s := newTestStore(t, 64, 1)

	v, err := s.Emplace(context.Background(), 0)
	if err != nil {
		t.Fatalf("Emplace(0) failed: %v", err)
	}
	if !v.Empty() {
		t.Error("expected empty view")
	}
	if it := v.Iter(); it.Next() {
		t.Error("empty view yielded an element")
	}
	v.Release()

	if got := s.CurCount(); got != 0 {
		t.Errorf("Emplace(0) grew cur count to %d", got)
	}
}

func TestStore_DisjointSerialEmplaces(t *testing.T) {
	s := newTestStore(t, 64, 1)

	v1, err := s.Emplace(context.Background(), 3)
	if err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	ids1 := collectIDs(v1)
	v1.Release()

	v2, err := s.Emplace(context.Background(), 5)
	if err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	ids2 := collectIDs(v2)
	v2.Release()

	if v1.Begin() == v2.Begin() {
		t.Error("expected disjoint dense ranges")
	}
	seen := map[uint64]bool{}
	for _, id := range append(ids1, ids2...) {
		if seen[id] {
			t.Errorf("id %#x issued twice", id)
		}
		seen[id] = true
	}
}

func TestStore_DeleteAndViewAt(t *testing.T) {
	s := newTestStore(t, 64, 9)

	v, err := s.Emplace(context.Background(), 3)
	if err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	ids := collectIDs(v)
	v.Release()

	sel := []Selection{{Col: 0, Writable: false}}

	at := s.GetViewAt(ids[1], sel)
	if at.Empty() {
		t.Error("expected non-empty view for live id")
	}
	at.Release()

	s.Delete(ids[1])
	s.Delete(ids[1]) // idempotent

	if got := s.LiveCount(); got != 2 {
		t.Errorf("expected live count 2, got %d", got)
	}

	at = s.GetViewAt(ids[1], sel)
	if !at.Empty() {
		t.Error("expected empty view for deleted id")
	}
	at.Release()

	// Foreign and garbage ids are no-ops.
	s.Delete(ids[1] ^ TagBit)
	s.Delete(TagBit | 777<<SlotBits | 5)
	if got := s.LiveCount(); got != 2 {
		t.Errorf("foreign delete changed live count to %d", got)
	}

	// Right prefix, never-allocated slot.
	s.Delete(s.prefix | 99)
	if got := s.LiveCount(); got != 2 {
		t.Errorf("out-of-range delete changed live count to %d", got)
	}
}

func TestStore_IterSkipsDeleted(t *testing.T) {
	s := newTestStore(t, 64, 2)

	v, err := s.Emplace(context.Background(), 6)
	if err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	ids := collectIDs(v)
	v.Release()

	s.Delete(ids[0])
	s.Delete(ids[3])

	qv := s.GetView([]Selection{{Col: 0, Writable: false}})
	got := collectIDs(qv)
	qv.Release()

	if len(got) != 4 {
		t.Fatalf("expected 4 live entities, got %d", len(got))
	}
	for _, id := range got {
		if id == ids[0] || id == ids[3] {
			t.Errorf("deleted id %#x still yielded", id)
		}
	}
}

func TestStore_CompactionRecyclesIDs(t *testing.T) {
	s := newTestStore(t, 64, 3)
	ctx := context.Background()

	v, err := s.Emplace(ctx, 10)
	if err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	// Stamp each entity's component with its own slot id.
	for it := v.Iter(); it.Next(); {
		comp(it).X = it.Entity() & SlotMask
	}
	ids := collectIDs(v)
	v.Release()

	deleted := map[uint64]bool{ids[2]: true, ids[5]: true, ids[9]: true}
	for id := range deleted {
		s.Delete(id)
	}

	// Quiescence cycle: a view release with zero remaining refs runs
	// the cleanup pass.
	qv := s.GetView(nil)
	qv.Release()

	if got := s.CurCount(); got != 7 {
		t.Errorf("expected cur count 7 after compaction, got %d", got)
	}
	if got := s.deleted.OneCount(); got != 0 {
		t.Errorf("expected clean deleted bits, got %d ones", got)
	}
	if err := s.Audit(); err != nil {
		t.Errorf("audit failed: %v", err)
	}

	// The multiset of live IDs is preserved, and each survivor kept
	// its component data.
	live := s.LiveIDs()
	if live.GetCardinality() != 7 {
		t.Fatalf("expected 7 live ids, got %d", live.GetCardinality())
	}
	for _, id := range ids {
		if deleted[id] {
			if live.Contains(id) {
				t.Errorf("deleted id %#x still live", id)
			}
			continue
		}
		if !live.Contains(id) {
			t.Errorf("live id %#x lost in compaction", id)
		}
		at := s.GetViewAt(id, []Selection{{Col: 0, Writable: false}})
		it := at.Iter()
		if !it.Next() {
			t.Fatalf("no element for live id %#x", id)
		}
		if got := comp(it).X; got != id&SlotMask {
			t.Errorf("id %#x component is %d, expected %d", id, got, id&SlotMask)
		}
		at.Release()
	}

	// The next emplace hands the recycled IDs back out.
	v2, err := s.Emplace(ctx, 3)
	if err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	recycled := collectIDs(v2)
	v2.Release()

	if len(recycled) != 3 {
		t.Fatalf("expected 3 recycled entities, got %d", len(recycled))
	}
	for _, id := range recycled {
		if !deleted[id] {
			t.Errorf("expected recycled id, got fresh %#x", id)
		}
	}
	if err := s.Audit(); err != nil {
		t.Errorf("audit after recycling failed: %v", err)
	}
}

func TestStore_DeleteAll(t *testing.T) {
	s := newTestStore(t, 64, 4)

	v, err := s.Emplace(context.Background(), 20)
	if err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	ids := collectIDs(v)
	v.Release()

	for _, id := range ids {
		s.Delete(id)
	}

	qv := s.GetView(nil)
	qv.Release()

	if got := s.CurCount(); got != 0 {
		t.Errorf("expected cur count 0, got %d", got)
	}
	if err := s.Audit(); err != nil {
		t.Errorf("audit failed: %v", err)
	}
}

func TestStore_CapacityFailStop(t *testing.T) {
	s := newTestStore(t, 64, 6)

	if _, err := s.Emplace(context.Background(), s.MaxElems()+1); !errors.Is(err, column.ErrCapacityExhausted) {
		t.Errorf("expected ErrCapacityExhausted, got %v", err)
	}
	if got := s.CurCount(); got != 0 {
		t.Errorf("failed emplace advanced cur count to %d", got)
	}
}

func TestStore_ViewRefcountGatesCompaction(t *testing.T) {
	s := newTestStore(t, 64, 7)

	v, err := s.Emplace(context.Background(), 8)
	if err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	ids := collectIDs(v)

	s.Delete(ids[0])

	// A live view defers the cleanup pass.
	held := v.Clone()
	v.Release()
	if got := s.CurCount(); got != 8 {
		t.Errorf("compaction ran under a live view: cur count %d", got)
	}

	held.Release()
	if got := s.CurCount(); got != 7 {
		t.Errorf("expected compaction after last release, got cur count %d", got)
	}
}

func TestStore_ConcurrentEmplaceDelete(t *testing.T) {
	p := newTestPool(t, 4096)
	s := New(p, 11, []Column{NewColumn[testComp](p)})
	t.Cleanup(s.Release)

	const workers = 8
	const rounds = 40

	var mu sync.Mutex
	created := 0
	deletedCount := 0

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var live []uint64
			for r := 0; r < rounds; r++ {
				k := uint64(1 + (w+r)%64)
				v, err := s.Emplace(context.Background(), k)
				if err != nil {
					t.Errorf("Emplace failed: %v", err)
					return
				}
				for it := v.Iter(); it.Next(); {
					comp(it).X = 51
					live = append(live, it.Entity())
				}
				v.Release()

				mu.Lock()
				created += int(k)
				mu.Unlock()

				for i := 0; i < int(k)/2 && len(live) > 0; i++ {
					id := live[len(live)-1]
					live = live[:len(live)-1]
					s.Delete(id)
					mu.Lock()
					deletedCount++
					mu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()

	// Quiesce and compact.
	qv := s.GetView(nil)
	qv.Release()

	if err := s.Audit(); err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	want := uint64(created - deletedCount)
	if got := s.CurCount(); got != want {
		t.Errorf("expected %d live entities, got %d", want, got)
	}
}
