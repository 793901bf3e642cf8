package column

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/neketka/ecstore/internal/pool"
)

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

func TestStore_Geometry(t *testing.T) {
	p := newTestPool(t, 4)
	s := New[uint64](p, nil)
	defer s.Release()

	if got := s.PerBlock(); got != pool.BlockSize/8 {
		t.Errorf("expected %d per block, got %d", pool.BlockSize/8, got)
	}
	if got := s.Max(); got != uint64(pool.BlockSize/8)*BlocksPerIndex*MaxIndices {
		t.Errorf("unexpected max %d", got)
	}
}

func TestStore_EmplaceZeroInit(t *testing.T) {
	p := newTestPool(t, 8)
	s := New[uint64](p, nil)
	defer s.Release()

	// Dirty a block, return it, and make sure a fresh emplace zeroes it.
	b, err := p.Request(context.Background())
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	for i := range b {
		b[i] = 0xAA
	}
	p.Release(b)

	if err := s.Emplace(context.Background(), 0, 100); err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	for i := uint64(0); i < 100; i++ {
		if got := *s.PtrAt(i); got != 0 {
			t.Fatalf("element %d not zeroed: %#x", i, got)
		}
	}
}

func TestStore_EmplaceCustomInit(t *testing.T) {
	p := newTestPool(t, 8)
	s := New[uint64](p, func(base uint64, elems []uint64) {
		for i := range elems {
			elems[i] = base + uint64(i)
		}
	})
	defer s.Release()

	// Span two blocks; the whole of each fresh block is stamped.
	if err := s.Emplace(context.Background(), 0, 1000); err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}
	for _, i := range []uint64{0, 1, 511, 512, 999} {
		if got := *s.PtrAt(i); got != i {
			t.Errorf("element %d stamped as %d", i, got)
		}
	}
}

func TestStore_EmplaceCapacity(t *testing.T) {
	p := newTestPool(t, 4)
	s := New[uint64](p, nil)
	defer s.Release()

	if err := s.Emplace(context.Background(), s.Max(), 1); !errors.Is(err, ErrCapacityExhausted) {
		t.Errorf("expected ErrCapacityExhausted, got %v", err)
	}
	if err := s.Emplace(context.Background(), s.Max()-1, 2); !errors.Is(err, ErrCapacityExhausted) {
		t.Errorf("expected ErrCapacityExhausted, got %v", err)
	}
	if err := s.Emplace(context.Background(), 0, 0); err != nil {
		t.Errorf("empty emplace failed: %v", err)
	}
	if got := p.Stats().InUse; got != 0 {
		t.Errorf("empty emplace allocated %d blocks", got)
	}
}

func TestStore_ReaderWalk(t *testing.T) {
	p := newTestPool(t, 8)
	s := New[uint64](p, func(base uint64, elems []uint64) {
		for i := range elems {
			elems[i] = base + uint64(i)
		}
	})
	defer s.Release()

	if err := s.Emplace(context.Background(), 0, 1200); err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}

	r := s.Reader(0)
	for i := uint64(0); i < 1200; i++ {
		if got := *r.Item(); got != i {
			t.Fatalf("reader at %d read %d", i, got)
		}
		r.Advance(1)
	}

	r = s.Reader(5)
	r.Advance(600) // cross a block boundary in one step
	if got := *r.Item(); got != 605 {
		t.Errorf("expected 605, got %d", got)
	}
	if r.Index() != 605 {
		t.Errorf("expected index 605, got %d", r.Index())
	}
}

func TestStore_WriterRCU(t *testing.T) {
	p := newTestPool(t, 8)
	s := New[uint64](p, nil)
	defer s.Release()

	if err := s.Emplace(context.Background(), 0, 512); err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}

	w := s.Writer(0)
	*w.Item() = 42

	// A reader that binds before the writer publishes sees the
	// pre-write block.
	pre := s.Reader(0)
	if got := *pre.Item(); got != 0 {
		t.Fatalf("pre-publish reader saw %d", got)
	}

	w.Close()

	// The old snapshot stays consistent after publication.
	if got := *pre.Item(); got != 0 {
		t.Errorf("bound reader drifted to %d", got)
	}

	// A reader that binds after publication sees the write.
	post := s.Reader(0)
	if got := *post.Item(); got != 42 {
		t.Errorf("post-publish reader saw %d", got)
	}

	// The displaced block sits in the reclaim queue until drained.
	inUse := p.Stats().InUse
	s.ReclaimBlocks()
	if got := p.Stats().InUse; got != inUse-1 {
		t.Errorf("reclaim released %d blocks, expected 1", inUse-got)
	}
}

func TestStore_WriterCrossBlockPublishes(t *testing.T) {
	p := newTestPool(t, 8)
	s := New[uint64](p, nil)
	defer s.Release()

	if err := s.Emplace(context.Background(), 0, 1024); err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}

	w := s.Writer(0)
	for i := uint64(0); i < 1024; i++ {
		*w.Item() = i + 1
		w.Advance(1)
	}
	w.Close()

	r := s.Reader(0)
	for i := uint64(0); i < 1024; i++ {
		if got := *r.Item(); got != i+1 {
			t.Fatalf("element %d is %d after writer pass", i, got)
		}
		r.Advance(1)
	}

	// Both touched blocks were replaced, so two retired blocks drain.
	inUse := p.Stats().InUse
	s.ReclaimBlocks()
	if got := p.Stats().InUse; got != inUse-2 {
		t.Errorf("expected 2 reclaimed blocks, got %d", inUse-got)
	}
}

func TestStore_WritersExcludePerBlock(t *testing.T) {
	p := newTestPool(t, 16)
	s := New[uint64](p, nil)
	defer s.Release()

	if err := s.Emplace(context.Background(), 0, 512); err != nil {
		t.Fatalf("Emplace failed: %v", err)
	}

	const workers = 4
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wr := s.Writer(0)
			for i := uint64(0); i < 512; i++ {
				*wr.Item() += 1
				wr.Advance(1)
			}
			wr.Close()
		}()
	}
	wg.Wait()

	// Writers serialize on the block lock and copy the published
	// block, so increments never get lost.
	r := s.Reader(0)
	for i := uint64(0); i < 512; i++ {
		if got := *r.Item(); got != workers {
			t.Fatalf("element %d is %d, expected %d", i, got, workers)
		}
		r.Advance(1)
	}
}

func TestStore_ConcurrentEmplacePartitions(t *testing.T) {
	p := newTestPool(t, 64)
	s := New[uint64](p, func(base uint64, elems []uint64) {
		for i := range elems {
			elems[i] = base + uint64(i)
		}
	})
	defer s.Release()

	const workers = 8
	const per = 1000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			if err := s.Emplace(context.Background(), uint64(w)*per, per); err != nil {
				t.Errorf("Emplace failed: %v", err)
			}
		}(w)
	}
	wg.Wait()

	for i := uint64(0); i < workers*per; i++ {
		if got := *s.PtrAt(i); got != i {
			t.Fatalf("element %d stamped as %d", i, got)
		}
	}
}
