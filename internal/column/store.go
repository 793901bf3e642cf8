package column

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/neketka/ecstore/internal/pool"
)

const (
	// MaxIndices is the number of index-node slots per store.
	MaxIndices = 84
	// BlocksPerIndex is the number of block slots per index node.
	BlocksPerIndex = pool.BlockSize / 16
)

// ErrCapacityExhausted is returned when an emplace would exceed the
// store's maximum element count.
var ErrCapacityExhausted = errors.New("column: store capacity exhausted")

// indexNode holds one level of block slots plus the per-block writer
// locks. Nodes are plain heap objects; only the data blocks they point
// at come from the pool.
type indexNode struct {
	writer [BlocksPerIndex]sync.Mutex
	blocks [BlocksPerIndex]pool.Slot
}

// InitFunc initializes a freshly allocated block. base is the global
// element index of the block's first element and elems spans the whole
// block.
type InitFunc[T any] func(base uint64, elems []T)

// Store is a sparse, lazily-materialized array of T backed by pool
// blocks.
type Store[T any] struct {
	pool  *pool.Pool
	init  InitFunc[T]
	nodes [MaxIndices]atomic.Pointer[indexNode]

	reclaimMu sync.Mutex
	reclaim   []*pool.Block

	perBlock uint64
	perIndex uint64
	max      uint64
}

// New creates an empty store. init may be nil, in which case fresh
// blocks are zeroed. T must be at least one word wide and no wider
// than a block.
func New[T any](p *pool.Pool, init InitFunc[T]) *Store[T] {
	var zero T
	size := uint64(unsafe.Sizeof(zero))
	if size < 8 || size > pool.BlockSize {
		panic(fmt.Sprintf("column: element size %d out of range [8, %d]", size, pool.BlockSize))
	}

	perBlock := uint64(pool.BlockSize) / size
	return &Store[T]{
		pool:     p,
		init:     init,
		perBlock: perBlock,
		perIndex: perBlock * BlocksPerIndex,
		max:      perBlock * BlocksPerIndex * MaxIndices,
	}
}

// Max returns the maximum number of elements the store can hold.
func (s *Store[T]) Max() uint64 {
	return s.max
}

// PerBlock returns the number of elements per block.
func (s *Store[T]) PerBlock() uint64 {
	return s.perBlock
}

func (s *Store[T]) locate(i uint64) (nodeIdx, blockIdx, off uint64) {
	return i / s.perIndex, (i / s.perBlock) % BlocksPerIndex, i % s.perBlock
}

func (s *Store[T]) elems(b *pool.Block) []T {
	return unsafe.Slice((*T)(unsafe.Pointer(b)), s.perBlock)
}

// node returns the index node at n, creating it if absent. Creation
// races resolve by CAS; the loser adopts the winner's node.
func (s *Store[T]) node(n uint64) *indexNode {
	if nd := s.nodes[n].Load(); nd != nil {
		return nd
	}
	nd := &indexNode{}
	if s.nodes[n].CompareAndSwap(nil, nd) {
		return nd
	}
	return s.nodes[n].Load()
}

// Emplace ensures every block intersecting [first, first+count) exists
// and is initialized. The caller whose reservation covers a block's
// first element allocates and publishes it; every other caller waits on
// the slot. Reservations are contiguous fetch-add partitions, so the
// initializer is unique and always exists.
func (s *Store[T]) Emplace(ctx context.Context, first, count uint64) error {
	if count == 0 {
		return nil
	}
	last := first + count - 1
	if last >= s.max {
		return fmt.Errorf("%w: need %d, max %d", ErrCapacityExhausted, last+1, s.max)
	}

	firstNode, firstBlock, _ := s.locate(first)
	lastNode, lastBlock, _ := s.locate(last)

	for n := firstNode; n <= lastNode; n++ {
		nd := s.node(n)

		blk := uint64(0)
		if n == firstNode {
			blk = firstBlock
		}
		end := uint64(BlocksPerIndex - 1)
		if n == lastNode {
			end = lastBlock
		}

		for ; blk <= end; blk++ {
			slot := &nd.blocks[blk]
			if slot.Load() != nil {
				continue
			}

			base := n*s.perIndex + blk*s.perBlock
			if base >= first {
				b, err := s.pool.Request(ctx)
				if err != nil {
					return err
				}
				elems := s.elems(b)
				if s.init != nil {
					s.init(base, elems)
				} else {
					clear(elems)
				}
				slot.Publish(b)
			} else {
				slot.WaitNonNull()
			}
		}
	}
	return nil
}

// PtrAt returns a direct pointer into the currently published block.
// It waits out an in-flight block publication. Use only for elements
// accessed atomically (the id map) or at quiescence (compaction); it
// bypasses the RCU write path entirely.
func (s *Store[T]) PtrAt(i uint64) *T {
	nodeIdx, blockIdx, off := s.locate(i)
	nd := s.node(nodeIdx)
	b := nd.blocks[blockIdx].Load()
	if b == nil {
		b = nd.blocks[blockIdx].WaitNonNull()
	}
	return &s.elems(b)[off]
}

// CopySlot copies the element at src into dst in place. Must only be
// called at a quiescence point.
func (s *Store[T]) CopySlot(dst, src uint64) {
	*s.PtrAt(dst) = *s.PtrAt(src)
}

func (s *Store[T]) queueReclaim(b *pool.Block) {
	s.reclaimMu.Lock()
	s.reclaim = append(s.reclaim, b)
	s.reclaimMu.Unlock()
}

// ReclaimBlocks drains the reclaim queue, returning retired blocks to
// the pool. Must only be called at a quiescence point: a reader that
// captured a retired block before its swap must have dropped its view
// by now.
func (s *Store[T]) ReclaimBlocks() {
	s.reclaimMu.Lock()
	retired := s.reclaim
	s.reclaim = nil
	s.reclaimMu.Unlock()

	for _, b := range retired {
		s.pool.Release(b)
	}
}

// Release returns every live block to the pool and resets the store.
// Must only be called at a quiescence point.
func (s *Store[T]) Release() {
	s.ReclaimBlocks()
	for n := range s.nodes {
		nd := s.nodes[n].Swap(nil)
		if nd == nil {
			continue
		}
		for b := range nd.blocks {
			if blk := nd.blocks[b].Take(); blk != nil {
				s.pool.Release(blk)
			}
		}
	}
}
