package column

import (
	"context"
	"fmt"

	"github.com/neketka/ecstore/internal/pool"
)

const unbound = ^uint64(0)

// Reader is a forward iterator over published blocks. It binds a block
// lazily on first dereference and keeps that snapshot until it crosses
// a block boundary, so a concurrent RCU publication never moves data
// under an open Reader.
type Reader[T any] struct {
	s     *Store[T]
	idx   uint64
	node  uint64
	block uint64
	off   uint64
	elems []T
}

// Reader returns a const iterator positioned at i. The block is not
// touched until Item is called.
func (s *Store[T]) Reader(i uint64) Reader[T] {
	r := Reader[T]{s: s, node: unbound, block: unbound}
	r.jump(i)
	return r
}

func (r *Reader[T]) jump(i uint64) {
	nodeIdx, blockIdx, off := r.s.locate(i)
	if nodeIdx != r.node || blockIdx != r.block {
		r.node = nodeIdx
		r.block = blockIdx
		r.elems = nil
	}
	r.idx = i
	r.off = off
}

// Item returns a pointer to the current element. The pointee must be
// treated as read-only.
func (r *Reader[T]) Item() *T {
	if r.elems == nil {
		nd := r.s.node(r.node)
		b := nd.blocks[r.block].Load()
		if b == nil {
			b = nd.blocks[r.block].WaitNonNull()
		}
		r.elems = r.s.elems(b)
	}
	return &r.elems[r.off]
}

// Advance moves the iterator forward by k elements.
func (r *Reader[T]) Advance(k uint64) {
	r.jump(r.idx + k)
}

// Index returns the current element index.
func (r *Reader[T]) Index() uint64 {
	return r.idx
}

// Writer is an RCU write iterator. The first dereference inside a
// block takes that block's writer lock, copies the published block
// into a fresh shadow block, and directs all writes at the shadow.
// Advancing across a block boundary, or Close, publishes the shadow by
// swapping it into the block slot; the displaced block joins the
// reclaim queue. Readers that bound the old block keep their snapshot.
type Writer[T any] struct {
	s     *Store[T]
	idx   uint64
	node  uint64
	block uint64
	off   uint64
	nd     *indexNode
	shadow *pool.Block
	elems  []T
	open   bool
}

// Writer returns a mutable iterator positioned at i. No lock is taken
// and no copy is made until Item is called.
func (s *Store[T]) Writer(i uint64) *Writer[T] {
	w := &Writer[T]{s: s, node: unbound, block: unbound}
	w.jump(i)
	return w
}

func (w *Writer[T]) jump(i uint64) {
	nodeIdx, blockIdx, off := w.s.locate(i)
	if nodeIdx != w.node || blockIdx != w.block {
		if w.open {
			w.publish()
		}
		w.node = nodeIdx
		w.block = blockIdx
	}
	w.idx = i
	w.off = off
}

// Item returns a writable pointer to the current element in the shadow
// block, opening the block on first use.
func (w *Writer[T]) Item() *T {
	if !w.open {
		w.nd = w.s.node(w.node)
		w.nd.writer[w.block].Lock()

		shadow, err := w.s.pool.Request(context.Background())
		if err != nil {
			// Background context never cancels; only a closed pool
			// reaches here, which is a lifecycle violation.
			w.nd.writer[w.block].Unlock()
			panic(fmt.Sprintf("column: shadow block request: %v", err))
		}

		cur := w.nd.blocks[w.block].Load()
		if cur == nil {
			cur = w.nd.blocks[w.block].WaitNonNull()
		}
		*shadow = *cur

		w.shadow = shadow
		w.elems = w.s.elems(shadow)
		w.open = true
	}
	return &w.elems[w.off]
}

// publish swaps the shadow into the block slot, releases the writer
// lock and queues the displaced block for reclamation.
func (w *Writer[T]) publish() {
	old := w.nd.blocks[w.block].Swap(w.shadow)
	w.nd.writer[w.block].Unlock()
	w.s.queueReclaim(old)
	w.shadow = nil
	w.elems = nil
	w.open = false
}

// Advance moves the iterator forward by k elements, publishing the
// current shadow if the move crosses a block boundary.
func (w *Writer[T]) Advance(k uint64) {
	w.jump(w.idx + k)
}

// Index returns the current element index.
func (w *Writer[T]) Index() uint64 {
	return w.idx
}

// Close publishes any open shadow block. It is idempotent; a Writer
// must be closed before its writes become visible to new readers.
func (w *Writer[T]) Close() {
	if w.open {
		w.publish()
	}
}
