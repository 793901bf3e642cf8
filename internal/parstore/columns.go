package parstore

import (
	"context"
	"unsafe"

	"github.com/neketka/ecstore/internal/column"
	"github.com/neketka/ecstore/internal/pool"
)

// Column is the type-erased face of a component column. Concrete
// columns are column.Store[T] instances wrapped by NewColumn.
type Column interface {
	// Emplace materializes every block intersecting [first, first+count).
	Emplace(ctx context.Context, first, count uint64) error
	// ReclaimBlocks returns retired RCU blocks to the pool. Quiescence only.
	ReclaimBlocks()
	// Release returns all blocks to the pool. Quiescence only.
	Release()
	// CopySlot copies element src into dst. Quiescence only.
	CopySlot(dst, src uint64)
	// Max is the column's maximum element count.
	Max() uint64
	// NewCursor returns a cursor positioned at start. Writable cursors
	// follow the RCU write path and must be closed to publish.
	NewCursor(start uint64, writable bool) Cursor
}

// Cursor is a type-erased forward iterator over one column.
type Cursor interface {
	Advance(k uint64)
	Ptr() unsafe.Pointer
	Close()
}

// NewColumn wraps a freshly created column.Store[T] as a Column.
func NewColumn[T any](p *pool.Pool) Column {
	return &colAdapter[T]{store: column.New[T](p, nil)}
}

type colAdapter[T any] struct {
	store *column.Store[T]
}

func (c *colAdapter[T]) Emplace(ctx context.Context, first, count uint64) error {
	return c.store.Emplace(ctx, first, count)
}

func (c *colAdapter[T]) ReclaimBlocks() { c.store.ReclaimBlocks() }

func (c *colAdapter[T]) Release() { c.store.Release() }

func (c *colAdapter[T]) CopySlot(dst, src uint64) { c.store.CopySlot(dst, src) }

func (c *colAdapter[T]) Max() uint64 { return c.store.Max() }

func (c *colAdapter[T]) NewCursor(start uint64, writable bool) Cursor {
	if writable {
		return &writeCursor[T]{w: c.store.Writer(start)}
	}
	return &readCursor[T]{r: c.store.Reader(start)}
}

type readCursor[T any] struct {
	r column.Reader[T]
}

func (c *readCursor[T]) Advance(k uint64) { c.r.Advance(k) }

func (c *readCursor[T]) Ptr() unsafe.Pointer { return unsafe.Pointer(c.r.Item()) }

func (c *readCursor[T]) Close() {}

type writeCursor[T any] struct {
	w *column.Writer[T]
}

func (c *writeCursor[T]) Advance(k uint64) { c.w.Advance(k) }

func (c *writeCursor[T]) Ptr() unsafe.Pointer { return unsafe.Pointer(c.w.Item()) }

func (c *writeCursor[T]) Close() { c.w.Close() }
