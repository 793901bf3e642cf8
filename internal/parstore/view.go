package parstore

import (
	"sync/atomic"
	"unsafe"

	"github.com/neketka/ecstore/internal/bitset"
	"github.com/neketka/ecstore/internal/column"
)

// Selection names one column of a view and whether it is writable.
type Selection struct {
	Col      int // index into the store's column list
	Writable bool
}

// View is a refcounted, half-open dense-index interval over a store.
// Iteration skips deleted slots. Views must be released; the release
// of the last view triggers the store's exclusive cleanup.
type View struct {
	store    *Store
	begin    uint64
	end      uint64
	sel      []Selection
	released atomic.Bool
}

func (s *Store) newView(begin, end uint64, sel []Selection) *View {
	return &View{store: s, begin: begin, end: end, sel: sel}
}

// Empty reports whether the view spans no dense slots.
func (v *View) Empty() bool {
	return v.begin >= v.end
}

// Begin returns the first dense index of the interval.
func (v *View) Begin() uint64 {
	return v.begin
}

// End returns the past-the-end dense index of the interval.
func (v *View) End() uint64 {
	return v.end
}

// Selections returns the view's column selections.
func (v *View) Selections() []Selection {
	return v.sel
}

// Store returns the owning store.
func (v *View) Store() *Store {
	return v.store
}

// Clone returns an independent reference to the same interval.
func (v *View) Clone() *View {
	v.store.ref()
	return v.store.newView(v.begin, v.end, v.sel)
}

// Release drops the view's reference. Idempotent. The caller must not
// use the view or any iterator derived from it afterwards.
func (v *View) Release() {
	if v.released.Swap(true) {
		return
	}
	v.store.unref()
}

// Iter is a forward iterator over a view's live slots. Every selected
// column advances in lockstep; writable selections follow the RCU
// write path and publish when the iterator closes or crosses a block
// boundary.
type Iter struct {
	view    *View
	cur     uint64
	end     uint64
	started bool
	closed  bool

	dead    *bitset.OnesIter
	idCur   column.Reader[uint64]
	cursors []Cursor
}

// Iter returns an iterator positioned before the first live slot.
func (v *View) Iter() *Iter {
	it := &Iter{
		view: v,
		cur:  v.begin,
		end:  v.end,
		dead: v.store.deleted.Ones(v.begin),
	}
	if v.Empty() {
		it.closed = true
		return it
	}
	it.idCur = v.store.ids.Reader(v.begin)
	it.cursors = make([]Cursor, len(v.sel))
	for i, sel := range v.sel {
		it.cursors[i] = v.store.cols[sel.Col].NewCursor(v.begin, sel.Writable)
	}
	return it
}

// Next moves to the next live slot. The first call positions the
// iterator on the first live slot of the interval. It returns false
// when the interval is exhausted, closing the iterator.
func (it *Iter) Next() bool {
	if it.closed {
		return false
	}
	k := uint64(1)
	if !it.started {
		it.started = true
		k = 0
	}
	return it.advance(k)
}

// Advance moves forward by k live-slot candidates (deleted slots under
// the landing position are skipped, enlarging the step). Advance(0)
// before the first Next positions the iterator like Next does.
func (it *Iter) Advance(k uint64) bool {
	if it.closed {
		return false
	}
	it.started = true
	return it.advance(k)
}

func (it *Iter) advance(k uint64) bool {
	land := it.cur + k
	for land < it.end {
		it.dead.SeekGE(land)
		if it.dead.Valid() && it.dead.Head() == land {
			land++
			continue
		}
		break
	}
	if land >= it.end {
		it.Close()
		return false
	}
	if step := land - it.cur; step > 0 {
		it.idCur.Advance(step)
		for _, c := range it.cursors {
			c.Advance(step)
		}
	}
	it.cur = land
	return true
}

// Index returns the current dense index.
func (it *Iter) Index() uint64 {
	return it.cur
}

// Entity returns the current slot's external ID.
func (it *Iter) Entity() uint64 {
	return *it.idCur.Item()
}

// Ptr returns a pointer to the current element of the i-th selected
// column.
func (it *Iter) Ptr(i int) unsafe.Pointer {
	return it.cursors[i].Ptr()
}

// Close publishes any open write cursors. Idempotent; called
// automatically when Next exhausts the interval.
func (it *Iter) Close() {
	if it.closed {
		return
	}
	it.closed = true
	for _, c := range it.cursors {
		c.Close()
	}
}
