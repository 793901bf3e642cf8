package ecstore

import (
	"reflect"
	"unsafe"

	"github.com/neketka/ecstore/internal/parstore"
)

// View is a refcounted range over one store. A View must be released
// exactly once; releasing the last view over a store triggers that
// store's compaction.
type View struct {
	storage *Storage
	cols    []ComponentID // parallel to the inner view's selections
	inner   *parstore.View
}

// Empty reports whether the view spans no dense slots. Empty views
// still must be released (releasing a detached view is a no-op).
func (v *View) Empty() bool {
	return v.inner == nil || v.inner.Empty()
}

// Clone returns an independent reference to the same range.
func (v *View) Clone() *View {
	if v.inner == nil {
		return &View{storage: v.storage, cols: v.cols}
	}
	return &View{storage: v.storage, cols: v.cols, inner: v.inner.Clone()}
}

// Release drops the view's reference. Idempotent.
func (v *View) Release() {
	if v.inner != nil {
		v.inner.Release()
	}
}

// Iter returns an iterator over the view's live slots.
func (v *View) Iter() *Iter {
	if v.inner == nil {
		return &Iter{view: v}
	}
	return &Iter{view: v, inner: v.inner.Iter()}
}

// Item is the read position of an iterator, consumed by Get.
type Item interface {
	// Entity returns the current slot's external ID.
	Entity() ID

	componentPtr(id ComponentID) unsafe.Pointer
	storageRef() *Storage
}

// Iter walks a view's live slots in dense order.
type Iter struct {
	view  *View
	inner *parstore.Iter
}

// Next moves to the next live slot, returning false when exhausted.
func (it *Iter) Next() bool {
	if it.inner == nil {
		return false
	}
	return it.inner.Next()
}

// Advance moves forward by k slots, skipping deleted slots under the
// landing position.
func (it *Iter) Advance(k uint64) bool {
	if it.inner == nil {
		return false
	}
	return it.inner.Advance(k)
}

// Index returns the current dense index. Only valid after a successful
// Next or Advance.
func (it *Iter) Index() uint64 {
	return it.inner.Index()
}

// Entity returns the current slot's external ID. Only valid after a
// successful Next or Advance.
func (it *Iter) Entity() ID {
	return ID(it.inner.Entity())
}

// Close publishes any open write cursors early. Iterators close
// themselves when exhausted.
func (it *Iter) Close() {
	if it.inner != nil {
		it.inner.Close()
	}
}

func (it *Iter) componentPtr(id ComponentID) unsafe.Pointer {
	for i, cid := range it.view.cols {
		if cid == id {
			return it.inner.Ptr(i)
		}
	}
	return nil
}

func (it *Iter) storageRef() *Storage {
	return it.view.storage
}

// Get returns a pointer to the current slot's T component, or nil if T
// is not part of the iterator's selection. Writing through the pointer
// is only valid for columns selected via Write or returned by Create.
func Get[T any](item Item) *T {
	st := item.storageRef()
	if st == nil {
		return nil
	}
	var zero T
	cid, ok := st.reg.lookupType(reflect.TypeOf(zero))
	if !ok {
		return nil
	}
	p := item.componentPtr(cid)
	if p == nil {
		return nil
	}
	return (*T)(p)
}

// Result is a concatenation of per-store views produced by RunQuery.
type Result struct {
	views []*View
}

// Views returns the underlying per-store views.
func (r *Result) Views() []*View {
	return r.views
}

// Empty reports whether no store matched or all matched ranges are
// empty.
func (r *Result) Empty() bool {
	for _, v := range r.views {
		if !v.Empty() {
			return false
		}
	}
	return true
}

// Release releases every underlying view.
func (r *Result) Release() {
	for _, v := range r.views {
		v.Release()
	}
}

// Iter returns an iterator over every live slot of every matched
// store. Ordering across stores is unspecified.
func (r *Result) Iter() *ResultIter {
	return &ResultIter{r: r}
}

// ResultIter chains the per-view iterators of a Result.
type ResultIter struct {
	r   *Result
	pos int
	cur *Iter
}

// Next moves to the next live slot across all matched stores.
func (it *ResultIter) Next() bool {
	for {
		if it.cur == nil {
			if it.pos >= len(it.r.views) {
				return false
			}
			it.cur = it.r.views[it.pos].Iter()
			it.pos++
		}
		if it.cur.Next() {
			return true
		}
		it.cur = nil
	}
}

// Entity returns the current slot's external ID.
func (it *ResultIter) Entity() ID {
	return it.cur.Entity()
}

// Index returns the current dense index within the current store.
func (it *ResultIter) Index() uint64 {
	return it.cur.Index()
}

// Close closes the in-flight per-view iterator.
func (it *ResultIter) Close() {
	if it.cur != nil {
		it.cur.Close()
		it.cur = nil
	}
}

func (it *ResultIter) componentPtr(id ComponentID) unsafe.Pointer {
	return it.cur.componentPtr(id)
}

func (it *ResultIter) storageRef() *Storage {
	if len(it.r.views) == 0 {
		return nil
	}
	return it.r.views[0].storage
}
