package ecstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neketka/ecstore/internal/parstore"
	"github.com/neketka/ecstore/internal/pool"
	"github.com/puzpuzpuz/xsync/v3"
)

// archStore binds an archetype to its parallel store and the ordered
// component list backing the store's columns.
type archStore struct {
	arch   Archetype
	colIDs []ComponentID // ascending, parallel to the store's columns
	store  *parstore.Store
}

// Storage is a heterogeneous collection of per-archetype stores. Each
// store gets a unique 39-bit prefix at creation, so an entity's ID
// routes operations back to its store.
type Storage struct {
	pool    *pool.Pool
	logger  *Logger
	metrics MetricsCollector

	reg      *registry
	stores   *xsync.MapOf[Archetype, *archStore]
	byPrefix *xsync.MapOf[uint64, *archStore]

	createMu   sync.Mutex
	nextPrefix atomic.Uint64
	closed     atomic.Bool
}

// New creates a Storage. Without WithPool it binds to the process-wide
// pool, which must have been initialized via InitPool.
func New(opts ...Option) (*Storage, error) {
	o := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.pool == nil {
		p, err := pool.Global()
		if err != nil {
			return nil, err
		}
		o.pool = p
	}

	return &Storage{
		pool:     o.pool,
		logger:   o.logger,
		metrics:  o.metrics,
		reg:      newRegistry(),
		stores:   xsync.NewMapOf[Archetype, *archStore](),
		byPrefix: xsync.NewMapOf[uint64, *archStore](),
	}, nil
}

type storeObserver struct {
	s      *Storage
	prefix uint64
}

func (o storeObserver) CompactionDone(live, removed uint64, elapsed time.Duration) {
	o.s.logger.LogCompaction(o.prefix, live, removed, elapsed)
	o.s.metrics.RecordCompaction(live, removed, elapsed)
}

// storeFor returns the store for arch, creating it on first use.
func (s *Storage) storeFor(arch Archetype) (*archStore, error) {
	if as, ok := s.stores.Load(arch); ok {
		return as, nil
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	if as, ok := s.stores.Load(arch); ok {
		return as, nil
	}

	colIDs := arch.Components()
	cols := make([]parstore.Column, len(colIDs))
	for i, cid := range colIDs {
		info, ok := s.reg.info(cid)
		if !ok {
			return nil, fmt.Errorf("%w: id %d", ErrUnregisteredComponent, cid)
		}
		cols[i] = info.newColumn(s.pool)
	}

	prefix := s.nextPrefix.Add(1) - 1
	if prefix > parstore.PrefixMask {
		return nil, ErrTooManyArchetypes
	}

	ps := parstore.New(s.pool, prefix, cols)
	ps.SetObserver(storeObserver{s: s, prefix: prefix})

	as := &archStore{arch: arch, colIDs: colIDs, store: ps}
	s.stores.Store(arch, as)
	s.byPrefix.Store(prefix, as)
	return as, nil
}

// Create allocates count entities of the given archetype and returns a
// writable view over them. The view carries every component column of
// the archetype.
func (s *Storage) Create(ctx context.Context, arch Archetype, count int) (*View, error) {
	if s.closed.Load() {
		return nil, ErrStorageClosed
	}
	start := time.Now()

	as, err := s.storeFor(arch)
	if err != nil {
		s.metrics.RecordCreate(count, time.Since(start), err)
		return nil, err
	}

	iv, err := as.store.Emplace(ctx, uint64(count))
	s.metrics.RecordCreate(count, time.Since(start), err)
	s.logger.LogCreate(as.store.Prefix(), count, err)
	if err != nil {
		return nil, err
	}

	return &View{storage: s, cols: as.colIDs, inner: iv}, nil
}

// Delete marks the entity deleted. Unknown, foreign and
// already-deleted IDs are no-ops. Storage is reclaimed by the owning
// store's next compaction.
func (s *Storage) Delete(id ID) {
	if s.closed.Load() || !id.Valid() {
		return
	}
	as, ok := s.byPrefix.Load(id.Prefix())
	if !ok {
		return
	}
	start := time.Now()
	as.store.Delete(uint64(id))
	s.logger.LogDelete(id)
	s.metrics.RecordDelete(time.Since(start))
}

// selectionsFor maps the query's column set onto a store's column
// positions. The query is known to match the store's archetype.
func selectionsFor(q *Query, as *archStore) []parstore.Selection {
	selIDs := q.selected().Components()
	sel := make([]parstore.Selection, len(selIDs))
	for i, cid := range selIDs {
		pos := 0
		for p, have := range as.colIDs {
			if have == cid {
				pos = p
				break
			}
		}
		sel[i] = parstore.Selection{Col: pos, Writable: q.write.Contains(cid)}
	}
	return sel
}

// RunQuery returns a concatenated result over every store whose
// archetype satisfies the query.
func (s *Storage) RunQuery(q *Query) *Result {
	start := time.Now()
	var views []*View
	s.stores.Range(func(arch Archetype, as *archStore) bool {
		if q.matches(arch) {
			sel := selectionsFor(q, as)
			views = append(views, &View{
				storage: s,
				cols:    q.selected().Components(),
				inner:   as.store.GetView(sel),
			})
		}
		return true
	})
	s.metrics.RecordQuery(len(views), time.Since(start))
	return &Result{views: views}
}

// RunQueryAt returns a single-entity view for id, or an empty view if
// the ID does not resolve, its slot is deleted, or its store does not
// satisfy the query.
func (s *Storage) RunQueryAt(id ID, q *Query) *View {
	if !id.Valid() {
		return &View{storage: s}
	}
	as, ok := s.byPrefix.Load(id.Prefix())
	if !ok || !q.matches(as.arch) {
		return &View{storage: s}
	}
	sel := selectionsFor(q, as)
	return &View{
		storage: s,
		cols:    q.selected().Components(),
		inner:   as.store.GetViewAt(uint64(id), sel),
	}
}

// CheckConsistency audits every store's identity invariants. Each
// store is audited under a view reference so compaction cannot run
// mid-audit.
func (s *Storage) CheckConsistency() error {
	var err error
	s.stores.Range(func(_ Archetype, as *archStore) bool {
		v := as.store.GetView(nil)
		aerr := as.store.Audit()
		v.Release()
		if aerr != nil {
			err = aerr
			return false
		}
		return true
	})
	return err
}

// LiveCount returns the total number of live entities across stores.
func (s *Storage) LiveCount() uint64 {
	var n uint64
	s.stores.Range(func(_ Archetype, as *archStore) bool {
		n += as.store.LiveCount()
		return true
	})
	return n
}

// Close releases every store's blocks back to the pool. All views must
// have been released; the storage is unusable afterwards.
func (s *Storage) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.stores.Range(func(_ Archetype, as *archStore) bool {
		as.store.Release()
		return true
	})
	return nil
}
