package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/neketka/ecstore/internal/mmap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// BlockSize is the size of every pool block in bytes. Blocks are
// page-aligned because the slab itself is an anonymous mapping.
const BlockSize = 4096

// Block is a fixed-size untyped buffer. Its contents are undefined on
// Request; callers initialize the portion they use.
type Block [BlockSize]byte

var (
	// ErrPoolClosed is returned when requesting from a closed pool.
	ErrPoolClosed = errors.New("pool: closed")
	// ErrInvalidBlockCount is returned for a non-positive block count.
	ErrInvalidBlockCount = errors.New("pool: block count must be positive")
	// ErrBlocksOutstanding is returned by Close while blocks are still owned by callers.
	ErrBlocksOutstanding = errors.New("pool: blocks still in use")
	// ErrNotInitialized is returned when the process-wide pool is used before Init.
	ErrNotInitialized = errors.New("pool: process-wide pool not initialized")
)

// Stats is a snapshot of pool usage.
type Stats struct {
	BlockCount int   // total blocks in the slab
	InUse      int64 // blocks currently owned by callers
	HighWater  int64 // maximum simultaneous InUse observed
}

// Pool is a fixed-size slab of blocks served LIFO.
type Pool struct {
	mapping    *mmap.Mapping
	blockCount int

	sem *semaphore.Weighted

	mu   sync.Mutex
	free []*Block

	inUse     atomic.Int64
	highWater atomic.Int64
	closed    atomic.Bool

	warnLimit *rate.Limiter
	logger    *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for exhaustion diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pool backed by blockCount fixed-size blocks.
func New(blockCount int, opts ...Option) (*Pool, error) {
	if blockCount <= 0 {
		return nil, ErrInvalidBlockCount
	}

	m, err := mmap.MapAnon(blockCount * BlockSize)
	if err != nil {
		return nil, fmt.Errorf("pool: map slab: %w", err)
	}

	p := &Pool{
		mapping:    m,
		blockCount: blockCount,
		sem:        semaphore.NewWeighted(int64(blockCount)),
		free:       make([]*Block, blockCount),
		warnLimit:  rate.NewLimiter(rate.Limit(1), 1),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	region := m.Bytes()
	for i := 0; i < blockCount; i++ {
		p.free[i] = (*Block)(unsafe.Pointer(&region[i*BlockSize]))
	}

	return p, nil
}

// Request pops the most recently freed block. If the pool is exhausted
// it blocks until a block is released or ctx is canceled, logging a
// rate-limited diagnostic while waiting.
func (p *Pool) Request(ctx context.Context) (*Block, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	if !p.sem.TryAcquire(1) {
		if p.warnLimit.Allow() {
			p.logger.Warn("block pool exhausted, waiting for a release",
				"blocks", p.blockCount,
			)
		}
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("pool: request: %w", err)
		}
	}

	p.mu.Lock()
	n := len(p.free)
	b := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()

	used := p.inUse.Add(1)
	for {
		hw := p.highWater.Load()
		if used <= hw || p.highWater.CompareAndSwap(hw, used) {
			break
		}
	}

	return b, nil
}

// Release returns a block to the top of the free stack. Releasing nil
// is a no-op.
func (p *Pool) Release(b *Block) {
	if b == nil {
		return
	}

	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()

	p.inUse.Add(-1)
	p.sem.Release(1)
}

// Stats returns a snapshot of pool usage.
func (p *Pool) Stats() Stats {
	return Stats{
		BlockCount: p.blockCount,
		InUse:      p.inUse.Load(),
		HighWater:  p.highWater.Load(),
	}
}

// BlockCount returns the total number of blocks in the slab.
func (p *Pool) BlockCount() int {
	return p.blockCount
}

// Close unmaps the slab. All blocks must have been released; Close
// refuses to tear down the region while any caller still owns one.
func (p *Pool) Close() error {
	if used := p.inUse.Load(); used > 0 {
		return fmt.Errorf("%w: %d", ErrBlocksOutstanding, used)
	}
	if p.closed.Swap(true) {
		return nil
	}
	return p.mapping.Close()
}

var global atomic.Pointer[Pool]

// Init creates the process-wide pool. It may be called once per
// process lifetime (or again after Destroy).
func Init(blockCount int, opts ...Option) error {
	p, err := New(blockCount, opts...)
	if err != nil {
		return err
	}
	if !global.CompareAndSwap(nil, p) {
		cerr := p.Close()
		if cerr != nil {
			return fmt.Errorf("pool: already initialized (cleanup failed: %v)", cerr)
		}
		return errors.New("pool: already initialized")
	}
	return nil
}

// Destroy tears down the process-wide pool.
func Destroy() error {
	p := global.Swap(nil)
	if p == nil {
		return ErrNotInitialized
	}
	return p.Close()
}

// Global returns the process-wide pool, or an error if Init has not
// been called.
func Global() (*Pool, error) {
	p := global.Load()
	if p == nil {
		return nil, ErrNotInitialized
	}
	return p, nil
}
