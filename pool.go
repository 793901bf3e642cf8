package ecstore

import (
	"log/slog"

	"github.com/neketka/ecstore/internal/column"
	"github.com/neketka/ecstore/internal/pool"
)

const (
	// BlockSize is the size in bytes of every pool block.
	BlockSize = pool.BlockSize
	// MaxIndicesPerStore is the number of index nodes per column store.
	MaxIndicesPerStore = column.MaxIndices
)

// Pool is a fixed slab of blocks shared by every column of every
// storage bound to it.
type Pool struct {
	inner *pool.Pool
}

// PoolStats is a snapshot of pool usage.
type PoolStats struct {
	BlockCount int
	InUse      int64
	HighWater  int64
}

// NewPool creates a private pool of blockCount blocks.
func NewPool(blockCount int, logger *slog.Logger) (*Pool, error) {
	var opts []pool.Option
	if logger != nil {
		opts = append(opts, pool.WithLogger(logger))
	}
	p, err := pool.New(blockCount, opts...)
	if err != nil {
		return nil, err
	}
	return &Pool{inner: p}, nil
}

// Stats returns a snapshot of pool usage.
func (p *Pool) Stats() PoolStats {
	s := p.inner.Stats()
	return PoolStats{
		BlockCount: s.BlockCount,
		InUse:      s.InUse,
		HighWater:  s.HighWater,
	}
}

// Close unmaps the pool's slab. Every block must have been returned.
func (p *Pool) Close() error {
	return p.inner.Close()
}

// InitPool creates the process-wide pool used by storages constructed
// without WithPool. Call once near process start.
func InitPool(blockCount int) error {
	return pool.Init(blockCount)
}

// DestroyPool tears down the process-wide pool.
func DestroyPool() error {
	return pool.Destroy()
}
