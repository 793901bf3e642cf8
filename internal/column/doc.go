// Package column implements the single-component columnar store: one
// logical array of T materialized as a two-level index over pool
// blocks.
//
// # Layout
//
// A store addresses elements through up to 84 index nodes, each holding
// 256 block slots. An element index decomposes as
//
//	node   = i / (perBlock * 256)
//	block  = (i / perBlock) % 256
//	offset = i % perBlock
//
// where perBlock = BlockSize / sizeof(T). Blocks are allocated lazily
// during Emplace; each block is initialized exactly once by the caller
// whose reservation covers the block's first element, and late joiners
// wait on the block slot.
//
// # Concurrency Model
//
// Readers never block on writers: a Reader binds the currently
// published block and keeps reading that snapshot even if a writer
// publishes a replacement. Writers exclude each other per block via a
// writer lock and update through an RCU shadow copy: first dereference
// copies the published block into a fresh pool block, all writes land
// in the shadow, and crossing a block boundary (or Close) publishes by
// atomically swapping the block slot. Displaced blocks queue for
// reclamation and return to the pool only at a quiescence point.
package column
