// Package pool implements the fixed-block memory pool that underlies
// every buffer in the storage engine.
//
// # Concurrency Model
//
// The pool supports concurrent Request/Release from any goroutine. The
// free list is a LIFO stack guarded by a mutex; admission is controlled
// by a weighted semaphore so that Request blocks (rather than fails)
// when the pool is exhausted. A rate-limited diagnostic is logged while
// callers are waiting on an empty pool.
//
// # Memory Management
//
// All blocks are carved out of a single anonymous mapping created at
// construction time, so component data lives off the Go heap and is
// never scanned by the garbage collector. Blocks are recycled without
// being cleared; callers own initialization.
//
// # Process-Wide Pool
//
// Block pointers flow through every layer of the engine, so a single
// process-wide pool is supported via explicit Init/Destroy endpoints.
// Use before Init fails loudly. Instance pools via New are preferred in
// tests.
package pool
