// Package mmap provides anonymous memory mappings for the block pool.
//
// # Overview
//
// The pool carves its entire slab out of one large anonymous mapping.
// Keeping the slab off the Go heap means the garbage collector never
// scans component data, which can reach multiple gigabytes.
//
// # Usage
//
//	m, err := mmap.MapAnon(poolBytes)
//	if err != nil { ... }
//	defer m.Close()
//
//	region := m.Bytes()
//
// # Platform Support
//
//   - Unix (Linux, macOS, BSD): mmap(2) with MAP_ANON|MAP_PRIVATE
//   - Windows: VirtualAlloc with MEM_RESERVE|MEM_COMMIT
//
// # Thread Safety
//
// Bytes is safe for concurrent access. Close is idempotent, but callers
// must ensure no goroutine touches the region after Close returns.
package mmap
