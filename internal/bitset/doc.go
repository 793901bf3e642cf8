// Package bitset implements a lazily-allocated atomic bitset whose
// capacity grows in pool-block-sized chunks.
//
// # Concurrency Model
//
// Get, Set, AllocateOne and GrowBitsTo are safe for concurrent use.
// The logical size only grows. Concurrent growers each request a block
// and race on a CAS of the size counter; only the winner publishes its
// block through the chunk's slot, and the losers return theirs to the
// pool. Accessors that see the new size before publication wait on the
// slot.
//
// The set-bit count is maintained on every transition and is exact
// after any completed operation (not necessarily mid-operation).
//
// # Iterators
//
// Two distinct forward iterators walk the set bits: Ones is stable and
// tolerates concurrent set/clear; ConsumingOnes claims each bit as it
// yields it, clearing the bit and decrementing the count in one step.
// They have different invariants and are deliberately separate types.
package bitset
