// Package allocator implements manual memory allocators behind one small
// contract.
//
// Every allocator hands out []byte spans with Allocate and reports its
// alignment. Everything else is optional and probed at run time: Owns,
// OptimalAllocSize, Deallocate, Resize and Reallocate are interfaces of
// their own, and the package functions of the same names fall back to a
// documented default when an allocator does not implement one.
//
// The allocators are SystemAllocator (Go heap), PageAllocator (anonymous
// mappings), Arena (bump), Pool (fixed size blocks) and Buddy (binary
// buddy system). Arena, Pool and Buddy work over a region that is either
// given to them or borrowed from a base allocator and given back by Close,
// so they nest into hierarchies.
//
// None of them is safe for concurrent use. Wrap one in Locked when it is
// shared between goroutines.
//
// Building with the debug tag turns invalid use (foreign spans, double
// frees) into panics. Without it such calls return false when they can be
// detected cheaply and are undefined otherwise.
package allocator
