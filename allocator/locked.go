package allocator

import "sync"

// Locked serializes every call to the allocator it wraps. The allocators of
// this package do no locking of their own.
type Locked struct {
	mu     sync.Mutex
	parent Allocator
}

// NewLocked ...
func NewLocked(parent Allocator) *Locked {
	return &Locked{parent: parent}
}

// Unwrap ...
func (l *Locked) Unwrap() Allocator {
	return l.parent
}

// Alignment ...
func (l *Locked) Alignment() int {
	return l.parent.Alignment()
}

// Allocate ...
func (l *Locked) Allocate(n int) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.parent.Allocate(n)
}

// Deallocate ...
func (l *Locked) Deallocate(b []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Deallocate(l.parent, b)
}

// Reallocate ...
func (l *Locked) Reallocate(b *[]byte, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Reallocate(l.parent, b, n)
}

// Resize ...
func (l *Locked) Resize(b *[]byte, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Resize(l.parent, b, n)
}

// Owns ...
func (l *Locked) Owns(b []byte) Ternary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Owns(l.parent, b)
}

// OptimalAllocSize ...
func (l *Locked) OptimalAllocSize(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return OptimalAllocSize(l.parent, n)
}
