//go:build linux || darwin

package allocator

import (
	"golang.org/x/sys/unix"
)

// PageAllocator maps anonymous memory straight from the operating system.
// Every allocation occupies whole pages and Deallocate unmaps them.
type PageAllocator struct {
	pageSize int
}

// NewPageAllocator ...
func NewPageAllocator() *PageAllocator {
	return &PageAllocator{pageSize: unix.Getpagesize()}
}

// Alignment is the page size.
func (p *PageAllocator) Alignment() int {
	return p.pageSize
}

// OptimalAllocSize ...
func (p *PageAllocator) OptimalAllocSize(n int) int {
	if n <= 0 {
		return 0
	}
	return roundUp(n, p.pageSize)
}

// Allocate ...
func (p *PageAllocator) Allocate(n int) []byte {
	if n <= 0 {
		return nil
	}
	data, err := unix.Mmap(-1, 0, roundUp(n, p.pageSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil
	}
	return data[:n:n]
}

// Deallocate unmaps the pages behind b, which must be a span returned by
// Allocate or Reallocate.
func (p *PageAllocator) Deallocate(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	invariant(int(addrOf(b))%p.pageSize == 0, "page allocator: span %p is not page aligned", b)
	return unix.Munmap(span(b, roundUp(len(b), p.pageSize))) == nil
}

// Resize changes the length of b inside the pages it already maps.
func (p *PageAllocator) Resize(b *[]byte, n int) bool {
	old := *b
	if len(old) == 0 || n <= 0 {
		return false
	}
	if roundUp(n, p.pageSize) != roundUp(len(old), p.pageSize) {
		return false
	}
	*b = span(old, n)
	return true
}

// Reallocate ...
func (p *PageAllocator) Reallocate(b *[]byte, n int) bool {
	return Reallocation(p, b, n)
}
