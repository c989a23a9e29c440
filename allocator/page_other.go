//go:build !linux && !darwin

package allocator

import "os"

// PageAllocator hands out page aligned memory from the Go heap on
// platforms without anonymous mappings.
type PageAllocator struct {
	SystemAllocator
}

// NewPageAllocator ...
func NewPageAllocator() *PageAllocator {
	return &PageAllocator{SystemAllocator{alignment: os.Getpagesize()}}
}

// OptimalAllocSize ...
func (p *PageAllocator) OptimalAllocSize(n int) int {
	if n <= 0 {
		return 0
	}
	return roundUp(n, p.alignment)
}

// Reallocate ...
func (p *PageAllocator) Reallocate(b *[]byte, n int) bool {
	return Reallocation(p, b, n)
}
