package allocator

// SystemAllocator hands out memory from the Go heap. Deallocate always
// succeeds, the memory is reclaimed by the garbage collector once the
// last span referring to it is gone.
type SystemAllocator struct {
	alignment int
}

// System is the shared SystemAllocator with DefaultAlignment.
var System = &SystemAllocator{alignment: DefaultAlignment}

// NewSystemAllocator returns a SystemAllocator aligned to alignment,
// which must be a power of two.
func NewSystemAllocator(alignment int) *SystemAllocator {
	if !isPowerOfTwo(alignment) {
		panicf("alignment %d is not a power of two", alignment)
	}
	return &SystemAllocator{alignment: alignment}
}

// Alignment ...
func (s *SystemAllocator) Alignment() int {
	return s.alignment
}

// Allocate ...
func (s *SystemAllocator) Allocate(n int) []byte {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, roundUp(n, s.alignment)+s.alignment-1)
	buf = alignRegion(buf, s.alignment)
	return buf[:n:n]
}

// Deallocate ...
func (s *SystemAllocator) Deallocate(b []byte) bool {
	return true
}

// Reallocate ...
func (s *SystemAllocator) Reallocate(b *[]byte, n int) bool {
	return Reallocation(s, b, n)
}

// Owns is always Unknown for non-empty spans, the heap is shared with the
// rest of the program.
func (s *SystemAllocator) Owns(b []byte) Ternary {
	if len(b) == 0 {
		return Yes
	}
	return Unknown
}
