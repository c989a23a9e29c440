package allocator

// Arena is a bump allocator over one fixed region. Blocks can only be
// given back in the reverse order of their allocation.
type Arena struct {
	region    []byte
	top       int
	alignment int

	base     Allocator
	borrowed []byte
}

// NewArena creates an arena over region. The leading bytes of region that
// are not aligned are left unused.
func NewArena(region []byte, opts ...Option) (*Arena, error) {
	o, err := applyOptions(DefaultAlignment, opts)
	if err != nil {
		return nil, err
	}
	return &Arena{
		region:    alignRegion(region, o.alignment),
		alignment: o.alignment,
	}, nil
}

// NewArenaFrom creates an arena over size bytes borrowed from base.
// Close gives them back.
func NewArenaFrom(base Allocator, size int, opts ...Option) (*Arena, error) {
	region, err := borrow(base, size)
	if err != nil {
		return nil, err
	}
	a, err := NewArena(region, opts...)
	if err != nil {
		Deallocate(base, region)
		return nil, err
	}
	a.base = base
	a.borrowed = region
	return a, nil
}

// Alignment ...
func (a *Arena) Alignment() int {
	return a.alignment
}

// OptimalAllocSize ...
func (a *Arena) OptimalAllocSize(n int) int {
	if n <= 0 {
		return 0
	}
	return roundUp(n, a.alignment)
}

// Allocate ...
func (a *Arena) Allocate(n int) []byte {
	if n <= 0 {
		return nil
	}
	size := roundUp(n, a.alignment)
	if size > len(a.region)-a.top {
		return nil
	}
	b := a.region[a.top : a.top+n : a.top+n]
	a.top += size
	return b
}

func (a *Arena) isLast(off int, n int) bool {
	return off+roundUp(n, a.alignment) == a.top
}

func (a *Arena) offsetOf(b []byte) (int, bool) {
	off, ok := within(a.region[:a.top], b)
	invariant(ok, "arena: span %p (len %d) not allocated by this arena", b, len(b))
	return off, ok
}

// Deallocate succeeds only for the most recently allocated block.
func (a *Arena) Deallocate(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	off, ok := a.offsetOf(b)
	if !ok || !a.isLast(off, len(b)) {
		return false
	}
	a.top = off
	return true
}

// Resize shrinks any block in place. Growing works for the last block while
// the region has room, and for any block inside its alignment padding.
//
// Shrinking a block that is not the last one keeps its bytes reserved: the
// block can not be deallocated afterwards, even once it is on top, and
// only Reset or Close reclaim it.
func (a *Arena) Resize(b *[]byte, n int) bool {
	old := *b
	if len(old) == 0 || n <= 0 {
		return false
	}
	off, ok := a.offsetOf(old)
	if !ok {
		return false
	}

	oldSize := roundUp(len(old), a.alignment)
	newSize := roundUp(n, a.alignment)
	switch {
	case newSize == oldSize:
	case a.isLast(off, len(old)):
		if newSize > len(a.region)-off {
			return false
		}
		a.top = off + newSize
	case newSize < oldSize:
	default:
		return false
	}

	*b = a.region[off : off+n : off+n]
	return true
}

// Reallocate ...
func (a *Arena) Reallocate(b *[]byte, n int) bool {
	return Reallocation(a, b, n)
}

// Owns answers Yes for spans inside the allocated part of the region,
// alignment padding between blocks included.
func (a *Arena) Owns(b []byte) Ternary {
	if len(b) == 0 {
		return Yes
	}
	if _, ok := within(a.region[:a.top], b); ok {
		return Yes
	}
	return No
}

// Reset deallocates every block at once.
func (a *Arena) Reset() {
	a.top = 0
}

// Used returns the bytes consumed, alignment padding included.
func (a *Arena) Used() int {
	return a.top
}

// Available ...
func (a *Arena) Available() int {
	return len(a.region) - a.top
}

// Close returns the region to the base allocator it was borrowed from.
// The arena must not be used afterwards.
func (a *Arena) Close() error {
	err := giveBack(a.base, a.borrowed)
	a.region, a.top = nil, 0
	a.base, a.borrowed = nil, nil
	return err
}
