package allocator

// DefaultAlignment is the alignment of the largest scalar type on the
// supported platforms. Allocators use it unless configured otherwise.
const DefaultAlignment = 16

// Ternary is the answer of a conservative query.
type Ternary int8

const (
	// No ...
	No Ternary = iota
	// Yes ...
	Yes
	// Unknown means the allocator can not answer cheaply.
	Unknown
)

func (t Ternary) String() string {
	switch t {
	case No:
		return "no"
	case Yes:
		return "yes"
	default:
		return "unknown"
	}
}

// Allocator is the minimal contract every allocator implements.
//
// Allocate returns a span of exactly n bytes whose first byte is aligned to
// Alignment(), or nil. Asking for zero bytes and running out of memory are
// reported the same way, so callers handle a nil span as the failure path.
type Allocator interface {
	Alignment() int
	Allocate(n int) []byte
}

// Owner is implemented by allocators that can tell whether a span belongs
// to them. The empty span is always owned.
type Owner interface {
	Owns(b []byte) Ternary
}

// OptimalSizer reports how many bytes a request of n bytes really consumes.
// The result is 0 for n == 0 and never decreases as n grows.
type OptimalSizer interface {
	OptimalAllocSize(n int) int
}

// Deallocator releases a span. The empty span is a successful no-op.
type Deallocator interface {
	Deallocate(b []byte) bool
}

// Reallocator changes the size of *b, moving it if needed.
// *b is only written on success.
type Reallocator interface {
	Reallocate(b *[]byte, n int) bool
}

// Resizer changes the size of *b in place, it never moves or copies data.
// *b is only written on success.
type Resizer interface {
	Resize(b *[]byte, n int) bool
}

// Wrapper is implemented by decorators. Unwrap returns the allocator
// they forward to.
type Wrapper interface {
	Unwrap() Allocator
}

// CanResize reports whether the allocator behind a, looking through
// decorators, resizes in place.
func CanResize(a Allocator) bool {
	for {
		w, ok := a.(Wrapper)
		if !ok {
			break
		}
		a = w.Unwrap()
	}
	_, ok := a.(Resizer)
	return ok
}

// Owns asks a whether it owns b, Unknown when a can not tell.
func Owns(a Allocator, b []byte) Ternary {
	if len(b) == 0 {
		return Yes
	}
	if o, ok := a.(Owner); ok {
		return o.Owns(b)
	}
	return Unknown
}

// OptimalAllocSize returns the bytes consumed by a request of n bytes,
// rounding n up to the alignment when a does not say otherwise.
func OptimalAllocSize(a Allocator, n int) int {
	if s, ok := a.(OptimalSizer); ok {
		return s.OptimalAllocSize(n)
	}
	if n <= 0 {
		return 0
	}
	return roundUp(n, a.Alignment())
}

// Deallocate releases b through a, false when a can not deallocate.
func Deallocate(a Allocator, b []byte) bool {
	if len(b) == 0 {
		return true
	}
	if d, ok := a.(Deallocator); ok {
		return d.Deallocate(b)
	}
	return false
}

// Resize resizes *b in place through a, false when a can not resize.
func Resize(a Allocator, b *[]byte, n int) bool {
	if r, ok := a.(Resizer); ok {
		return r.Resize(b, n)
	}
	return false
}

// Reallocate uses a's own Reallocate when it has one, otherwise it falls
// back to Reallocation built from the rest of the contract.
func Reallocate(a Allocator, b *[]byte, n int) bool {
	if r, ok := a.(Reallocator); ok {
		return r.Reallocate(b, n)
	}
	return Reallocation(a, b, n)
}

// Reallocation is the generic reallocate built on Allocate, Resize and
// Deallocate. Concrete allocators use it to implement Reallocator.
func Reallocation(a Allocator, b *[]byte, n int) bool {
	if n < 0 {
		panicf("negative reallocation size %d", n)
	}

	old := *b
	switch {
	case len(old) == 0 && n == 0:
		return true

	case len(old) == 0:
		nb := a.Allocate(n)
		if len(nb) == 0 {
			return false
		}
		*b = nb
		return true

	case n == 0:
		if !Deallocate(a, old) {
			return false
		}
		*b = nil
		return true

	case len(old) == n:
		return true
	}

	if Resize(a, b, n) {
		return true
	}

	nb := a.Allocate(n)
	if len(nb) == 0 {
		return false
	}
	copy(nb, old)
	// a block that can not be given back (e.g. a non-top arena block)
	// stays reserved until its allocator is reset or closed
	Deallocate(a, old)
	*b = nb
	return true
}
