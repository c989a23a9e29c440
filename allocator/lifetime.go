package allocator

import (
	"math"
	"unsafe"
)

// Destroyer is implemented by values that must release something before
// their memory is given back.
type Destroyer interface {
	Destroy()
}

// The helpers below place typed values in memory the garbage collector
// does not scan: T must not hold pointers to the Go heap.

func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func fitsAlignment[T any](a Allocator) bool {
	var zero T
	return int(unsafe.Alignof(zero)) <= a.Alignment()
}

func arrayBytes(n int, size int) int {
	if size != 0 && n > math.MaxInt/size {
		panicf("array of %d elements of %d bytes overflows", n, size)
	}
	return n * size
}

// bytesOf returns the allocation behind s, capacity included.
func bytesOf[T any](s []T) []byte {
	if cap(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), cap(s)*sizeOf[T]())
}

func arrayOf[T any](b []byte, n int) []T {
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}

func destroy[T any](s []T) {
	for i := range s {
		if d, ok := any(&s[i]).(Destroyer); ok {
			d.Destroy()
		}
	}
}

// Make allocates a zero T from a and runs the constructors on it.
// It returns nil when a can not supply the memory.
func Make[T any](a Allocator, ctors ...func(*T)) *T {
	if !fitsAlignment[T](a) {
		return nil
	}
	b := a.Allocate(max(sizeOf[T](), 1))
	if len(b) == 0 {
		return nil
	}

	p := (*T)(unsafe.Pointer(unsafe.SliceData(b)))
	var zero T
	*p = zero
	for _, ctor := range ctors {
		ctor(p)
	}
	return p
}

// Dispose destroys *p, gives its memory back to a and sets *p to nil.
// When a refuses the memory the value stays destroyed and *p is kept.
func Dispose[T any](a Allocator, p **T) bool {
	if *p == nil {
		return true
	}
	if d, ok := any(*p).(Destroyer); ok {
		d.Destroy()
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(*p)), max(sizeOf[T](), 1))
	if !Deallocate(a, b) {
		return false
	}
	*p = nil
	return true
}

// MakeArray allocates n zero elements of T from a, nil on failure.
func MakeArray[T any](a Allocator, n int) []T {
	if n <= 0 || !fitsAlignment[T](a) {
		return nil
	}
	size := sizeOf[T]()
	if size == 0 {
		return make([]T, n)
	}
	b := a.Allocate(arrayBytes(n, size))
	if len(b) == 0 {
		return nil
	}
	s := arrayOf[T](b, n)
	clear(s)
	return s
}

// ResizeArray changes the length of *s to n. New elements are zero,
// removed elements are destroyed first. The capacity of *s must be the
// one handed out by MakeArray or ResizeArray.
//
// Allocators able to resize in place are asked through Reallocate. Others
// get a new allocation of at least twice the old capacity and the elements
// are copied over.
func ResizeArray[T any](a Allocator, s *[]T, n int) bool {
	if n < 0 {
		panicf("negative array length %d", n)
	}
	old := *s
	if n == len(old) {
		return true
	}
	size := sizeOf[T]()
	if size == 0 {
		*s = make([]T, n)
		return true
	}
	if !fitsAlignment[T](a) {
		return false
	}

	if n < len(old) {
		destroy(old[n:])
		if n == 0 {
			if !Deallocate(a, bytesOf(old)) {
				return false
			}
			*s = nil
			return true
		}
		b := bytesOf(old)
		if Resize(a, &b, arrayBytes(n, size)) {
			*s = arrayOf[T](b, n)
			return true
		}
		*s = old[:n]
		return true
	}

	if n <= cap(old) {
		grown := old[:n]
		clear(grown[len(old):])
		*s = grown
		return true
	}
	if cap(old) == 0 {
		grown := MakeArray[T](a, n)
		if grown == nil {
			return false
		}
		*s = grown
		return true
	}

	if CanResize(a) {
		b := bytesOf(old)
		if !Reallocate(a, &b, arrayBytes(n, size)) {
			return false
		}
		grown := arrayOf[T](b, n)
		clear(grown[len(old):])
		*s = grown
		return true
	}

	newCap := max(n, 2*cap(old))
	b := a.Allocate(arrayBytes(newCap, size))
	if len(b) == 0 {
		newCap = n
		b = a.Allocate(arrayBytes(newCap, size))
		if len(b) == 0 {
			return false
		}
	}
	grown := arrayOf[T](b, newCap)[:n]
	copy(grown, old)
	clear(grown[len(old):])
	Deallocate(a, bytesOf(old))
	*s = grown
	return true
}

// DisposeArray destroys every element of *s, gives the memory back to a
// and sets *s to nil.
func DisposeArray[T any](a Allocator, s *[]T) bool {
	if cap(*s) == 0 {
		*s = nil
		return true
	}
	destroy(*s)
	if sizeOf[T]() != 0 && !Deallocate(a, bytesOf(*s)) {
		return false
	}
	*s = nil
	return true
}
