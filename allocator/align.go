package allocator

import (
	"fmt"
	"math"
	"math/bits"
	"unsafe"
)

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// roundUp rounds n up to a multiple of the power of two a.
// Overflow is a broken precondition, not an allocation failure.
func roundUp(n int, a int) int {
	mask := a - 1
	if n > math.MaxInt-mask {
		panicf("size %d overflows when rounded up to %d", n, a)
	}
	return (n + mask) &^ mask
}

func log2(n int) uint32 {
	return uint32(bits.Len(uint(n)) - 1)
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// alignRegion drops the leading bytes of region so that it starts at a
// multiple of alignment.
func alignRegion(region []byte, alignment int) []byte {
	if len(region) == 0 {
		return region
	}
	addr := addrOf(region)
	mask := uintptr(alignment - 1)
	skip := int(((addr + mask) &^ mask) - addr)
	if skip > len(region) {
		return region[:0]
	}
	return region[skip:]
}

// within reports whether b lies entirely inside region and returns the
// offset of b in region.
func within(region []byte, b []byte) (int, bool) {
	if len(region) == 0 {
		return 0, false
	}
	start := addrOf(region)
	p := addrOf(b)
	if p < start || p >= start+uintptr(len(region)) {
		return 0, false
	}
	off := int(p - start)
	if len(b) > len(region)-off {
		return 0, false
	}
	return off, true
}

func panicf(fmsg string, args ...interface{}) {
	panic(fmt.Errorf(fmsg, args...))
}

// span returns the n bytes starting at the first byte of b. The caller
// guarantees that those bytes belong to the same allocation as b.
func span(b []byte, n int) []byte {
	return unsafe.Slice(unsafe.SliceData(b), n)
}
