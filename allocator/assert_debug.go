//go:build debug

package allocator

// debugChecks turns on the assertions that cost more than O(1).
const debugChecks = true

func invariant(ok bool, fmsg string, args ...interface{}) {
	if !ok {
		panicf(fmsg, args...)
	}
}
