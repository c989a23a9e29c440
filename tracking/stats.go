package tracking

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats are the counters of one Tracker.
type Stats struct {
	Allocations   uint64
	Deallocations uint64
	Reallocations uint64
	Failures      uint64
	InvalidUse    uint64

	BytesAllocated uint64
	BytesFreed     uint64

	// Live is the number of outstanding allocations, LiveBytes their size.
	Live      int
	LiveBytes uint64
	// PeakBytes is the highest LiveBytes seen by this tracker. It does not
	// account for allocators nested below or above it.
	PeakBytes uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("allocs=%d frees=%d reallocs=%d failures=%d invalid=%d allocated=%s freed=%s live=%d (%s) peak=%s",
		s.Allocations, s.Deallocations, s.Reallocations, s.Failures, s.InvalidUse,
		humanize.IBytes(s.BytesAllocated), humanize.IBytes(s.BytesFreed),
		s.Live, humanize.IBytes(s.LiveBytes), humanize.IBytes(s.PeakBytes))
}

// Allocation is an outstanding allocation.
type Allocation struct {
	Addr uintptr
	Size int
}

func (a Allocation) String() string {
	return fmt.Sprintf("%#x (%s)", a.Addr, humanize.IBytes(uint64(a.Size)))
}
