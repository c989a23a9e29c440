// Package tracking wraps an allocator to count what goes through it.
package tracking

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/QuangTung97/memkit/allocator"
)

// ErrLeaked is returned by Leaks when allocations are still outstanding.
var ErrLeaked = errors.New("tracking: outstanding allocations")

// Tracker is an allocator decorator. It records every outstanding
// allocation, keeps Stats and Prometheus metrics, and rejects spans it did
// not hand out before they reach the wrapped allocator.
//
// A Tracker is not safe for concurrent use. Put it under allocator.Locked
// when it is shared.
type Tracker struct {
	name   string
	parent allocator.Allocator
	logger log.Logger

	live    map[uintptr]int
	stats   Stats
	metrics trackerMetrics
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger invalid use and leaks are reported to.
func WithLogger(logger log.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithMetrics makes the tracker write its series to m.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m.forTracker(t.name)
	}
}

// New wraps parent in a Tracker called name.
func New(name string, parent allocator.Allocator, opts ...Option) *Tracker {
	t := &Tracker{
		name:   name,
		parent: parent,
		logger: log.NewNopLogger(),
		live:   make(map[uintptr]int),
	}
	t.metrics = NewMetrics(nil).forTracker(name)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func addrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func hexAddr(b []byte) string {
	return fmt.Sprintf("%#x", addrOf(b))
}

// Name ...
func (t *Tracker) Name() string {
	return t.name
}

// Parent returns the wrapped allocator.
func (t *Tracker) Parent() allocator.Allocator {
	return t.parent
}

// Unwrap returns the wrapped allocator.
func (t *Tracker) Unwrap() allocator.Allocator {
	return t.parent
}

// Stats returns a copy of the counters.
func (t *Tracker) Stats() Stats {
	return t.stats
}

func (t *Tracker) add(b []byte) {
	t.live[addrOf(b)] = len(b)
	t.stats.Live++
	t.grow(len(b))
}

func (t *Tracker) remove(b []byte) {
	delete(t.live, addrOf(b))
	t.stats.Live--
	t.shrink(len(b))
}

func (t *Tracker) grow(n int) {
	t.stats.BytesAllocated += uint64(n)
	t.stats.LiveBytes += uint64(n)
	if t.stats.LiveBytes > t.stats.PeakBytes {
		t.stats.PeakBytes = t.stats.LiveBytes
	}
	t.metrics.liveBytes.Add(float64(n))
}

func (t *Tracker) shrink(n int) {
	t.stats.BytesFreed += uint64(n)
	t.stats.LiveBytes -= uint64(n)
	t.metrics.liveBytes.Sub(float64(n))
}

func (t *Tracker) resized(old int, n int) {
	if n > old {
		t.grow(n - old)
	} else {
		t.shrink(old - n)
	}
}

func (t *Tracker) failed() {
	t.stats.Failures++
	t.metrics.failures.Inc()
}

// check reports whether b is exactly an outstanding allocation. Anything
// else is logged as invalid use.
func (t *Tracker) check(op string, b []byte) bool {
	size, ok := t.live[addrOf(b)]
	if ok && size == len(b) {
		return true
	}

	t.stats.InvalidUse++
	t.metrics.invalidUse.Inc()
	if ok {
		level.Error(t.logger).Log("msg", "span length does not match its allocation", "tracker", t.name,
			"op", op, "addr", hexAddr(b), "len", len(b), "allocated", size)
	} else {
		level.Error(t.logger).Log("msg", "span was not allocated through this tracker", "tracker", t.name,
			"op", op, "addr", hexAddr(b), "len", len(b))
	}
	return false
}

// Alignment ...
func (t *Tracker) Alignment() int {
	return t.parent.Alignment()
}

// OptimalAllocSize ...
func (t *Tracker) OptimalAllocSize(n int) int {
	return allocator.OptimalAllocSize(t.parent, n)
}

// Allocate ...
func (t *Tracker) Allocate(n int) []byte {
	if n <= 0 {
		return nil
	}
	b := t.parent.Allocate(n)
	if len(b) == 0 {
		t.failed()
		return nil
	}
	t.stats.Allocations++
	t.metrics.allocations.Inc()
	t.add(b)
	return b
}

// Deallocate rejects spans it does not know about without passing them on.
func (t *Tracker) Deallocate(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	if !t.check("deallocate", b) {
		return false
	}
	if !allocator.Deallocate(t.parent, b) {
		return false
	}
	t.stats.Deallocations++
	t.metrics.deallocations.Inc()
	t.remove(b)
	return true
}

// Resize ...
func (t *Tracker) Resize(b *[]byte, n int) bool {
	old := *b
	if len(old) == 0 || !t.check("resize", old) {
		return false
	}
	if !allocator.Resize(t.parent, b, n) {
		return false
	}
	t.live[addrOf(*b)] = n
	t.resized(len(old), n)
	return true
}

// Reallocate ...
func (t *Tracker) Reallocate(b *[]byte, n int) bool {
	old := *b
	if len(old) != 0 && !t.check("reallocate", old) {
		return false
	}
	if !allocator.Reallocate(t.parent, b, n) {
		if n > len(old) {
			t.failed()
		}
		return false
	}

	nb := *b
	switch {
	case len(old) == len(nb) && addrOf(old) == addrOf(nb):
		return true
	case len(old) == 0:
		t.stats.Allocations++
		t.metrics.allocations.Inc()
		t.add(nb)
	case len(nb) == 0:
		t.stats.Deallocations++
		t.metrics.deallocations.Inc()
		t.remove(old)
	default:
		t.stats.Reallocations++
		delete(t.live, addrOf(old))
		t.live[addrOf(nb)] = len(nb)
		t.resized(len(old), len(nb))
	}
	return true
}

// Owns answers for outstanding allocations itself and asks the wrapped
// allocator about everything else.
func (t *Tracker) Owns(b []byte) allocator.Ternary {
	if len(b) == 0 {
		return allocator.Yes
	}
	if size, ok := t.live[addrOf(b)]; ok && len(b) <= size {
		return allocator.Yes
	}
	return allocator.Owns(t.parent, b)
}

// Outstanding returns the allocations not given back yet, by address.
func (t *Tracker) Outstanding() []Allocation {
	result := make([]Allocation, 0, len(t.live))
	for addr, size := range t.live {
		result = append(result, Allocation{Addr: addr, Size: size})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Addr < result[j].Addr
	})
	return result
}

// Leaks logs every outstanding allocation and returns an error wrapping
// ErrLeaked when there is at least one.
func (t *Tracker) Leaks() error {
	leaks := t.Outstanding()
	if len(leaks) == 0 {
		return nil
	}
	for _, a := range leaks {
		level.Warn(t.logger).Log("msg", "outstanding allocation", "tracker", t.name, "allocation", a)
	}
	return errors.Wrapf(ErrLeaked, "%s: %d allocations, %d bytes", t.name, len(leaks), t.stats.LiveBytes)
}
