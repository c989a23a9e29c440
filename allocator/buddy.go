package allocator

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/pkg/errors"
)

const (
	buddyNullPtr uint32 = math.MaxUint32

	// buddyListHeadSize is the room a free chunk needs for its list links.
	buddyListHeadSize = 8

	buddyMaxRegion = 1 << 31
)

// Order is the level of a chunk in the buddy tree. A chunk of order k is
// minChunkSize << k bytes long.
type Order uint32

// Buddy is a binary buddy allocator over a power of two region.
//
// Chunks of the same order are kept in intrusive doubly linked free lists
// whose links live in the first 8 bytes of the free chunks. Every internal
// node of the implicit chunk tree owns one bit of a bitmap stored at the
// start of the region: the bit is the xor of the "in use" state of the
// node's two children, a child counting as in use when it is allocated or
// split. Freeing a chunk flips its parent's bit, a resulting 0 means the
// buddy is free too and the pair coalesces.
type Buddy struct {
	region    []byte
	minShift  uint32
	maxOrder  Order
	alignment int

	buckets      []uint32
	bitmapSize   int
	reservedSize int

	base     Allocator
	borrowed []byte
}

// NewBuddy creates a buddy allocator over region, whose length must be a
// power of two and at least twice minChunkSize. The bitmap takes the
// smallest chunk able to hold it at the start of region.
func NewBuddy(region []byte, minChunkSize int, opts ...Option) (*Buddy, error) {
	if !isPowerOfTwo(len(region)) {
		return nil, errors.Wrapf(ErrNotPowerOfTwo, "region size %d", len(region))
	}
	if !isPowerOfTwo(minChunkSize) {
		return nil, errors.Wrapf(ErrNotPowerOfTwo, "min chunk size %d", minChunkSize)
	}
	if minChunkSize < buddyListHeadSize {
		return nil, errors.Wrapf(ErrRegionTooSmall, "min chunk size %d is below %d", minChunkSize, buddyListHeadSize)
	}
	if len(region) < 2*minChunkSize {
		return nil, errors.Wrapf(ErrRegionTooSmall, "region size %d for min chunk size %d", len(region), minChunkSize)
	}
	if len(region) > buddyMaxRegion {
		return nil, errors.Wrapf(ErrRegionTooLarge, "region size %d", len(region))
	}

	o, err := applyOptions(min(minChunkSize, DefaultAlignment), opts)
	if err != nil {
		return nil, err
	}
	if o.alignment > minChunkSize {
		return nil, errors.Wrapf(ErrBadAlignment, "alignment %d above min chunk size %d", o.alignment, minChunkSize)
	}
	if int(addrOf(region))%o.alignment != 0 {
		return nil, errors.Wrapf(ErrMisaligned, "region at %p for alignment %d", region, o.alignment)
	}

	b := &Buddy{
		region:    region,
		minShift:  log2(minChunkSize),
		maxOrder:  Order(log2(len(region) / minChunkSize)),
		alignment: o.alignment,
	}
	b.init()
	return b, nil
}

// NewBuddyFrom creates a buddy allocator over size bytes borrowed from base.
func NewBuddyFrom(base Allocator, size int, minChunkSize int, opts ...Option) (*Buddy, error) {
	region, err := borrow(base, size)
	if err != nil {
		return nil, err
	}
	b, err := NewBuddy(region, minChunkSize, opts...)
	if err != nil {
		Deallocate(base, region)
		return nil, err
	}
	b.base = base
	b.borrowed = region
	return b, nil
}

func (b *Buddy) init() {
	b.buckets = make([]uint32, b.maxOrder+1)
	for i := range b.buckets {
		b.buckets[i] = buddyNullPtr
	}

	b.bitmapSize = (1<<b.maxOrder + 7) >> 3
	clear(b.region[:b.bitmapSize])

	// the root is never free: its leftmost descendant holds the bitmap
	reserved := b.OrderOf(b.bitmapSize)
	b.reservedSize = b.ChunkSize(reserved)
	b.split(0, b.maxOrder, reserved)
}

// MaxOrder is the order of the whole region.
func (b *Buddy) MaxOrder() Order {
	return b.maxOrder
}

// ChunkSize ...
func (b *Buddy) ChunkSize(o Order) int {
	return 1 << (b.minShift + uint32(o))
}

// OrderOf returns the order of the smallest chunk holding n bytes.
func (b *Buddy) OrderOf(n int) Order {
	chunks := (n + 1<<b.minShift - 1) >> b.minShift
	if chunks <= 1 {
		return 0
	}
	return Order(bits.Len(uint(chunks - 1)))
}

// nodeIndex is the position of the chunk (off, o) in the implicit tree,
// numbered from 1 at the root, level by level.
func (b *Buddy) nodeIndex(off uint32, o Order) uint32 {
	return 1<<(b.maxOrder-o) + off>>(b.minShift+uint32(o))
}

// toggleBit flips the bit shared by the chunk (off, o) and its buddy and
// reports whether it is now set, that is whether exactly one of the two
// is in use.
func (b *Buddy) toggleBit(off uint32, o Order) bool {
	index := b.nodeIndex(off, o) >> 1
	mask := byte(1 << (index & 0x7))
	b.region[index>>3] ^= mask
	return b.region[index>>3]&mask != 0
}

func (b *Buddy) isBitSet(index uint32) bool {
	return b.region[index>>3]&(1<<(index&0x7)) != 0
}

func (b *Buddy) next(off uint32) uint32 {
	return binary.LittleEndian.Uint32(b.region[off:])
}

func (b *Buddy) prev(off uint32) uint32 {
	return binary.LittleEndian.Uint32(b.region[off+4:])
}

func (b *Buddy) setNext(off uint32, next uint32) {
	binary.LittleEndian.PutUint32(b.region[off:], next)
}

func (b *Buddy) setPrev(off uint32, prev uint32) {
	binary.LittleEndian.PutUint32(b.region[off+4:], prev)
}

func (b *Buddy) addListHead(o Order, off uint32) {
	root := b.buckets[o]
	if root != buddyNullPtr {
		b.setPrev(root, off)
	}
	b.setNext(off, root)
	b.setPrev(off, buddyNullPtr)
	b.buckets[o] = off
}

func (b *Buddy) removeListHead(o Order, off uint32) {
	next, prev := b.next(off), b.prev(off)
	if next != buddyNullPtr {
		b.setPrev(next, prev)
	}
	if prev != buddyNullPtr {
		b.setNext(prev, next)
	} else {
		b.buckets[o] = next
	}
}

func (b *Buddy) contentOfList(o Order) []uint32 {
	var result []uint32
	for off := b.buckets[o]; off != buddyNullPtr; off = b.next(off) {
		result = append(result, off)
	}
	return result
}

// split breaks the in use chunk (off, from) down to order to. The left
// halves stay in use, the right halves go to the free lists.
func (b *Buddy) split(off uint32, from Order, to Order) {
	for o := from; o > to; o-- {
		right := off + uint32(b.ChunkSize(o-1))
		b.addListHead(o-1, right)
		b.toggleBit(right, o-1)
	}
}

// getChunk takes a free chunk of order o, splitting larger chunks when
// the free list of o is empty.
func (b *Buddy) getChunk(o Order) (uint32, bool) {
	if off := b.buckets[o]; off != buddyNullPtr {
		b.removeListHead(o, off)
		if o < b.maxOrder {
			b.toggleBit(off, o)
		}
		return off, true
	}
	if o == b.maxOrder {
		return 0, false
	}

	off, ok := b.getChunk(o + 1)
	if !ok {
		return 0, false
	}
	b.split(off, o+1, o)
	return off, true
}

// putChunk frees the chunk (off, o), coalescing it with its buddy for as
// long as the buddy is free.
func (b *Buddy) putChunk(off uint32, o Order) {
	for o < b.maxOrder {
		if b.toggleBit(off, o) {
			break
		}
		buddy := off ^ uint32(b.ChunkSize(o))
		b.removeListHead(o, buddy)
		off &= buddy
		o++
	}
	b.addListHead(o, off)
}

// overlapsFree reports whether [off, end) shares a byte with a free chunk
// or with the bitmap chunk. It walks every free list.
func (b *Buddy) overlapsFree(off uint32, end uint32) bool {
	if off < uint32(b.reservedSize) {
		return true
	}
	for o := Order(0); o <= b.maxOrder; o++ {
		size := uint32(b.ChunkSize(o))
		for c := b.buckets[o]; c != buddyNullPtr; c = b.next(c) {
			if c < end && off < c+size {
				return true
			}
		}
	}
	return false
}

// Alignment ...
func (b *Buddy) Alignment() int {
	return b.alignment
}

// OptimalAllocSize is the chunk size of the order serving n, 0 when n can
// not be served.
func (b *Buddy) OptimalAllocSize(n int) int {
	if n <= 0 || n >= len(b.region) {
		return 0
	}
	return b.ChunkSize(b.OrderOf(n))
}

// Allocate ...
func (b *Buddy) Allocate(n int) []byte {
	if n <= 0 || n >= len(b.region) {
		return nil
	}
	off, ok := b.getChunk(b.OrderOf(n))
	if !ok {
		return nil
	}
	return b.region[off : int(off)+n : int(off)+n]
}

func (b *Buddy) chunkOf(s []byte) (uint32, Order, bool) {
	off, ok := within(b.region, s)
	o := b.OrderOf(len(s))
	if !ok || off < b.reservedSize || off&(b.ChunkSize(o)-1) != 0 {
		invariant(false, "buddy: span %p (len %d) is not a chunk of this allocator", s, len(s))
		return 0, 0, false
	}
	if debugChecks {
		invariant(!b.overlapsFree(uint32(off), uint32(off+len(s))),
			"buddy: double free of chunk at offset %d", off)
	}
	return uint32(off), o, true
}

// Deallocate ...
func (b *Buddy) Deallocate(s []byte) bool {
	if len(s) == 0 {
		return true
	}
	off, o, ok := b.chunkOf(s)
	if !ok {
		return false
	}
	b.putChunk(off, o)
	return true
}

// Resize changes the length of *s inside its chunk. Shrinking below half
// the chunk splits off the unused tail and frees it. Growing past the
// chunk fails.
func (b *Buddy) Resize(s *[]byte, n int) bool {
	old := *s
	if len(old) == 0 || n <= 0 || n >= len(b.region) {
		return false
	}
	off, o, ok := b.chunkOf(old)
	if !ok {
		return false
	}
	newOrder := b.OrderOf(n)
	if newOrder > o {
		return false
	}
	b.split(off, o, newOrder)
	*s = b.region[off : int(off)+n : int(off)+n]
	return true
}

// Reallocate ...
func (b *Buddy) Reallocate(s *[]byte, n int) bool {
	return Reallocation(b, s, n)
}

// Owns answers Yes for spans that touch no free chunk and not the bitmap.
// That includes the unused tail of an allocated chunk and spans over two
// neighbouring allocated chunks. It walks the free lists, so it costs
// O(free chunks).
func (b *Buddy) Owns(s []byte) Ternary {
	if len(s) == 0 {
		return Yes
	}
	off, ok := within(b.region, s)
	if !ok || b.overlapsFree(uint32(off), uint32(off+len(s))) {
		return No
	}
	return Yes
}

// FreeChunks returns the offsets of the free chunks of order o.
func (b *Buddy) FreeChunks(o Order) []int {
	var result []int
	for _, off := range b.contentOfList(o) {
		result = append(result, int(off))
	}
	return result
}

// Close returns the region to the base allocator it was borrowed from.
func (b *Buddy) Close() error {
	err := giveBack(b.base, b.borrowed)
	b.region, b.buckets = nil, nil
	b.base, b.borrowed = nil, nil
	return err
}
