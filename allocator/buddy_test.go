package allocator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuddy(t *testing.T, size int, minChunkSize int) *Buddy {
	b, err := NewBuddyFrom(System, size, minChunkSize)
	require.NoError(t, err)
	return b
}

func (b *Buddy) offsetOf(s []byte) int {
	return int(addrOf(s) - addrOf(b.region))
}

func TestBuddyInit(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	assert.Equal(t, Order(3), b.MaxOrder())
	assert.Equal(t, uint32(7), b.minShift)
	assert.Equal(t, 1, b.bitmapSize)
	assert.Equal(t, 128, b.reservedSize)
	assert.Equal(t, 16, b.Alignment())

	assert.Equal(t, []uint32{128, 256, 512, buddyNullPtr}, b.buckets)
	assert.Equal(t, byte(0x16), b.region[0])
	assert.True(t, b.isBitSet(1))
	assert.True(t, b.isBitSet(2))
	assert.True(t, b.isBitSet(4))
}

func TestBuddyInitLargeBitmap(t *testing.T) {
	b := newTestBuddy(t, 1<<16, 8)

	assert.Equal(t, Order(13), b.MaxOrder())
	assert.Equal(t, 1<<10, b.bitmapSize)
	assert.Equal(t, 1<<10, b.reservedSize)
	assert.Equal(t, []int{1 << 10}, b.FreeChunks(7))
	assert.Nil(t, b.FreeChunks(6))
	assert.Equal(t, []int{1 << 15}, b.FreeChunks(12))
}

func TestBuddyNodeIndex(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	table := []struct {
		name     string
		off      uint32
		order    Order
		expected uint32
	}{
		{name: "root", off: 0, order: 3, expected: 1},
		{name: "left-half", off: 0, order: 2, expected: 2},
		{name: "right-half", off: 512, order: 2, expected: 3},
		{name: "first-quarter", off: 0, order: 1, expected: 4},
		{name: "last-quarter", off: 768, order: 1, expected: 7},
		{name: "first-leaf", off: 0, order: 0, expected: 8},
		{name: "second-leaf", off: 128, order: 0, expected: 9},
		{name: "last-leaf", off: 896, order: 0, expected: 15},
	}

	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			assert.Equal(t, e.expected, b.nodeIndex(e.off, e.order))
		})
	}
}

func TestBuddyOrderOf(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	table := []struct {
		size     int
		expected Order
	}{
		{size: 1, expected: 0},
		{size: 128, expected: 0},
		{size: 129, expected: 1},
		{size: 256, expected: 1},
		{size: 257, expected: 2},
		{size: 512, expected: 2},
		{size: 513, expected: 3},
	}
	for _, e := range table {
		assert.Equal(t, e.expected, b.OrderOf(e.size), "size %d", e.size)
	}

	assert.Equal(t, 128, b.ChunkSize(0))
	assert.Equal(t, 1024, b.ChunkSize(3))
}

func TestBuddyAllocateDeallocate_SameAddress(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	p1 := b.Allocate(1)
	require.Len(t, p1, 1)
	assert.Equal(t, 128, b.offsetOf(p1))

	assert.True(t, b.Deallocate(p1))
	assert.Equal(t, []uint32{128, 256, 512, buddyNullPtr}, b.buckets)
	assert.Equal(t, byte(0x16), b.region[0])

	p2 := b.Allocate(1)
	assert.Equal(t, addrOf(p1), addrOf(p2))
}

func TestBuddyCoalesceSiblings(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	p1 := b.Allocate(128)
	p2 := b.Allocate(1)
	p3 := b.Allocate(1)
	assert.Equal(t, 128, b.offsetOf(p1))
	assert.Equal(t, 256, b.offsetOf(p2))
	assert.Equal(t, 384, b.offsetOf(p3))
	assert.Nil(t, b.FreeChunks(0))
	assert.Nil(t, b.FreeChunks(1))

	assert.True(t, b.Deallocate(p2))
	assert.Equal(t, []int{256}, b.FreeChunks(0))

	assert.True(t, b.Deallocate(p3))
	assert.Nil(t, b.FreeChunks(0))
	assert.Equal(t, []int{256}, b.FreeChunks(1))
	assert.Equal(t, byte(0x06), b.region[0])

	p4 := b.Allocate(256)
	require.Len(t, p4, 256)
	assert.Equal(t, 256, b.offsetOf(p4))
}

func TestBuddyAllocate_Exhausted(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	var spans [][]byte
	for i := 0; i < 7; i++ {
		p := b.Allocate(100)
		require.Len(t, p, 100)
		spans = append(spans, p)
	}
	assert.Nil(t, b.Allocate(1))

	for _, p := range spans {
		assert.True(t, b.Deallocate(p))
	}
	assert.Equal(t, []uint32{128, 256, 512, buddyNullPtr}, b.buckets)
	assert.Equal(t, byte(0x16), b.region[0])
}

func TestBuddyAllocate_TooLarge(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	assert.Nil(t, b.Allocate(0))
	assert.Nil(t, b.Allocate(1024))
	assert.Nil(t, b.Allocate(600))

	p := b.Allocate(512)
	require.Len(t, p, 512)
	assert.Equal(t, 512, b.offsetOf(p))
}

func TestBuddyResize_ShrinkFreesTail(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	s := b.Allocate(512)
	require.Equal(t, 512, b.offsetOf(s))

	assert.True(t, b.Resize(&s, 256))
	assert.Len(t, s, 256)
	assert.Equal(t, 512, b.offsetOf(s))
	assert.Equal(t, []int{768, 256}, b.FreeChunks(1))

	other := b.Allocate(256)
	require.Len(t, other, 256)
	assert.Equal(t, 768, b.offsetOf(other))
	assert.True(t, b.offsetOf(other) >= b.offsetOf(s)+len(s))

	assert.True(t, b.Deallocate(s))
	assert.True(t, b.Deallocate(other))
	assert.Equal(t, []uint32{128, 256, 512, buddyNullPtr}, b.buckets)
}

func TestBuddyResize_ShrinkSeveralOrders(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	s := b.Allocate(500)
	assert.True(t, b.Resize(&s, 10))
	assert.Equal(t, []int{640, 128}, b.FreeChunks(0))
	assert.Equal(t, []int{768, 256}, b.FreeChunks(1))

	assert.True(t, b.Deallocate(s))
	assert.Equal(t, []uint32{128, 256, 512, buddyNullPtr}, b.buckets)
	assert.Equal(t, byte(0x16), b.region[0])
}

func TestBuddyResize_GrowWithinOrder(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	s := b.Allocate(130)
	before := addrOf(s)

	assert.True(t, b.Resize(&s, 256))
	assert.Len(t, s, 256)
	assert.Equal(t, before, addrOf(s))

	assert.False(t, b.Resize(&s, 257))
	assert.Len(t, s, 256)

	assert.False(t, b.Resize(&s, 0))
}

func TestBuddyResize_TooLargeLeavesListsUntouched(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	s := b.Allocate(300)
	require.Len(t, s, 300)
	assert.Equal(t, []uint32{128, 256, buddyNullPtr, buddyNullPtr}, b.buckets)

	for _, n := range []int{1024, math.MaxInt - 1, math.MaxInt} {
		assert.False(t, b.Resize(&s, n))
		assert.Len(t, s, 300)
		assert.Equal(t, []uint32{128, 256, buddyNullPtr, buddyNullPtr}, b.buckets)
	}
}

func TestBuddyReallocate_Moves(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	s := b.Allocate(100)
	for i := range s {
		s[i] = byte(i)
	}
	old := b.offsetOf(s)

	assert.True(t, b.Reallocate(&s, 300))
	assert.Len(t, s, 300)
	assert.NotEqual(t, old, b.offsetOf(s))
	for i := 0; i < 100; i++ {
		assert.Equal(t, byte(i), s[i])
	}

	assert.True(t, b.Reallocate(&s, 0))
	assert.Nil(t, s)
	assert.Equal(t, []uint32{128, 256, 512, buddyNullPtr}, b.buckets)
}

func TestBuddyOwns(t *testing.T) {
	b := newTestBuddy(t, 1024, 128)

	s := b.Allocate(64)
	assert.Equal(t, Yes, b.Owns(s))
	assert.Equal(t, Yes, b.Owns(nil))
	assert.Equal(t, No, b.Owns(b.region[:8]))
	assert.Equal(t, No, b.Owns(b.region[512:600]))
	assert.Equal(t, No, b.Owns(System.Allocate(8)))

	// the unused tail of an allocated chunk counts as owned
	off := b.offsetOf(s)
	assert.Equal(t, Yes, b.Owns(b.region[off+64:off+128]))

	assert.True(t, b.Deallocate(s))
	assert.Equal(t, No, b.Owns(s))
}

func TestNewBuddy_Errors(t *testing.T) {
	table := []struct {
		name         string
		region       []byte
		minChunkSize int
		opts         []Option
		expected     error
	}{
		{
			name:         "region-not-power-of-two",
			region:       System.Allocate(1000),
			minChunkSize: 128,
			expected:     ErrNotPowerOfTwo,
		},
		{
			name:         "chunk-not-power-of-two",
			region:       System.Allocate(1024),
			minChunkSize: 100,
			expected:     ErrNotPowerOfTwo,
		},
		{
			name:         "chunk-too-small",
			region:       System.Allocate(1024),
			minChunkSize: 4,
			expected:     ErrRegionTooSmall,
		},
		{
			name:         "single-chunk",
			region:       System.Allocate(128),
			minChunkSize: 128,
			expected:     ErrRegionTooSmall,
		},
		{
			name:         "alignment-above-chunk",
			region:       System.Allocate(1024),
			minChunkSize: 16,
			opts:         []Option{WithAlignment(32)},
			expected:     ErrBadAlignment,
		},
		{
			name:         "misaligned",
			region:       System.Allocate(2048)[1:1025],
			minChunkSize: 128,
			expected:     ErrMisaligned,
		},
	}

	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			b, err := NewBuddy(e.region, e.minChunkSize, e.opts...)
			assert.Nil(t, b)
			assert.ErrorIs(t, err, e.expected)
		})
	}
}

func TestBuddyFrom_CloseReturnsRegion(t *testing.T) {
	arena, err := NewArenaFrom(System, 4096)
	require.NoError(t, err)

	b, err := NewBuddyFrom(arena, 2048, 64)
	require.NoError(t, err)
	assert.Equal(t, 2048, arena.Used())

	assert.NoError(t, b.Close())
	assert.Equal(t, 0, arena.Used())
}

func TestBuddyFrom_BaseExhausted(t *testing.T) {
	arena, err := NewArenaFrom(System, 1024)
	require.NoError(t, err)

	b, err := NewBuddyFrom(arena, 2048, 64)
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrBorrowFailed)
}

func TestBuddyRandomized(t *testing.T) {
	b := newTestBuddy(t, 1<<16, 16)
	initBuckets := append([]uint32(nil), b.buckets...)
	initBitmap := append([]byte(nil), b.region[:b.bitmapSize]...)

	r := rand.New(rand.NewSource(42))
	var live [][]byte
	for i := 0; i < 5000; i++ {
		if len(live) > 0 && r.Intn(3) == 0 {
			k := r.Intn(len(live))
			assert.True(t, b.Deallocate(live[k]))
			live[k] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}

		n := 1 + r.Intn(2000)
		s := b.Allocate(n)
		if s == nil {
			continue
		}
		require.Len(t, s, n)
		require.Equal(t, 0, b.offsetOf(s)%b.ChunkSize(b.OrderOf(n)))
		require.Equal(t, uintptr(0), addrOf(s)%uintptr(b.Alignment()))
		for j := range s {
			s[j] = 0xAB
		}
		live = append(live, s)
	}

	for i, s := range live {
		for _, other := range live[i+1:] {
			a, c := b.offsetOf(s), b.offsetOf(other)
			require.True(t, a+len(s) <= c || c+len(other) <= a, "overlap at %d and %d", a, c)
		}
	}

	for _, s := range live {
		assert.True(t, b.Deallocate(s))
	}
	assert.Equal(t, initBuckets, b.buckets)
	assert.Equal(t, initBitmap, b.region[:b.bitmapSize])
}
