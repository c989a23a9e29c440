package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemAllocator(t *testing.T) {
	table := []struct {
		name      string
		alloc     *SystemAllocator
		alignment int
	}{
		{name: "default", alloc: System, alignment: DefaultAlignment},
		{name: "byte", alloc: NewSystemAllocator(1), alignment: 1},
		{name: "cache-line", alloc: NewSystemAllocator(64), alignment: 64},
		{name: "page", alloc: NewSystemAllocator(4096), alignment: 4096},
	}

	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			assert.Equal(t, e.alignment, e.alloc.Alignment())
			for _, n := range []int{1, 3, 64, 1000} {
				b := e.alloc.Allocate(n)
				require.Len(t, b, n)
				assert.Equal(t, n, cap(b))
				assert.Equal(t, uintptr(0), addrOf(b)%uintptr(e.alignment))
				assert.True(t, e.alloc.Deallocate(b))
			}
		})
	}
}

func TestNewSystemAllocator_BadAlignment(t *testing.T) {
	assert.Panics(t, func() {
		NewSystemAllocator(24)
	})
}

func TestSystemAllocator_Reallocate(t *testing.T) {
	var b []byte
	require.True(t, System.Reallocate(&b, 5))
	copy(b, "hello")

	require.True(t, System.Reallocate(&b, 40))
	assert.Len(t, b, 40)
	assert.Equal(t, "hello", string(b[:5]))

	require.True(t, System.Reallocate(&b, 2))
	assert.Equal(t, "he", string(b))

	require.True(t, System.Reallocate(&b, 0))
	assert.Nil(t, b)
}

func TestSystemAllocator_Owns(t *testing.T) {
	assert.Equal(t, Yes, System.Owns(nil))
	assert.Equal(t, Unknown, System.Owns(System.Allocate(8)))
	assert.Equal(t, Unknown, System.Owns(make([]byte, 8)))
}
