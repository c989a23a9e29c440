//go:build debug

package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebug_ForeignSpan(t *testing.T) {
	foreign := System.Allocate(16)

	table := []struct {
		name  string
		alloc Deallocator
	}{
		{name: "arena", alloc: newTestArena(t, 256)},
		{name: "pool", alloc: newTestPool(t, 16, 4)},
		{name: "buddy", alloc: newTestBuddy(t, 1024, 16)},
	}

	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			assert.Panics(t, func() {
				e.alloc.Deallocate(foreign)
			})
		})
	}
}

func TestDebug_PoolDoubleFree(t *testing.T) {
	p := newTestPool(t, 16, 4)
	b := p.Allocate(8)
	require.True(t, p.Deallocate(b))

	assert.PanicsWithError(t, "pool: double free of block 0", func() {
		p.Deallocate(b)
	})
}

func TestDebug_BuddyDoubleFree(t *testing.T) {
	b := newTestBuddy(t, 1024, 16)
	s := b.Allocate(8)
	require.True(t, b.Deallocate(s))

	assert.Panics(t, func() {
		b.Deallocate(s)
	})
}

func TestDebug_BuddyMisalignedChunk(t *testing.T) {
	b := newTestBuddy(t, 1024, 16)
	s := b.Allocate(64)

	assert.Panics(t, func() {
		b.Deallocate(s[8:24])
	})
}

func TestDebug_ArenaResizeForeign(t *testing.T) {
	a := newTestArena(t, 256)
	foreign := System.Allocate(16)

	assert.Panics(t, func() {
		a.Resize(&foreign, 8)
	})
}
