package allocator

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

const poolNullIndex uint32 = math.MaxUint32

// poolLinkSize is the room a free block needs for the index of the next
// free block.
const poolLinkSize = 4

// Pool hands out fixed size blocks from one region. Free blocks are
// chained through their first four bytes, which hold the index of the
// next free block.
type Pool struct {
	region    []byte
	blockSize int
	numBlocks int
	alignment int

	freeList  uint32
	allocated []uint64
	numAlloc  int

	base     Allocator
	borrowed []byte
}

// NewPool divides region into as many blocks of blockSize bytes as fit.
// blockSize is rounded up to the alignment.
func NewPool(region []byte, blockSize int, opts ...Option) (*Pool, error) {
	return newPool(region, blockSize, math.MaxInt, opts)
}

func newPool(region []byte, blockSize int, maxBlocks int, opts []Option) (*Pool, error) {
	o, err := applyOptions(DefaultAlignment, opts)
	if err != nil {
		return nil, err
	}
	if blockSize < poolLinkSize {
		blockSize = poolLinkSize
	}
	blockSize = roundUp(blockSize, o.alignment)

	region = alignRegion(region, o.alignment)
	numBlocks := len(region) / blockSize
	if numBlocks > maxBlocks {
		numBlocks = maxBlocks
	}
	if numBlocks == 0 {
		return nil, errors.Wrapf(ErrRegionTooSmall, "region of %d bytes for block size %d", len(region), blockSize)
	}
	if numBlocks >= int(poolNullIndex) {
		return nil, errors.Wrapf(ErrRegionTooLarge, "%d blocks", numBlocks)
	}

	p := &Pool{
		region:    region[:numBlocks*blockSize],
		blockSize: blockSize,
		numBlocks: numBlocks,
		alignment: o.alignment,
		allocated: make([]uint64, (numBlocks+63)>>6),
	}
	p.initFreeList()
	return p, nil
}

// NewPoolFrom creates a pool of numBlocks blocks borrowed from base.
func NewPoolFrom(base Allocator, blockSize int, numBlocks int, opts ...Option) (*Pool, error) {
	o, err := applyOptions(DefaultAlignment, opts)
	if err != nil {
		return nil, err
	}
	if blockSize < poolLinkSize {
		blockSize = poolLinkSize
	}
	size := roundUp(blockSize, o.alignment) * numBlocks
	if base.Alignment() < o.alignment {
		// leave room to align the region start
		size += o.alignment
	}

	region, err := borrow(base, size)
	if err != nil {
		return nil, err
	}
	p, err := newPool(region, blockSize, numBlocks, opts)
	if err != nil {
		Deallocate(base, region)
		return nil, err
	}
	p.base = base
	p.borrowed = region
	return p, nil
}

func (p *Pool) initFreeList() {
	for i := 0; i < p.numBlocks; i++ {
		next := uint32(i + 1)
		if i+1 == p.numBlocks {
			next = poolNullIndex
		}
		p.setNext(uint32(i), next)
	}
	p.freeList = 0
}

func (p *Pool) blockOffset(index uint32) int {
	return int(index) * p.blockSize
}

func (p *Pool) next(index uint32) uint32 {
	return binary.LittleEndian.Uint32(p.region[p.blockOffset(index):])
}

func (p *Pool) setNext(index uint32, next uint32) {
	binary.LittleEndian.PutUint32(p.region[p.blockOffset(index):], next)
}

func (p *Pool) isAllocated(index uint32) bool {
	return p.allocated[index>>6]&(1<<(index&0x3f)) != 0
}

func (p *Pool) flipAllocated(index uint32) {
	p.allocated[index>>6] ^= 1 << (index & 0x3f)
}

func (p *Pool) contentOfList() []uint32 {
	var result []uint32
	for n := p.freeList; n != poolNullIndex; n = p.next(n) {
		result = append(result, n)
	}
	return result
}

// Alignment ...
func (p *Pool) Alignment() int {
	return p.alignment
}

// BlockSize ...
func (p *Pool) BlockSize() int {
	return p.blockSize
}

// OptimalAllocSize is the block size for requests the pool can serve, 0
// for any other.
func (p *Pool) OptimalAllocSize(n int) int {
	if n <= 0 || n > p.blockSize {
		return 0
	}
	return p.blockSize
}

// Allocate pops the head of the free list and zero fills it.
func (p *Pool) Allocate(n int) []byte {
	if n <= 0 || n > p.blockSize || p.freeList == poolNullIndex {
		return nil
	}

	index := p.freeList
	p.freeList = p.next(index)
	p.flipAllocated(index)
	p.numAlloc++

	off := p.blockOffset(index)
	block := p.region[off : off+p.blockSize]
	clear(block)
	return block[:n:n]
}

func (p *Pool) indexOf(b []byte) (uint32, bool) {
	off, ok := within(p.region, b)
	if !ok || off%p.blockSize != 0 {
		invariant(false, "pool: span %p (len %d) is not a block of this pool", b, len(b))
		return 0, false
	}
	index := uint32(off / p.blockSize)
	if !p.isAllocated(index) {
		invariant(false, "pool: double free of block %d", index)
		return 0, false
	}
	return index, true
}

// Deallocate pushes the block of b back on the free list.
func (p *Pool) Deallocate(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	index, ok := p.indexOf(b)
	if !ok {
		return false
	}
	p.flipAllocated(index)
	p.numAlloc--
	p.setNext(index, p.freeList)
	p.freeList = index
	return true
}

// Resize changes the length of b within its block.
func (p *Pool) Resize(b *[]byte, n int) bool {
	old := *b
	if len(old) == 0 || n <= 0 || n > p.blockSize {
		return false
	}
	index, ok := p.indexOf(old)
	if !ok {
		return false
	}
	off := p.blockOffset(index)
	if n > len(old) {
		clear(p.region[off+len(old) : off+n])
	}
	*b = p.region[off : off+n : off+n]
	return true
}

// Reallocate ...
func (p *Pool) Reallocate(b *[]byte, n int) bool {
	return Reallocation(p, b, n)
}

// Owns answers Yes only for spans inside a block that is allocated.
func (p *Pool) Owns(b []byte) Ternary {
	if len(b) == 0 {
		return Yes
	}
	off, ok := within(p.region, b)
	if !ok {
		return No
	}
	index := uint32(off / p.blockSize)
	if off+len(b) > p.blockOffset(index)+p.blockSize || !p.isAllocated(index) {
		return No
	}
	return Yes
}

// Allocated returns the number of blocks in use.
func (p *Pool) Allocated() int {
	return p.numAlloc
}

// Available returns the number of free blocks.
func (p *Pool) Available() int {
	return p.numBlocks - p.numAlloc
}

// Close returns the region to the base allocator it was borrowed from.
func (p *Pool) Close() error {
	err := giveBack(p.base, p.borrowed)
	p.region, p.freeList, p.numBlocks, p.numAlloc = nil, poolNullIndex, 0, 0
	p.base, p.borrowed = nil, nil
	return err
}
