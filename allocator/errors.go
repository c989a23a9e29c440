package allocator

import "github.com/pkg/errors"

var (
	// ErrNotPowerOfTwo is returned when a size that must be a power of two is not.
	ErrNotPowerOfTwo = errors.New("allocator: size is not a power of two")

	// ErrRegionTooSmall is returned when a region can not hold the allocator's bookkeeping
	// or a single block.
	ErrRegionTooSmall = errors.New("allocator: region too small")

	// ErrRegionTooLarge is returned when a region can not be addressed by 32-bit offsets.
	ErrRegionTooLarge = errors.New("allocator: region too large")

	// ErrMisaligned is returned when a region does not start at the required alignment.
	ErrMisaligned = errors.New("allocator: region is misaligned")

	// ErrBadAlignment is returned for an alignment that is not a power of two.
	ErrBadAlignment = errors.New("allocator: alignment must be a power of two")

	// ErrBorrowFailed is returned when the base allocator can not supply a region.
	ErrBorrowFailed = errors.New("allocator: base allocator could not supply region")

	// ErrReturnFailed is returned by Close when the base allocator refuses the region back.
	ErrReturnFailed = errors.New("allocator: base allocator refused region")
)
