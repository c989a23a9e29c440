package allocator

import "github.com/pkg/errors"

type options struct {
	alignment int
}

// Option configures an Arena, a Pool or a Buddy.
type Option func(*options)

// WithAlignment sets the minimum alignment of every allocation.
func WithAlignment(alignment int) Option {
	return func(o *options) {
		o.alignment = alignment
	}
}

func applyOptions(defaultAlignment int, opts []Option) (options, error) {
	o := options{alignment: defaultAlignment}
	for _, opt := range opts {
		opt(&o)
	}
	if !isPowerOfTwo(o.alignment) {
		return o, errors.Wrapf(ErrBadAlignment, "alignment %d", o.alignment)
	}
	return o, nil
}

// borrow takes a region of size bytes from base.
func borrow(base Allocator, size int) ([]byte, error) {
	if base == nil {
		return nil, errors.Wrap(ErrBorrowFailed, "nil base allocator")
	}
	region := base.Allocate(size)
	if len(region) == 0 {
		return nil, errors.Wrapf(ErrBorrowFailed, "size %d", size)
	}
	return region, nil
}

// giveBack returns a borrowed region to its base.
func giveBack(base Allocator, region []byte) error {
	if base == nil || len(region) == 0 {
		return nil
	}
	if !Deallocate(base, region) {
		return errors.Wrapf(ErrReturnFailed, "size %d", len(region))
	}
	return nil
}
