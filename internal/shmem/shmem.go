// Package shmem allocates, exposes, and tears down the coverage bitmap's
// shared-memory region (spec §4.4). It keeps the teacher pattern of a
// real/stub split (internal/uring's iouring.go + iouring_stub.go, switched
// by build tag) verbatim as an architectural shape: shmem_linux.go backs
// the region with a memfd_create(2) mapping shared with the forked target;
// shmem_stub.go backs it with a plain heap slice on non-Linux hosts. On
// Linux, unit tests use the memfd-backed region as well.
package shmem

import "fmt"

// Region is one shared-memory allocation: the coverage bitmap, or (when
// negotiated) the shared-memory input-delivery buffer.
type Region interface {
	// Bytes returns the region's backing slice. The caller must not retain
	// it past Close.
	Bytes() []byte

	// FD returns the file descriptor to export to the forkserver via the
	// environment, or -1 if this region isn't fd-backed (stub mode).
	FD() int

	// Close releases the region. Safe to call more than once and safe to
	// call after a partial failure elsewhere (design note §9 "signal-safe
	// teardown" — Close must not allocate and must check-then-release).
	Close() error
}

// Channel owns the bitmap region and, when negotiated, the shared-memory
// input region, and guarantees both are released on every exit path.
type Channel struct {
	bitmap Region
	input  Region
}

// NewChannel allocates the coverage bitmap region (size mapSize) and,
// if withInput is true, a shared-memory input region (size maxInputSize).
func NewChannel(mapSize, maxInputSize int, withInput bool) (*Channel, error) {
	bitmap, err := newRegion(mapSize)
	if err != nil {
		return nil, fmt.Errorf("shmem: allocate bitmap region: %w", err)
	}

	var input Region
	if withInput {
		input, err = newRegion(maxInputSize + 4) // +4 for the length prefix
		if err != nil {
			bitmap.Close()
			return nil, fmt.Errorf("shmem: allocate input region: %w", err)
		}
	}

	return &Channel{bitmap: bitmap, input: input}, nil
}

// Bitmap returns the raw coverage bitmap backing slice.
func (c *Channel) Bitmap() []byte { return c.bitmap.Bytes() }

// HasInput reports whether a shared-memory input region was allocated.
func (c *Channel) HasInput() bool { return c.input != nil }

// WriteInput copies candidate into the shared-memory input region,
// preceded by its 4-byte length (spec §4.1 "Input delivery", mode b).
func (c *Channel) WriteInput(candidate []byte) error {
	if c.input == nil {
		return fmt.Errorf("shmem: no input region allocated")
	}
	buf := c.input.Bytes()
	if len(candidate)+4 > len(buf) {
		return fmt.Errorf("shmem: candidate of %d bytes exceeds input region", len(candidate))
	}
	buf[0] = byte(len(candidate))
	buf[1] = byte(len(candidate) >> 8)
	buf[2] = byte(len(candidate) >> 16)
	buf[3] = byte(len(candidate) >> 24)
	copy(buf[4:], candidate)
	return nil
}

// BitmapFD returns the fd to export for the coverage bitmap, or -1.
func (c *Channel) BitmapFD() int { return c.bitmap.FD() }

// InputFD returns the fd to export for shared-memory input, or -1 if no
// input region was allocated.
func (c *Channel) InputFD() int {
	if c.input == nil {
		return -1
	}
	return c.input.FD()
}

// Close releases both regions. Errors are joined, not short-circuited, so
// a failure on one region never suppresses release of the other.
func (c *Channel) Close() error {
	var errs []error
	if c.input != nil {
		if err := c.input.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.bitmap != nil {
		if err := c.bitmap.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return fmt.Errorf("shmem: multiple close errors: %v", errs)
	}
}
