//go:build !linux

package shmem

// heapRegion backs a Region with a plain heap slice, used on non-Linux
// hosts where memfd_create isn't available. There is no real forkserver
// child to share this memory with off-Linux, so the stub exists purely to
// keep the rest of the package portable and testable.
type heapRegion struct {
	data []byte
}

func newRegion(size int) (Region, error) {
	return &heapRegion{data: make([]byte, size)}, nil
}

func (r *heapRegion) Bytes() []byte { return r.data }

func (r *heapRegion) FD() int { return -1 }

func (r *heapRegion) Close() error {
	r.data = nil
	return nil
}
