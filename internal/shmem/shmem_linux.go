//go:build linux

package shmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// memfdRegion backs a Region with a memfd_create(2) anonymous file, mapped
// MAP_SHARED so the bitmap contents written by the forked target are
// visible to the parent without any explicit synchronization beyond the
// forkserver's "done" status word (spec §5 "Shared resources").
type memfdRegion struct {
	fd   int
	data []byte
}

func newRegion(size int) (Region, error) {
	fd, err := unix.MemfdCreate("go-tmin-bitmap", 0)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &memfdRegion{fd: fd, data: data}, nil
}

func (r *memfdRegion) Bytes() []byte { return r.data }

func (r *memfdRegion) FD() int { return r.fd }

func (r *memfdRegion) Close() error {
	if r.data != nil {
		_ = unix.Munmap(r.data)
		r.data = nil
	}
	if r.fd >= 0 {
		err := unix.Close(r.fd)
		r.fd = -1
		return err
	}
	return nil
}
