//go:build linux || darwin

package allocator

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func mapAnonymous(size int64) (*mapping, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap anonymous %d bytes: %w", size, err)
	}
	return &mapping{data: b}, nil
}

// mapTempFile creates a scratch file in dir, unlinks it so it disappears with
// the last reference, sizes it and maps it shared.
func mapTempFile(dir, prefix string, size int64) (*mapping, error) {
	f, err := os.CreateTemp(dir, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create backing file: %w", err)
	}
	_ = os.Remove(f.Name())

	if err := unix.Ftruncate(int(f.Fd()), size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("size backing file to %d bytes: %w", size, err)
	}

	b, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap backing file: %w", err)
	}
	return &mapping{data: b, file: f}, nil
}

func unmap(m *mapping) error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
		m.data = nil
	}
	if m.file != nil {
		if cerr := m.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		m.file = nil
	}
	return err
}
