package allocator

import "golang.org/x/sys/unix"

func adviseHugepage(b []byte) error {
	return unix.Madvise(b, unix.MADV_HUGEPAGE)
}
