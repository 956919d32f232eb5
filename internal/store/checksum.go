package store

import (
	"github.com/minio/highwayhash"
)

var checksumKey = []byte("plasma-store-object-checksum-key")

// Checksum hashes an object's data and metadata. Allocations are 64-byte
// aligned, which keeps the hash on its vectorized path.
func Checksum(data []byte) (uint64, error) {
	h, err := highwayhash.New64(checksumKey)
	if err != nil {
		return 0, err
	}
	if _, err := h.Write(data); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
