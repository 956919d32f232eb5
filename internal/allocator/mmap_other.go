//go:build !linux && !darwin

package allocator

import "errors"

var errMmapUnsupported = errors.New("shared memory mappings are not supported on this platform")

func mapAnonymous(int64) (*mapping, error) { return nil, errMmapUnsupported }

func mapTempFile(string, string, int64) (*mapping, error) { return nil, errMmapUnsupported }

func unmap(*mapping) error { return nil }

func adviseHugepage([]byte) error { return nil }
