package allocator

import (
	plasmaerrors "github.com/plasmastore/plasmastore/pkg/errors"
)

// HeapAllocator satisfies Allocator with Go heap memory. It keeps the same
// pool accounting as PlasmaAllocator and is used where real mappings are not
// wanted, chiefly tests and abstract capacity models.
type HeapAllocator struct {
	ledger        *ledger
	fallbackLimit int64
	nextFd        int
}

// NewHeapAllocator creates a heap allocator whose primary pool holds
// footprintLimit bytes. The fallback pool is unbounded.
func NewHeapAllocator(footprintLimit int64) *HeapAllocator {
	return &HeapAllocator{ledger: newLedger(footprintLimit), nextFd: 100}
}

// WithFallbackLimit bounds the fallback pool, making OUT_OF_DISK reachable.
func (h *HeapAllocator) WithFallbackLimit(limit int64) *HeapAllocator {
	h.fallbackLimit = limit
	return h
}

// Allocate reserves size bytes from the primary pool.
func (h *HeapAllocator) Allocate(size int64) (*Allocation, error) {
	if err := h.ledger.reserve(size, false, 0); err != nil {
		return nil, err
	}
	return h.commit(size, false), nil
}

// FallbackAllocate reserves size bytes from the fallback pool.
func (h *HeapAllocator) FallbackAllocate(size int64) (*Allocation, error) {
	if err := h.ledger.reserve(size, true, h.fallbackLimit); err != nil {
		return nil, err
	}
	return h.commit(size, true), nil
}

func (h *HeapAllocator) commit(size int64, fallback bool) *Allocation {
	aligned := AlignUp(size)
	a := &Allocation{
		Size:       size,
		MmapSize:   aligned,
		IsFallback: fallback,
		data:       make([]byte, aligned),
	}
	h.ledger.commit(a)
	// Fake descriptors keep handles distinguishable, as real ones would be.
	h.ledger.mu.Lock()
	a.Fd = h.nextFd
	h.nextFd++
	h.ledger.mu.Unlock()
	return a
}

// Free returns a to its pool.
func (h *HeapAllocator) Free(a *Allocation) error {
	if err := h.ledger.release(a); err != nil {
		return err
	}
	a.data = nil
	return nil
}

func (h *HeapAllocator) Allocated() int64         { return h.ledger.allocated() }
func (h *HeapAllocator) PrimaryAllocated() int64  { return h.ledger.primaryAllocated() }
func (h *HeapAllocator) FallbackAllocated() int64 { return h.ledger.fallbackAllocated() }
func (h *HeapAllocator) FootprintLimit() int64    { return h.ledger.limit }
func (h *HeapAllocator) Available() int64         { return h.ledger.available() }
func (h *HeapAllocator) Stats() Stats             { return h.ledger.snapshot() }

// Close drops every outstanding allocation.
func (h *HeapAllocator) Close() error {
	for _, a := range h.ledger.drain() {
		a.data = nil
	}
	return nil
}

// NullAllocator rejects every request. It models a store with no memory.
type NullAllocator struct{}

func (NullAllocator) Allocate(size int64) (*Allocation, error) {
	return nil, plasmaerrors.Newf(plasmaerrors.ErrCodeOutOfMemory, "null allocator cannot hold %d bytes", size)
}

func (NullAllocator) FallbackAllocate(size int64) (*Allocation, error) {
	return nil, plasmaerrors.Newf(plasmaerrors.ErrCodeOutOfDisk, "null allocator cannot hold %d bytes", size)
}

func (NullAllocator) Free(*Allocation) error {
	return plasmaerrors.NewError(plasmaerrors.ErrCodeInvalidRequest, "null allocator owns no allocations")
}

func (NullAllocator) Allocated() int64         { return 0 }
func (NullAllocator) PrimaryAllocated() int64  { return 0 }
func (NullAllocator) FallbackAllocated() int64 { return 0 }
func (NullAllocator) FootprintLimit() int64    { return 0 }
func (NullAllocator) Available() int64         { return 0 }
func (NullAllocator) Stats() Stats             { return Stats{} }
func (NullAllocator) Close() error             { return nil }

var (
	_ Allocator = (*PlasmaAllocator)(nil)
	_ Allocator = (*HeapAllocator)(nil)
	_ Allocator = NullAllocator{}
)
