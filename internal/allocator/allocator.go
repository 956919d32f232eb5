// Package allocator manages the two memory pools backing object payloads: a
// primary pool bounded by a footprint limit and an unbounded, disk-backed
// fallback pool.
package allocator

import (
	"fmt"
	"sync"
	"unsafe"

	plasmaerrors "github.com/plasmastore/plasmastore/pkg/errors"
)

// Alignment is the byte alignment of every allocation.
const Alignment = 64

// Allocation is a handle to one mapped byte range. It is owned by exactly one
// object record and must be passed to Free exactly once; a second Free of the
// same handle is reported as an error.
type Allocation struct {
	id         uint64
	Size       int64 // requested bytes, as counted against the pools
	MmapSize   int64 // aligned mapped length
	Offset     int64
	DeviceNum  int // 0 is host memory
	Fd         int // -1 when the mapping has no backing file
	IsFallback bool

	data []byte
}

// ID returns the arena id of the allocation.
func (a *Allocation) ID() uint64 { return a.id }

// Bytes returns the requested range of the mapping.
func (a *Allocation) Bytes() []byte { return a.data[:a.Size] }

// Mapped returns the whole aligned mapping.
func (a *Allocation) Mapped() []byte { return a.data }

// Address returns the start address of the mapping.
func (a *Allocation) Address() uintptr {
	if len(a.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(a.data)))
}

func (a *Allocation) String() string {
	pool := "primary"
	if a.IsFallback {
		pool = "fallback"
	}
	return fmt.Sprintf("Allocation{id=%d, size=%d, mmap_size=%d, pool=%s}", a.id, a.Size, a.MmapSize, pool)
}

// Allocator hands out aligned byte ranges from the primary and fallback pools.
// Allocate never falls back on its own; the caller decides.
type Allocator interface {
	Allocate(size int64) (*Allocation, error)
	FallbackAllocate(size int64) (*Allocation, error)
	Free(a *Allocation) error

	// Allocated is primary plus fallback bytes.
	Allocated() int64
	PrimaryAllocated() int64
	FallbackAllocated() int64
	FootprintLimit() int64
	Available() int64
	Stats() Stats
	Close() error
}

// Stats are cumulative allocator counters.
type Stats struct {
	BytesAllocated      int64 `json:"bytes_allocated"`
	PrimaryBytes        int64 `json:"primary_bytes"`
	FallbackBytes       int64 `json:"fallback_bytes"`
	PeakBytes           int64 `json:"peak_bytes"`
	NumAllocations      int64 `json:"num_allocations"`
	NumFallbackAllocs   int64 `json:"num_fallback_allocations"`
	NumFrees            int64 `json:"num_frees"`
	NumFailedAllocs     int64 `json:"num_failed_allocations"`
	LiveAllocations     int   `json:"live_allocations"`
	FootprintLimitBytes int64 `json:"footprint_limit"`
}

// AlignUp rounds size up to the allocation alignment. Zero-byte requests
// still occupy one aligned unit so every allocation has a distinct mapping.
func AlignUp(size int64) int64 {
	if size <= 0 {
		return Alignment
	}
	return (size + Alignment - 1) &^ (Alignment - 1)
}

// ledger is the pool accounting shared by every Allocator implementation.
// Space is reserved before the mapping is created and rolled back if the
// mapping fails, so concurrent callers can never overshoot the limit.
type ledger struct {
	mu       sync.Mutex
	limit    int64
	nextID   uint64
	live     map[uint64]*Allocation
	total    int64
	fallback int64
	stats    Stats
	closed   bool
}

func newLedger(limit int64) *ledger {
	return &ledger{
		limit: limit,
		live:  make(map[uint64]*Allocation),
	}
}

func (l *ledger) reserve(size int64, fallback bool, fallbackLimit int64) error {
	if size < 0 {
		return plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidRequest, "negative allocation size %d", size)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return plasmaerrors.NewError(plasmaerrors.ErrCodeInvalidRequest, "allocator is closed")
	}

	if fallback {
		if fallbackLimit > 0 && l.fallback+size > fallbackLimit {
			l.stats.NumFailedAllocs++
			return plasmaerrors.Newf(plasmaerrors.ErrCodeOutOfDisk,
				"fallback pool exhausted: %d + %d > %d", l.fallback, size, fallbackLimit)
		}
		l.total += size
		l.fallback += size
		return nil
	}

	primary := l.total - l.fallback
	if primary+size > l.limit {
		l.stats.NumFailedAllocs++
		return plasmaerrors.Newf(plasmaerrors.ErrCodeOutOfMemory,
			"primary pool exhausted: %d + %d > footprint limit %d", primary, size, l.limit)
	}
	l.total += size
	return nil
}

func (l *ledger) rollback(size int64, fallback bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total -= size
	if fallback {
		l.fallback -= size
	}
	l.stats.NumFailedAllocs++
}

func (l *ledger) commit(a *Allocation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	a.id = l.nextID
	l.live[a.id] = a

	l.stats.NumAllocations++
	if a.IsFallback {
		l.stats.NumFallbackAllocs++
	}
	if l.total > l.stats.PeakBytes {
		l.stats.PeakBytes = l.total
	}
}

// release removes a from the live set. It fails for a handle that was never
// committed or was already released.
func (l *ledger) release(a *Allocation) error {
	if a == nil {
		return plasmaerrors.NewError(plasmaerrors.ErrCodeInvalidRequest, "free of nil allocation")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.live[a.id]; !ok {
		return plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidRequest,
			"free of unknown or already freed allocation %d", a.id)
	}
	delete(l.live, a.id)

	l.total -= a.Size
	if a.IsFallback {
		l.fallback -= a.Size
	}
	l.stats.NumFrees++
	return nil
}

// drain closes the ledger and returns every live allocation.
func (l *ledger) drain() []*Allocation {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	out := make([]*Allocation, 0, len(l.live))
	for id, a := range l.live {
		out = append(out, a)
		delete(l.live, id)
	}
	l.total = 0
	l.fallback = 0
	return out
}

func (l *ledger) allocated() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *ledger) fallbackAllocated() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fallback
}

func (l *ledger) primaryAllocated() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total - l.fallback
}

func (l *ledger) available() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if free := l.limit - (l.total - l.fallback); free > 0 {
		return free
	}
	return 0
}

func (l *ledger) snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.stats
	s.BytesAllocated = l.total
	s.PrimaryBytes = l.total - l.fallback
	s.FallbackBytes = l.fallback
	s.LiveAllocations = len(l.live)
	s.FootprintLimitBytes = l.limit
	return s
}
