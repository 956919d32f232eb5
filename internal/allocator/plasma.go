package allocator

import (
	"fmt"
	"os"
	"sync"

	plasmaerrors "github.com/plasmastore/plasmastore/pkg/errors"
	"github.com/plasmastore/plasmastore/pkg/utils"
)

// Config configures a PlasmaAllocator.
type Config struct {
	// PrimaryDirectory backs primary mappings with unlinked files (for
	// example /dev/shm). Empty means anonymous shared mappings.
	PrimaryDirectory string `yaml:"primary_directory"`
	// FallbackDirectory holds one unlinked scratch file per fallback
	// allocation.
	FallbackDirectory string `yaml:"fallback_directory"`
	FootprintLimit    int64  `yaml:"footprint_limit"`
	HugepageEnabled   bool   `yaml:"hugepage_enabled"`
}

// mapping is the platform resource behind one Allocation.
type mapping struct {
	data []byte
	file *os.File
}

// PlasmaAllocator allocates shared memory mappings. Primary allocations are
// bounded by the footprint limit; fallback allocations are file-backed and
// only bounded by the filesystem.
type PlasmaAllocator struct {
	config   Config
	ledger   *ledger
	logger   *utils.StructuredLogger
	mappings *mappingTable
}

// NewPlasmaAllocator creates a mmap-backed allocator.
func NewPlasmaAllocator(config Config, logger *utils.StructuredLogger) (*PlasmaAllocator, error) {
	if config.FootprintLimit <= 0 {
		return nil, plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidConfig,
			"footprint limit must be positive, got %d", config.FootprintLimit)
	}
	for _, dir := range []string{config.PrimaryDirectory, config.FallbackDirectory} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, plasmaerrors.Wrap(err, plasmaerrors.ErrCodeIOError,
				fmt.Sprintf("cannot create directory %s", dir))
		}
	}

	return &PlasmaAllocator{
		config:   config,
		ledger:   newLedger(config.FootprintLimit),
		logger:   utils.OrNop(logger).WithComponent("allocator"),
		mappings: newMappingTable(),
	}, nil
}

// Allocate maps size bytes from the primary pool. It fails with
// OUT_OF_MEMORY when the footprint limit would be exceeded.
func (p *PlasmaAllocator) Allocate(size int64) (*Allocation, error) {
	if err := p.ledger.reserve(size, false, 0); err != nil {
		return nil, err
	}

	aligned := AlignUp(size)
	m, err := p.mapPrimary(aligned)
	if err != nil {
		p.ledger.rollback(size, false)
		p.logger.Error("primary mapping failed", map[string]interface{}{
			"size":  size,
			"error": err.Error(),
		})
		return nil, plasmaerrors.Wrap(err, plasmaerrors.ErrCodeIOError, "primary mapping failed").
			WithComponent("allocator").WithOperation("allocate")
	}

	if p.config.HugepageEnabled {
		if err := adviseHugepage(m.data); err != nil {
			p.logger.Debug("hugepage advice rejected", map[string]interface{}{"error": err.Error()})
		}
	}

	a := p.track(m, size, aligned, false)
	p.logger.Trace("primary allocation", map[string]interface{}{"id": a.id, "size": size})
	return a, nil
}

// FallbackAllocate maps size bytes backed by a fresh scratch file in the
// fallback directory. It does not count against the footprint limit and
// fails with OUT_OF_DISK when the file cannot be created or mapped.
func (p *PlasmaAllocator) FallbackAllocate(size int64) (*Allocation, error) {
	if p.config.FallbackDirectory == "" {
		return nil, plasmaerrors.NewError(plasmaerrors.ErrCodeOutOfDisk, "no fallback directory configured").
			WithComponent("allocator").WithOperation("fallback_allocate")
	}
	if err := p.ledger.reserve(size, true, 0); err != nil {
		return nil, err
	}

	aligned := AlignUp(size)
	m, err := mapTempFile(p.config.FallbackDirectory, "plasma-fallback-", aligned)
	if err != nil {
		p.ledger.rollback(size, true)
		p.logger.Error("fallback mapping failed", map[string]interface{}{
			"size":      size,
			"directory": p.config.FallbackDirectory,
			"error":     err.Error(),
		})
		return nil, plasmaerrors.Wrap(err, plasmaerrors.ErrCodeOutOfDisk, "fallback mapping failed").
			WithComponent("allocator").WithOperation("fallback_allocate")
	}

	a := p.track(m, size, aligned, true)
	p.logger.Debug("fallback allocation", map[string]interface{}{"id": a.id, "size": size})
	return a, nil
}

func (p *PlasmaAllocator) mapPrimary(aligned int64) (*mapping, error) {
	if p.config.PrimaryDirectory == "" {
		return mapAnonymous(aligned)
	}
	return mapTempFile(p.config.PrimaryDirectory, "plasma-", aligned)
}

func (p *PlasmaAllocator) track(m *mapping, size, aligned int64, fallback bool) *Allocation {
	fd := -1
	if m.file != nil {
		fd = int(m.file.Fd())
	}
	a := &Allocation{
		Size:       size,
		MmapSize:   aligned,
		Fd:         fd,
		IsFallback: fallback,
		data:       m.data,
	}
	p.ledger.commit(a)
	p.mappings.put(a.id, m)
	return a
}

// Free unmaps a and returns its bytes to the pool it came from.
func (p *PlasmaAllocator) Free(a *Allocation) error {
	if err := p.ledger.release(a); err != nil {
		return err
	}
	m := p.mappings.take(a.id)
	if m == nil {
		return nil
	}
	if err := unmap(m); err != nil {
		p.logger.Error("unmap failed", map[string]interface{}{"id": a.id, "error": err.Error()})
		return plasmaerrors.Wrap(err, plasmaerrors.ErrCodeIOError, "unmap failed").
			WithComponent("allocator").WithOperation("free")
	}
	a.data = nil
	return nil
}

// Allocated returns primary plus fallback bytes.
func (p *PlasmaAllocator) Allocated() int64 { return p.ledger.allocated() }

// PrimaryAllocated returns the bytes counted against the footprint limit.
func (p *PlasmaAllocator) PrimaryAllocated() int64 { return p.ledger.primaryAllocated() }

// FallbackAllocated returns the bytes held in fallback mappings.
func (p *PlasmaAllocator) FallbackAllocated() int64 { return p.ledger.fallbackAllocated() }

// FootprintLimit returns the primary pool ceiling.
func (p *PlasmaAllocator) FootprintLimit() int64 { return p.config.FootprintLimit }

// Available returns the primary bytes still allocatable.
func (p *PlasmaAllocator) Available() int64 { return p.ledger.available() }

// Stats returns a copy of the allocator counters.
func (p *PlasmaAllocator) Stats() Stats { return p.ledger.snapshot() }

// Close unmaps every outstanding allocation. Further allocations fail.
func (p *PlasmaAllocator) Close() error {
	var firstErr error
	for _, a := range p.ledger.drain() {
		if m := p.mappings.take(a.id); m != nil {
			if err := unmap(m); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		a.data = nil
	}
	return firstErr
}

// mappingTable keeps platform resources out of the public handle.
type mappingTable struct {
	mu   sync.Mutex
	byID map[uint64]*mapping
}

func newMappingTable() *mappingTable {
	return &mappingTable{byID: make(map[uint64]*mapping)}
}

func (t *mappingTable) put(id uint64, m *mapping) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = m
}

func (t *mappingTable) take(id uint64) *mapping {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.byID[id]
	delete(t.byID, id)
	return m
}
