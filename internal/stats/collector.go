// Package stats aggregates object store statistics. Every counter except the
// lifetime totals is a pure function of the live objects; the collector
// maintains them incrementally by retracting an object's old contribution and
// applying its new one on every transition.
package stats

import (
	"fmt"
	"strings"

	"github.com/plasmastore/plasmastore/pkg/types"
)

// Snapshot is an immutable copy of the store statistics.
type Snapshot struct {
	// Lifetime totals. Never decrease.
	NumBytesCreatedTotal        int64 `json:"num_bytes_created_total"`
	NumObjectsCreatedTotal      int64 `json:"num_objects_created_total"`
	NumFallbackAllocationsTotal int64 `json:"num_fallback_allocations_total"`

	// Current totals over live objects.
	NumObjects             int64 `json:"num_objects"`
	NumBytesCreatedCurrent int64 `json:"num_bytes_created_current"`

	NumObjectsSpillable int64 `json:"num_objects_spillable"`
	NumBytesSpillable   int64 `json:"num_bytes_spillable"`
	NumObjectsUnsealed  int64 `json:"num_objects_unsealed"`
	NumBytesUnsealed    int64 `json:"num_bytes_unsealed"`
	NumObjectsInUse     int64 `json:"num_objects_in_use"`
	NumBytesInUse       int64 `json:"num_bytes_in_use"`
	NumObjectsEvictable int64 `json:"num_objects_evictable"`
	NumBytesEvictable   int64 `json:"num_bytes_evictable"`

	NumObjectsPendingDelete int64 `json:"num_objects_pending_delete"`

	NumObjectsCreatedByWorker int64 `json:"num_objects_created_by_worker"`
	NumBytesCreatedByWorker   int64 `json:"num_bytes_created_by_worker"`
	NumObjectsRestored        int64 `json:"num_objects_restored"`
	NumBytesRestored          int64 `json:"num_bytes_restored"`
	NumObjectsReceived        int64 `json:"num_objects_received"`
	NumBytesReceived          int64 `json:"num_bytes_received"`
	NumObjectsErrored         int64 `json:"num_objects_errored"`
	NumBytesErrored           int64 `json:"num_bytes_errored"`

	NumBytesPrimarySealed    int64 `json:"num_bytes_primary_sealed"`
	NumBytesPrimaryUnsealed  int64 `json:"num_bytes_primary_unsealed"`
	NumBytesFallbackSealed   int64 `json:"num_bytes_fallback_sealed"`
	NumBytesFallbackUnsealed int64 `json:"num_bytes_fallback_unsealed"`
}

// Current returns s with the lifetime totals cleared, leaving only the part
// that is derived from live objects.
func (s Snapshot) Current() Snapshot {
	s.NumBytesCreatedTotal = 0
	s.NumObjectsCreatedTotal = 0
	s.NumFallbackAllocationsTotal = 0
	return s
}

// BySource returns the current object and byte counts for source. Objects
// created by fallback allocation are reported with worker-created objects.
func (s Snapshot) BySource(source types.ObjectSource) (objects, bytes int64) {
	switch source {
	case types.CreatedByWorker, types.CreatedByFallbackAllocation:
		return s.NumObjectsCreatedByWorker, s.NumBytesCreatedByWorker
	case types.RestoredFromStorage:
		return s.NumObjectsRestored, s.NumBytesRestored
	case types.ReceivedFromRemoteNode:
		return s.NumObjectsReceived, s.NumBytesReceived
	case types.ErrorStored:
		return s.NumObjectsErrored, s.NumBytesErrored
	}
	return 0, 0
}

func (s Snapshot) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "objects=%d bytes=%d created_total=%d/%dB", s.NumObjects, s.NumBytesCreatedCurrent,
		s.NumObjectsCreatedTotal, s.NumBytesCreatedTotal)
	fmt.Fprintf(&sb, " unsealed=%d/%dB in_use=%d/%dB evictable=%d/%dB spillable=%d/%dB",
		s.NumObjectsUnsealed, s.NumBytesUnsealed, s.NumObjectsInUse, s.NumBytesInUse,
		s.NumObjectsEvictable, s.NumBytesEvictable, s.NumObjectsSpillable, s.NumBytesSpillable)
	fmt.Fprintf(&sb, " primary=%d+%dB fallback=%d+%dB", s.NumBytesPrimarySealed, s.NumBytesPrimaryUnsealed,
		s.NumBytesFallbackSealed, s.NumBytesFallbackUnsealed)
	return sb.String()
}

// Collector maintains a Snapshot incrementally. It is not synchronized; the
// object store updates it under its lock and hands out copies.
type Collector struct {
	s Snapshot
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// ObjectCreated accounts for a newly inserted object.
func (c *Collector) ObjectCreated(obj types.ObjectView) {
	size := obj.TotalSize()
	c.s.NumBytesCreatedTotal += size
	c.s.NumObjectsCreatedTotal++
	if obj.IsFallback {
		c.s.NumFallbackAllocationsTotal++
	}
	c.apply(obj, 1)
}

// ObjectChanged replaces the contribution of before with that of after. Both
// views must describe the same object.
func (c *Collector) ObjectChanged(before, after types.ObjectView) {
	c.apply(before, -1)
	c.apply(after, 1)
}

// ObjectDeleted retracts the contribution of a removed object.
func (c *Collector) ObjectDeleted(obj types.ObjectView) {
	c.apply(obj, -1)
}

// Snapshot returns a copy of the current statistics.
func (c *Collector) Snapshot() Snapshot {
	return c.s
}

// Compute derives the current statistics from a set of live objects. For a
// consistent collector, Compute(objects) equals Snapshot().Current().
func Compute(objects []types.ObjectView) Snapshot {
	var c Collector
	for _, obj := range objects {
		c.apply(obj, 1)
	}
	return c.s
}

// IsSpillable reports whether obj is held only by its creator's primary copy
// pin: sealed, created by a worker and referenced exactly once.
func IsSpillable(obj types.ObjectView) bool {
	return obj.State == types.ObjectSealed && obj.RefCount == 1 && obj.Source == types.CreatedByWorker
}

// IsEvictable reports whether obj is sealed and unreferenced.
func IsEvictable(obj types.ObjectView) bool {
	return obj.State == types.ObjectSealed && obj.RefCount == 0
}

func (c *Collector) apply(obj types.ObjectView, sign int64) {
	size := sign * obj.TotalSize()
	s := &c.s

	s.NumObjects += sign
	s.NumBytesCreatedCurrent += size

	sealed := obj.State == types.ObjectSealed
	switch {
	case sealed && obj.IsFallback:
		s.NumBytesFallbackSealed += size
	case sealed:
		s.NumBytesPrimarySealed += size
	case obj.IsFallback:
		s.NumBytesFallbackUnsealed += size
	default:
		s.NumBytesPrimaryUnsealed += size
	}

	if !sealed {
		s.NumObjectsUnsealed += sign
		s.NumBytesUnsealed += size
	}
	if obj.RefCount > 0 {
		s.NumObjectsInUse += sign
		s.NumBytesInUse += size
	}
	if IsEvictable(obj) {
		s.NumObjectsEvictable += sign
		s.NumBytesEvictable += size
	}
	if IsSpillable(obj) {
		s.NumObjectsSpillable += sign
		s.NumBytesSpillable += size
	}
	if obj.PendingDelete {
		s.NumObjectsPendingDelete += sign
	}

	switch obj.Source {
	case types.CreatedByWorker, types.CreatedByFallbackAllocation:
		s.NumObjectsCreatedByWorker += sign
		s.NumBytesCreatedByWorker += size
	case types.RestoredFromStorage:
		s.NumObjectsRestored += sign
		s.NumBytesRestored += size
	case types.ReceivedFromRemoteNode:
		s.NumObjectsReceived += sign
		s.NumBytesReceived += size
	case types.ErrorStored:
		s.NumObjectsErrored += sign
		s.NumBytesErrored += size
	}
}
