// Package lifecycle is the concurrent front end of the object store. A single
// mutex covers the record map, the eviction cache and the statistics, and
// reference counting carries the eager-deletion rule: a delete requested while
// an object is referenced is completed by whichever release drops the last
// reference.
package lifecycle

import (
	"sync"
	"time"

	"github.com/plasmastore/plasmastore/internal/allocator"
	"github.com/plasmastore/plasmastore/internal/eviction"
	"github.com/plasmastore/plasmastore/internal/stats"
	"github.com/plasmastore/plasmastore/internal/store"
	plasmaerrors "github.com/plasmastore/plasmastore/pkg/errors"
	"github.com/plasmastore/plasmastore/pkg/types"
	"github.com/plasmastore/plasmastore/pkg/utils"
)

// DeleteCallback is invoked outside the manager lock for every object that
// was reclaimed by delete, eager delete or eviction.
type DeleteCallback func(view types.ObjectView)

// Manager serializes every store operation and reports outcomes as Results.
type Manager struct {
	mu       sync.Mutex
	store    *store.ObjectStore
	alloc    allocator.Allocator
	logger   *utils.StructuredLogger
	recorder types.OperationRecorder
	onDelete DeleteCallback
	closed   bool

	// Filled under mu by the store, drained after every operation.
	reclaimed      []types.ObjectView
	evictedObjects int
	evictedBytes   int64
}

// NewManager creates a manager over a fresh object store backed by alloc.
// The store's OnReclaim hook is owned by the manager.
func NewManager(alloc allocator.Allocator, config store.Config, logger *utils.StructuredLogger) *Manager {
	m := &Manager{
		alloc:    alloc,
		logger:   utils.OrNop(logger).WithComponent("lifecycle"),
		recorder: types.NopRecorder{},
	}
	config.OnReclaim = m.reclaim
	m.store = store.NewObjectStore(alloc, config, logger)
	return m
}

// SetOnDelete installs the reclaim callback. The callback may call back into
// the manager.
func (m *Manager) SetOnDelete(cb DeleteCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDelete = cb
}

// SetRecorder installs an operation recorder, typically the metrics collector.
func (m *Manager) SetRecorder(r types.OperationRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == nil {
		r = types.NopRecorder{}
	}
	m.recorder = r
}

// reclaim runs under mu from inside the store.
func (m *Manager) reclaim(view types.ObjectView, reason store.Reason) {
	m.reclaimed = append(m.reclaimed, view)
	if reason == store.ReasonEvicted {
		m.evictedObjects++
		m.evictedBytes += view.TotalSize()
	}
}

// finish releases mu, then delivers the reclaim notifications and metrics
// gathered while it was held.
func (m *Manager) finish(op string, start time.Time, size int64, err error) {
	reclaimed := m.reclaimed
	evictedObjects, evictedBytes := m.evictedObjects, m.evictedBytes
	m.reclaimed, m.evictedObjects, m.evictedBytes = nil, 0, 0
	cb, rec := m.onDelete, m.recorder
	m.mu.Unlock()

	if cb != nil {
		for _, v := range reclaimed {
			cb(v)
		}
	}
	if evictedObjects > 0 {
		rec.RecordEviction(evictedObjects, evictedBytes)
	}
	rec.RecordOperation(op, time.Since(start), size, err == nil)
	if er, ok := rec.(errorRecorder); ok && err != nil {
		er.RecordError(op, err)
	}
}

// errorRecorder is implemented by recorders that break failures down by
// error code.
type errorRecorder interface {
	RecordError(operation string, err error)
}

// run executes fn under the lock.
func (m *Manager) run(op string, size int64, fn func() error) plasmaerrors.Result {
	start := time.Now()
	m.mu.Lock()
	var err error
	if m.closed {
		err = errClosed(op)
	} else {
		err = fn()
	}
	m.finish(op, start, size, err)
	return plasmaerrors.ResultOf(err)
}

func errClosed(op string) error {
	return plasmaerrors.NewError(plasmaerrors.ErrCodeInvalidRequest, "object store is closed").
		WithComponent("lifecycle").WithOperation(op)
}

// CreateObject creates an unsealed object. allowFallback permits a
// disk-backed allocation when the primary pool is exhausted, subject to the
// store configuration.
func (m *Manager) CreateObject(info types.ObjectInfo, source types.ObjectSource, allowFallback bool) plasmaerrors.Result {
	return m.run("create", info.TotalSize(), func() error {
		_, err := m.store.CreateObject(info, source, allowFallback)
		return err
	})
}

// CreateAndGetBuffer creates an object and returns its writable buffer, data
// followed by metadata. The buffer may only be written until the object is
// sealed.
func (m *Manager) CreateAndGetBuffer(info types.ObjectInfo, source types.ObjectSource, allowFallback bool) ([]byte, plasmaerrors.Result) {
	var buf []byte
	res := m.run("create", info.TotalSize(), func() error {
		obj, err := m.store.CreateObject(info, source, allowFallback)
		if err != nil {
			return err
		}
		buf = obj.Buffer()
		return nil
	})
	return buf, res
}

// SealObject makes an object immutable and consumable.
func (m *Manager) SealObject(id types.ObjectID) plasmaerrors.Result {
	return m.run("seal", 0, func() error {
		return m.store.SealObject(id)
	})
}

// GetObject takes a reference on a sealed object and returns its buffer.
func (m *Manager) GetObject(id types.ObjectID) (types.ObjectRef, plasmaerrors.Result) {
	var ref types.ObjectRef
	res := m.run("get", 0, func() error {
		var err error
		ref, err = m.store.GetObject(id)
		return err
	})
	return ref, res
}

// ReleaseObject drops a reference taken by GetObject. Releasing the last
// reference of an object marked for deletion deletes it.
func (m *Manager) ReleaseObject(id types.ObjectID) plasmaerrors.Result {
	return m.run("release", 0, func() error {
		return m.removeReference(id)
	})
}

// AddReference takes a reference on an object in any state. It reports false
// only when the object does not exist.
func (m *Manager) AddReference(id types.ObjectID) bool {
	res := m.run("add_reference", 0, func() error {
		return m.store.AddReference(id)
	})
	return res.Success
}

// RemoveReference drops a reference. When the count reaches zero on an
// object marked for deletion, the object is deleted in the same critical
// section. It reports false when the object does not exist or holds no
// references.
func (m *Manager) RemoveReference(id types.ObjectID) bool {
	res := m.run("remove_reference", 0, func() error {
		return m.removeReference(id)
	})
	return res.Success
}

func (m *Manager) removeReference(id types.ObjectID) error {
	remaining, err := m.store.ReleaseObject(id)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	obj, ok := m.store.Lookup(id)
	if !ok || !obj.PendingDelete() {
		return nil
	}
	if err := m.store.ReclaimPending(id); err != nil {
		m.logger.Error("eager deletion failed", map[string]interface{}{
			"object_id": id.Hex(),
			"error":     err.Error(),
		})
		return err
	}
	m.logger.Debug("object deleted on last release", map[string]interface{}{"object_id": id.Hex()})
	return nil
}

// DeleteObject deletes a sealed, unreferenced object. An object that is
// unsealed or still referenced is marked for deletion and OBJECT_NOT_SEALED
// or INVALID_REQUEST is returned; it is deleted when its last reference is
// released.
func (m *Manager) DeleteObject(id types.ObjectID) plasmaerrors.Result {
	return m.run("delete", 0, func() error {
		obj, ok := m.store.Lookup(id)
		if ok && (!obj.IsSealed() || obj.RefCount() > 0) {
			if err := m.store.MarkPendingDelete(id); err != nil {
				return err
			}
			m.logger.Debug("delete deferred until last release", map[string]interface{}{
				"object_id": id.Hex(),
				"refs":      obj.RefCount(),
			})
		}
		return m.store.DeleteObject(id)
	})
}

// AbortObject discards an object that was never sealed.
func (m *Manager) AbortObject(id types.ObjectID) plasmaerrors.Result {
	return m.run("abort", 0, func() error {
		return m.store.AbortObject(id)
	})
}

// EvictObject evicts a single unreferenced sealed object.
func (m *Manager) EvictObject(id types.ObjectID) plasmaerrors.Result {
	return m.run("evict", 0, func() error {
		return m.store.EvictObject(id)
	})
}

// EvictObjects evicts every listed object that is evictable and returns the
// bytes freed. Ids that are missing or in use are skipped.
func (m *Manager) EvictObjects(ids []types.ObjectID) int64 {
	var freed int64
	m.run("evict", 0, func() error {
		for _, id := range ids {
			size, ok := m.store.ObjectSize(id)
			if !ok {
				continue
			}
			if err := m.store.EvictObject(id); err == nil {
				freed += size
			}
		}
		return nil
	})
	return freed
}

// Evict frees at least bytesNeeded bytes of unreferenced sealed objects,
// oldest first, if that many are available. It returns the bytes freed.
func (m *Manager) Evict(bytesNeeded int64) int64 {
	var freed int64
	m.run("evict", 0, func() error {
		freed = m.store.Evict(bytesNeeded)
		return nil
	})
	return freed
}

// VerifyObject checks a sealed object against its seal-time checksum.
func (m *Manager) VerifyObject(id types.ObjectID) plasmaerrors.Result {
	return m.run("verify", 0, func() error {
		return m.store.VerifyObject(id)
	})
}

// query runs a read-only fn under the lock without recording an operation.
func (m *Manager) query(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

func (m *Manager) Contains(id types.ObjectID) (ok bool) {
	m.query(func() { ok = m.store.Contains(id) })
	return ok
}

func (m *Manager) IsSealed(id types.ObjectID) (ok bool) {
	m.query(func() { ok = m.store.IsSealed(id) })
	return ok
}

// GetObjectState returns the state of id and whether it exists.
func (m *Manager) GetObjectState(id types.ObjectID) (state types.ObjectState, ok bool) {
	m.query(func() { state, ok = m.store.GetObjectState(id) })
	return state, ok
}

// Lookup returns a copy of the record for id.
func (m *Manager) Lookup(id types.ObjectID) (view types.ObjectView, ok bool) {
	m.query(func() {
		var obj *store.LocalObject
		if obj, ok = m.store.Lookup(id); ok {
			view = obj.View()
		}
	})
	return view, ok
}

// Objects returns a copy of every live record.
func (m *Manager) Objects() (views []types.ObjectView) {
	m.query(func() { views = m.store.Views() })
	return views
}

// EvictableObjects returns the eviction candidates, oldest first.
func (m *Manager) EvictableObjects() (ids []types.ObjectID) {
	m.query(func() { ids = m.store.EvictableObjects() })
	return ids
}

func (m *Manager) Len() (n int) {
	m.query(func() { n = m.store.Len() })
	return n
}

func (m *Manager) IsEmpty() bool { return m.Len() == 0 }

// BytesUsed returns the bytes held by live objects.
func (m *Manager) BytesUsed() (n int64) {
	m.query(func() { n = m.store.BytesUsed() })
	return n
}

// Stats returns an immutable snapshot of the object statistics.
func (m *Manager) Stats() (s stats.Snapshot) {
	m.query(func() { s = m.store.Stats() })
	return s
}

// AllocatorStats returns the allocator counters.
func (m *Manager) AllocatorStats() allocator.Stats {
	return m.alloc.Stats()
}

// CacheStats returns the eviction cache counters.
func (m *Manager) CacheStats() (s eviction.CacheStats) {
	m.query(func() { s = m.store.Policy().Cache().Stats() })
	return s
}

// Report bundles every statistic for reporting surfaces.
type Report struct {
	Objects   stats.Snapshot      `json:"objects"`
	Allocator allocator.Stats     `json:"allocator"`
	Cache     eviction.CacheStats `json:"eviction_cache"`
	Capacity  int64               `json:"capacity"`
	BytesUsed int64               `json:"bytes_used"`
}

// Report returns all statistics taken under a single lock acquisition.
func (m *Manager) Report() (r Report) {
	m.query(func() {
		r = Report{
			Objects:   m.store.Stats(),
			Allocator: m.alloc.Stats(),
			Cache:     m.store.Policy().Cache().Stats(),
			Capacity:  m.store.Capacity(),
			BytesUsed: m.store.BytesUsed(),
		}
	})
	return r
}

func (m *Manager) DebugString() (s string) {
	m.query(func() { s = m.store.DebugString() })
	return s
}

// Close frees every object and closes the allocator. Subsequent operations
// fail with INVALID_REQUEST.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	n := m.store.Len()
	m.store.Clear()
	m.mu.Unlock()

	m.logger.Info("object store closed", map[string]interface{}{"objects_released": n})
	return m.alloc.Close()
}
