// Package store holds object records, their allocations and the eviction
// candidates. An ObjectStore is not synchronized: the lifecycle manager owns
// the single lock that covers the record map, the eviction cache and the
// statistics, since every transition touches all three.
package store

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/plasmastore/plasmastore/internal/allocator"
	"github.com/plasmastore/plasmastore/internal/eviction"
	"github.com/plasmastore/plasmastore/internal/stats"
	plasmaerrors "github.com/plasmastore/plasmastore/pkg/errors"
	"github.com/plasmastore/plasmastore/pkg/types"
	"github.com/plasmastore/plasmastore/pkg/utils"
)

// Config configures an ObjectStore.
type Config struct {
	// Capacity bounds the summed size of live objects admitted through the
	// primary pool. Zero means the allocator footprint limit.
	Capacity int64
	// EvictionCapacity sizes the eviction cache. Zero means Capacity.
	EvictionCapacity int64
	// FallbackEnabled lets CreateObject spill to the fallback pool once
	// primary space is exhausted and eviction did not help.
	FallbackEnabled bool
	// EvictOnCreate evicts unreferenced sealed objects when a create does not
	// fit, then retries the primary allocation once.
	EvictOnCreate bool
	// ChecksumOnSeal records a checksum of the buffer at seal time.
	ChecksumOnSeal bool
	// OnReclaim is called for every record destroyed by delete or eviction.
	// Aborted objects are not reported.
	OnReclaim func(view types.ObjectView, reason Reason)
}

// Reason records why a record was destroyed.
type Reason string

const (
	ReasonDeleted Reason = "deleted"
	ReasonEvicted Reason = "evicted"
	ReasonAborted Reason = "aborted"
)

// ObjectStore implements the per-object state machine:
//
//	(absent) -Create-> Created -Seal-> Sealed -Delete(ref=0)-> (absent)
//	Created -Abort-> (absent)
//
// Sealed objects with no references are eviction candidates.
type ObjectStore struct {
	config    Config
	allocator allocator.Allocator
	objects   map[types.ObjectID]*LocalObject
	policy    *eviction.LRUEvictionPolicy
	stats     *stats.Collector
	logger    *utils.StructuredLogger

	bytesUsed int64
}

// NewObjectStore creates an empty store drawing memory from alloc.
func NewObjectStore(alloc allocator.Allocator, config Config, logger *utils.StructuredLogger) *ObjectStore {
	if config.Capacity <= 0 {
		config.Capacity = alloc.FootprintLimit()
	}
	if config.EvictionCapacity <= 0 {
		config.EvictionCapacity = config.Capacity
	}

	s := &ObjectStore{
		config:    config,
		allocator: alloc,
		objects:   make(map[types.ObjectID]*LocalObject),
		stats:     stats.NewCollector(),
		logger:    utils.OrNop(logger).WithComponent("store"),
	}
	s.policy = eviction.NewLRUEvictionPolicy(s, alloc, config.EvictionCapacity)
	return s
}

// CreateObject allocates and inserts a new unsealed record. Fallback is used
// only when both allowFallback and Config.FallbackEnabled are set.
func (s *ObjectStore) CreateObject(info types.ObjectInfo, source types.ObjectSource, allowFallback bool) (*LocalObject, error) {
	if info.DataSize < 0 || info.MetadataSize < 0 {
		return nil, s.fail("create", plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidRequest,
			"negative object size: data=%d metadata=%d", info.DataSize, info.MetadataSize), info.ID)
	}
	if !source.Valid() {
		return nil, s.fail("create", plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidRequest,
			"invalid object source %d", source), info.ID)
	}
	if _, ok := s.objects[info.ID]; ok {
		return nil, s.fail("create", plasmaerrors.Newf(plasmaerrors.ErrCodeObjectExists,
			"object %s already exists", info.ID), info.ID)
	}

	size := info.TotalSize()
	alloc, err := s.allocate(size, allowFallback && s.config.FallbackEnabled)
	if err != nil {
		return nil, s.fail("create", err, info.ID)
	}
	if alloc.IsFallback && source == types.CreatedByWorker {
		source = types.CreatedByFallbackAllocation
	}

	if info.OwnerAddress != nil {
		info.OwnerAddress = append([]byte(nil), info.OwnerAddress...)
	}
	obj := &LocalObject{
		info:       info,
		state:      types.ObjectCreated,
		source:     source,
		allocation: alloc,
		createTime: time.Now(),
	}
	s.objects[info.ID] = obj
	s.bytesUsed += size
	s.stats.ObjectCreated(obj.view())

	s.logger.Debug("object created", map[string]interface{}{
		"object_id": info.ID.Hex(),
		"size":      size,
		"source":    source.String(),
		"fallback":  alloc.IsFallback,
	})
	return obj, nil
}

// allocate tries the primary pool, then eviction, then the fallback pool.
// Each step is attempted at most once.
func (s *ObjectStore) allocate(size int64, fallback bool) (*allocator.Allocation, error) {
	var primaryErr error = plasmaerrors.Newf(plasmaerrors.ErrCodeOutOfMemory,
		"cannot admit %d bytes: %d of %d bytes available", size, s.AvailableCapacity(), s.config.Capacity)

	if size <= s.AvailableCapacity() {
		a, err := s.allocator.Allocate(size)
		if err == nil {
			return a, nil
		}
		if !plasmaerrors.HasCode(err, plasmaerrors.ErrCodeOutOfMemory) {
			return nil, err
		}
		primaryErr = err
	}

	if s.config.EvictOnCreate && s.evictForCreate(size) > 0 && size <= s.AvailableCapacity() {
		a, err := s.allocator.Allocate(size)
		if err == nil {
			return a, nil
		}
		if !plasmaerrors.HasCode(err, plasmaerrors.ErrCodeOutOfMemory) {
			return nil, err
		}
		primaryErr = err
	}

	if !fallback {
		return nil, primaryErr
	}
	a, err := s.allocator.FallbackAllocate(size)
	if err != nil {
		return nil, err
	}
	s.logger.Warn("primary pool exhausted, using fallback allocation", map[string]interface{}{
		"size":              size,
		"primary_allocated": s.allocator.PrimaryAllocated(),
		"footprint_limit":   s.allocator.FootprintLimit(),
	})
	return a, nil
}

// evictForCreate frees room for size bytes in the allocator and in the
// capacity budget and returns the bytes freed.
func (s *ObjectStore) evictForCreate(size int64) int64 {
	var freed int64
	var count int

	_, ids := s.policy.RequireSpace(size)
	for _, id := range ids {
		if obj, ok := s.objects[id]; ok {
			freed += s.destroy(obj, ReasonEvicted)
			count++
		}
	}
	if short := size - s.AvailableCapacity(); short > 0 {
		n, bytes := s.evict(short)
		count += n
		freed += bytes
	}

	if count > 0 {
		s.policy.Cache().RecordEviction(count, freed)
		s.logger.Warn("evicted objects to make room", map[string]interface{}{
			"requested": size,
			"objects":   count,
			"freed":     freed,
		})
	}
	return freed
}

// SealObject makes an object immutable. An unreferenced sealed object
// becomes an eviction candidate.
func (s *ObjectStore) SealObject(id types.ObjectID) error {
	obj, ok := s.objects[id]
	if !ok {
		return s.notFound("seal", id)
	}
	if obj.IsSealed() {
		return s.fail("seal", plasmaerrors.Newf(plasmaerrors.ErrCodeObjectAlreadySealed,
			"object %s already sealed", id), id)
	}

	var sum uint64
	if s.config.ChecksumOnSeal {
		var err error
		if sum, err = Checksum(obj.Buffer()); err != nil {
			return s.fail("seal", plasmaerrors.Wrap(err, plasmaerrors.ErrCodeUnexpected, "checksum failed"), id)
		}
	}

	before := obj.view()
	obj.state = types.ObjectSealed
	obj.constructDuration = time.Since(obj.createTime)
	obj.checksum = sum
	if obj.refCount == 0 {
		s.policy.ObjectCreated(id)
	}
	s.stats.ObjectChanged(before, obj.view())

	s.logger.Debug("object sealed", map[string]interface{}{
		"object_id":    id.Hex(),
		"construct_us": obj.constructDuration.Microseconds(),
	})
	return nil
}

// VerifyObject recomputes the checksum of a sealed object and compares it with
// the one recorded at seal time.
func (s *ObjectStore) VerifyObject(id types.ObjectID) error {
	obj, ok := s.objects[id]
	if !ok {
		return s.notFound("verify", id)
	}
	if !obj.IsSealed() {
		return s.fail("verify", plasmaerrors.Newf(plasmaerrors.ErrCodeObjectNotSealed,
			"object %s not sealed", id), id)
	}
	if !s.config.ChecksumOnSeal {
		return s.fail("verify", plasmaerrors.NewError(plasmaerrors.ErrCodeInvalidRequest,
			"checksums are not recorded"), id)
	}
	sum, err := Checksum(obj.Buffer())
	if err != nil {
		return s.fail("verify", plasmaerrors.Wrap(err, plasmaerrors.ErrCodeUnexpected, "checksum failed"), id)
	}
	if sum != obj.checksum {
		return s.fail("verify", plasmaerrors.Newf(plasmaerrors.ErrCodeIOError,
			"object %s checksum mismatch: sealed %016x, now %016x", id, obj.checksum, sum), id)
	}
	return nil
}

// GetObject takes a reference on a sealed object.
func (s *ObjectStore) GetObject(id types.ObjectID) (types.ObjectRef, error) {
	obj, ok := s.objects[id]
	if !ok {
		return types.ObjectRef{}, s.notFound("get", id)
	}
	if !obj.IsSealed() {
		return types.ObjectRef{}, s.fail("get", plasmaerrors.Newf(plasmaerrors.ErrCodeObjectNotSealed,
			"object %s not sealed", id), id)
	}
	s.addRef(obj)
	return obj.ref(), nil
}

// AddReference takes a reference on an object in any state.
func (s *ObjectStore) AddReference(id types.ObjectID) error {
	obj, ok := s.objects[id]
	if !ok {
		return s.notFound("add_reference", id)
	}
	s.addRef(obj)
	return nil
}

func (s *ObjectStore) addRef(obj *LocalObject) {
	before := obj.view()
	obj.refCount++
	if obj.refCount == 1 {
		s.policy.BeginObjectAccess(obj.ID())
	}
	s.stats.ObjectChanged(before, obj.view())
}

// ReleaseObject drops one reference and returns how many remain. A sealed
// object whose count reaches zero becomes an eviction candidate again.
func (s *ObjectStore) ReleaseObject(id types.ObjectID) (uint32, error) {
	obj, ok := s.objects[id]
	if !ok {
		return 0, s.notFound("release", id)
	}
	if obj.refCount == 0 {
		return 0, s.fail("release", plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidRequest,
			"object %s has no references to release", id), id)
	}

	before := obj.view()
	obj.refCount--
	if obj.refCount == 0 && obj.IsSealed() {
		s.policy.EndObjectAccess(id)
	}
	s.stats.ObjectChanged(before, obj.view())
	return obj.refCount, nil
}

// MarkPendingDelete flags an object for deletion once its last reference is
// released.
func (s *ObjectStore) MarkPendingDelete(id types.ObjectID) error {
	obj, ok := s.objects[id]
	if !ok {
		return s.notFound("mark_pending_delete", id)
	}
	if obj.pendingDelete {
		return nil
	}
	before := obj.view()
	obj.pendingDelete = true
	s.stats.ObjectChanged(before, obj.view())
	return nil
}

// DeleteObject destroys a sealed, unreferenced object and frees its memory.
func (s *ObjectStore) DeleteObject(id types.ObjectID) error {
	obj, ok := s.objects[id]
	if !ok {
		return s.notFound("delete", id)
	}
	if !obj.IsSealed() {
		return s.fail("delete", plasmaerrors.Newf(plasmaerrors.ErrCodeObjectNotSealed,
			"object %s not sealed", id), id)
	}
	if obj.refCount > 0 {
		return s.fail("delete", plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidRequest,
			"object %s has %d active references", id, obj.refCount), id)
	}
	s.destroy(obj, ReasonDeleted)
	return nil
}

// ReclaimPending destroys an unreferenced object marked for deletion, sealed
// or not. It is how a deferred delete completes on the last release.
func (s *ObjectStore) ReclaimPending(id types.ObjectID) error {
	obj, ok := s.objects[id]
	if !ok {
		return s.notFound("reclaim", id)
	}
	if !obj.pendingDelete {
		return s.fail("reclaim", plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidRequest,
			"object %s is not marked for deletion", id), id)
	}
	if obj.refCount > 0 {
		return s.fail("reclaim", plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidRequest,
			"object %s has %d active references", id, obj.refCount), id)
	}
	s.destroy(obj, ReasonDeleted)
	return nil
}

// AbortObject destroys an object that was never sealed.
func (s *ObjectStore) AbortObject(id types.ObjectID) error {
	obj, ok := s.objects[id]
	if !ok {
		return s.notFound("abort", id)
	}
	if obj.IsSealed() {
		return s.fail("abort", plasmaerrors.Newf(plasmaerrors.ErrCodeObjectAlreadySealed,
			"object %s already sealed", id), id)
	}
	s.destroy(obj, ReasonAborted)
	return nil
}

// Evict destroys eviction candidates, oldest first, until bytesNeeded bytes
// are freed or no candidate is left. It returns the bytes freed.
func (s *ObjectStore) Evict(bytesNeeded int64) int64 {
	n, freed := s.evict(bytesNeeded)
	if n > 0 {
		s.policy.Cache().RecordEviction(n, freed)
		s.logger.Debug("evicted objects", map[string]interface{}{
			"requested": bytesNeeded,
			"objects":   n,
			"freed":     freed,
		})
	}
	return freed
}

func (s *ObjectStore) evict(bytesNeeded int64) (int, int64) {
	_, ids := s.policy.ChooseObjectsToEvict(bytesNeeded)
	var freed int64
	var n int
	for _, id := range ids {
		obj, ok := s.objects[id]
		if !ok {
			s.policy.RemoveObject(id)
			continue
		}
		freed += s.destroy(obj, ReasonEvicted)
		n++
	}
	return n, freed
}

// EvictObject destroys a single eviction candidate.
func (s *ObjectStore) EvictObject(id types.ObjectID) error {
	obj, ok := s.objects[id]
	if !ok {
		return s.notFound("evict", id)
	}
	if !s.policy.IsObjectEvictable(id) {
		return s.fail("evict", plasmaerrors.Newf(plasmaerrors.ErrCodeInvalidRequest,
			"object %s is not evictable (sealed=%t refs=%d)", id, obj.IsSealed(), obj.refCount), id)
	}
	freed := s.destroy(obj, ReasonEvicted)
	s.policy.Cache().RecordEviction(1, freed)
	return nil
}

// destroy removes every trace of obj and frees its allocation.
func (s *ObjectStore) destroy(obj *LocalObject, reason Reason) int64 {
	id := obj.ID()
	size := obj.Size()
	view := obj.view()

	s.policy.RemoveObject(id)
	delete(s.objects, id)
	s.bytesUsed -= size
	s.stats.ObjectDeleted(view)

	if err := s.allocator.Free(obj.allocation); err != nil {
		s.logger.Error("failed to free object allocation", map[string]interface{}{
			"object_id": id.Hex(),
			"reason":    string(reason),
			"error":     err.Error(),
		})
	}

	s.logger.Debug("object destroyed", map[string]interface{}{
		"object_id": id.Hex(),
		"reason":    string(reason),
		"size":      size,
	})
	if reason != ReasonAborted && s.config.OnReclaim != nil {
		s.config.OnReclaim(obj.View(), reason)
	}
	return size
}

// ObjectSize reports the size of a live object.
func (s *ObjectStore) ObjectSize(id types.ObjectID) (int64, bool) {
	obj, ok := s.objects[id]
	if !ok {
		return 0, false
	}
	return obj.Size(), true
}

// InFallbackPool reports whether id is backed by the fallback pool.
func (s *ObjectStore) InFallbackPool(id types.ObjectID) bool {
	obj, ok := s.objects[id]
	return ok && obj.IsFallback()
}

// Lookup returns the record for id.
func (s *ObjectStore) Lookup(id types.ObjectID) (*LocalObject, bool) {
	obj, ok := s.objects[id]
	return obj, ok
}

// GetObjectState returns the state of id.
func (s *ObjectStore) GetObjectState(id types.ObjectID) (types.ObjectState, bool) {
	obj, ok := s.objects[id]
	if !ok {
		return 0, false
	}
	return obj.state, true
}

func (s *ObjectStore) Contains(id types.ObjectID) bool {
	_, ok := s.objects[id]
	return ok
}

func (s *ObjectStore) IsSealed(id types.ObjectID) bool {
	obj, ok := s.objects[id]
	return ok && obj.IsSealed()
}

func (s *ObjectStore) Len() int      { return len(s.objects) }
func (s *ObjectStore) IsEmpty() bool { return len(s.objects) == 0 }

// ObjectIDs returns the id of every live object in no particular order.
func (s *ObjectStore) ObjectIDs() []types.ObjectID {
	ids := make([]types.ObjectID, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	return ids
}

// Views returns a copy of every live record.
func (s *ObjectStore) Views() []types.ObjectView {
	views := make([]types.ObjectView, 0, len(s.objects))
	for _, obj := range s.objects {
		views = append(views, obj.View())
	}
	return views
}

// EvictableObjects returns the eviction candidates, oldest first.
func (s *ObjectStore) EvictableObjects() []types.ObjectID {
	return s.policy.Cache().Keys()
}

func (s *ObjectStore) Capacity() int64  { return s.config.Capacity }
func (s *ObjectStore) BytesUsed() int64 { return s.bytesUsed }

// AvailableCapacity is capacity minus the bytes held by live objects.
func (s *ObjectStore) AvailableCapacity() int64 {
	if avail := s.config.Capacity - s.bytesUsed; avail > 0 {
		return avail
	}
	return 0
}

// Stats returns a snapshot of the object statistics.
func (s *ObjectStore) Stats() stats.Snapshot { return s.stats.Snapshot() }

// Policy exposes the eviction policy.
func (s *ObjectStore) Policy() *eviction.LRUEvictionPolicy { return s.policy }

// Allocator returns the allocator backing the store.
func (s *ObjectStore) Allocator() allocator.Allocator { return s.allocator }

// Clear destroys every record and frees its allocation without reporting
// reclaims.
func (s *ObjectStore) Clear() {
	for _, obj := range s.objects {
		s.destroy(obj, ReasonAborted)
	}
}

func (s *ObjectStore) DebugString() string {
	return fmt.Sprintf("ObjectStore(objects=%d, bytes_used=%d, capacity=%d, %s)",
		len(s.objects), s.bytesUsed, s.config.Capacity, s.policy.DebugString())
}

func (s *ObjectStore) notFound(op string, id types.ObjectID) error {
	return plasmaerrors.Newf(plasmaerrors.ErrCodeObjectNotFound, "object %s not found", id).
		WithComponent("store").WithOperation(op).WithContext("object_id", id.Hex())
}

func (s *ObjectStore) fail(op string, err error, id types.ObjectID) error {
	var pe *plasmaerrors.PlasmaError
	if !stderrors.As(err, &pe) {
		pe = plasmaerrors.Wrap(err, plasmaerrors.ErrCodeUnexpected, op+" failed")
	}
	if pe.Component == "" {
		pe = pe.WithComponent("store")
	}
	if pe.Operation == "" {
		pe = pe.WithOperation(op)
	}
	s.logger.Debug("operation failed", map[string]interface{}{
		"operation": op,
		"object_id": id.Hex(),
		"code":      string(pe.Code),
	})
	return pe.WithContext("object_id", id.Hex())
}
