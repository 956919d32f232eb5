package store

import (
	"time"

	"github.com/plasmastore/plasmastore/internal/allocator"
	"github.com/plasmastore/plasmastore/pkg/types"
)

// LocalObject is the record the store keeps for every object it holds. It
// exclusively owns its allocation until the record is destroyed.
type LocalObject struct {
	info          types.ObjectInfo
	state         types.ObjectState
	source        types.ObjectSource
	refCount      uint32
	pendingDelete bool
	allocation    *allocator.Allocation

	createTime        time.Time
	constructDuration time.Duration
	checksum          uint64
}

func (o *LocalObject) ID() types.ObjectID         { return o.info.ID }
func (o *LocalObject) Info() types.ObjectInfo     { return o.info }
func (o *LocalObject) State() types.ObjectState   { return o.state }
func (o *LocalObject) Source() types.ObjectSource { return o.source }
func (o *LocalObject) RefCount() uint32           { return o.refCount }
func (o *LocalObject) PendingDelete() bool        { return o.pendingDelete }
func (o *LocalObject) IsSealed() bool             { return o.state == types.ObjectSealed }
func (o *LocalObject) IsFallback() bool           { return o.allocation.IsFallback }
func (o *LocalObject) Size() int64                { return o.info.TotalSize() }

// Allocation returns the backing allocation.
func (o *LocalObject) Allocation() *allocator.Allocation { return o.allocation }

// Buffer returns data followed by metadata.
func (o *LocalObject) Buffer() []byte { return o.allocation.Bytes() }

// Data returns the data section of the buffer.
func (o *LocalObject) Data() []byte { return o.Buffer()[:o.info.DataSize] }

// Metadata returns the metadata section of the buffer.
func (o *LocalObject) Metadata() []byte { return o.Buffer()[o.info.DataSize:] }

// View returns a detached copy of the record.
func (o *LocalObject) View() types.ObjectView {
	v := o.view()
	if o.info.OwnerAddress != nil {
		v.OwnerAddress = append([]byte(nil), o.info.OwnerAddress...)
	}
	return v
}

// view shares the owner address with the record; it is only handed to code
// that never retains it past the current operation.
func (o *LocalObject) view() types.ObjectView {
	return types.ObjectView{
		ID:               o.info.ID,
		DataSize:         o.info.DataSize,
		MetadataSize:     o.info.MetadataSize,
		State:            o.state,
		Source:           o.source,
		RefCount:         o.refCount,
		PendingDelete:    o.pendingDelete,
		IsFallback:       o.allocation.IsFallback,
		OwnerAddress:     o.info.OwnerAddress,
		CreateTime:       o.createTime,
		ConstructionTime: o.constructDuration,
		Checksum:         o.checksum,
	}
}

func (o *LocalObject) ref() types.ObjectRef {
	return types.ObjectRef{
		ID:           o.info.ID,
		DataSize:     o.info.DataSize,
		MetadataSize: o.info.MetadataSize,
		IsFallback:   o.allocation.IsFallback,
		Data:         o.Buffer(),
	}
}
