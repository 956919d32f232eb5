package types

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ObjectIDSize is the length in bytes of an ObjectID.
const ObjectIDSize = 28

// ObjectID is a fixed-size opaque object key. Only identity, hashing and
// ordering are meaningful.
type ObjectID [ObjectIDSize]byte

// NilObjectID is the all-zero identifier.
var NilObjectID ObjectID

// NewObjectID returns a random identifier.
func NewObjectID() ObjectID {
	var id ObjectID
	if _, err := rand.Read(id[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return id
}

// ObjectIDFromBinary builds an identifier from exactly ObjectIDSize bytes.
func ObjectIDFromBinary(b []byte) (ObjectID, error) {
	var id ObjectID
	if len(b) != ObjectIDSize {
		return id, fmt.Errorf("object id must be %d bytes, got %d", ObjectIDSize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ObjectIDFromHex parses the hexadecimal form produced by Hex.
func ObjectIDFromHex(s string) (ObjectID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return NilObjectID, fmt.Errorf("invalid object id %q: %w", s, err)
	}
	return ObjectIDFromBinary(b)
}

// Binary returns a copy of the raw identifier bytes.
func (id ObjectID) Binary() []byte {
	b := make([]byte, ObjectIDSize)
	copy(b, id[:])
	return b
}

// Hex returns the lowercase hexadecimal encoding.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// IsNil reports whether id is the all-zero identifier.
func (id ObjectID) IsNil() bool {
	return id == NilObjectID
}

func (id ObjectID) String() string {
	return "ObjectID(" + id.Hex() + ")"
}

// ObjectSource records how an object entered the store.
type ObjectSource int

const (
	CreatedByWorker ObjectSource = iota
	RestoredFromStorage
	ReceivedFromRemoteNode
	ErrorStored
	CreatedByFallbackAllocation
)

// AllObjectSources lists every source in declaration order.
var AllObjectSources = []ObjectSource{
	CreatedByWorker,
	RestoredFromStorage,
	ReceivedFromRemoteNode,
	ErrorStored,
	CreatedByFallbackAllocation,
}

func (s ObjectSource) String() string {
	switch s {
	case CreatedByWorker:
		return "created_by_worker"
	case RestoredFromStorage:
		return "restored_from_storage"
	case ReceivedFromRemoteNode:
		return "received_from_remote_node"
	case ErrorStored:
		return "error_stored"
	case CreatedByFallbackAllocation:
		return "created_by_fallback_allocation"
	default:
		return fmt.Sprintf("unknown_source(%d)", int(s))
	}
}

// Valid reports whether s is a declared source.
func (s ObjectSource) Valid() bool {
	return s >= CreatedByWorker && s <= CreatedByFallbackAllocation
}

// ObjectState is the seal state of an object.
type ObjectState int

const (
	ObjectCreated ObjectState = iota + 1
	ObjectSealed
)

func (s ObjectState) String() string {
	switch s {
	case ObjectCreated:
		return "created"
	case ObjectSealed:
		return "sealed"
	default:
		return "unknown"
	}
}

// ObjectInfo is the immutable description supplied at creation.
type ObjectInfo struct {
	ID           ObjectID `json:"id"`
	DataSize     int64    `json:"data_size"`
	MetadataSize int64    `json:"metadata_size"`
	OwnerAddress []byte   `json:"owner_address,omitempty"`
}

// TotalSize returns data plus metadata bytes.
func (i ObjectInfo) TotalSize() int64 {
	return i.DataSize + i.MetadataSize
}

// ObjectRef is handed to a consumer that acquired a reference on a sealed object.
type ObjectRef struct {
	ID           ObjectID `json:"id"`
	DataSize     int64    `json:"data_size"`
	MetadataSize int64    `json:"metadata_size"`
	IsFallback   bool     `json:"is_fallback"`
	Data         []byte   `json:"-"`
}

// ObjectView is a read-only copy of an object record, suitable for reporting.
type ObjectView struct {
	ID               ObjectID      `json:"id"`
	DataSize         int64         `json:"data_size"`
	MetadataSize     int64         `json:"metadata_size"`
	State            ObjectState   `json:"state"`
	Source           ObjectSource  `json:"source"`
	RefCount         uint32        `json:"ref_count"`
	PendingDelete    bool          `json:"pending_delete"`
	IsFallback       bool          `json:"is_fallback"`
	OwnerAddress     []byte        `json:"owner_address,omitempty"`
	CreateTime       time.Time     `json:"create_time"`
	ConstructionTime time.Duration `json:"construction_time"`
	Checksum         uint64        `json:"checksum,omitempty"`
}

// TotalSize returns data plus metadata bytes.
func (v ObjectView) TotalSize() int64 {
	return v.DataSize + v.MetadataSize
}
