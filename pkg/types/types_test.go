package types

import (
	"testing"
	"time"
)

func TestObjectID(t *testing.T) {
	t.Run("random ids are distinct and non-nil", func(t *testing.T) {
		a, b := NewObjectID(), NewObjectID()
		if a == b {
			t.Error("NewObjectID() returned the same id twice")
		}
		if a.IsNil() {
			t.Error("NewObjectID() returned the nil id")
		}
	})

	t.Run("hex round trip", func(t *testing.T) {
		id := NewObjectID()
		parsed, err := ObjectIDFromHex(id.Hex())
		if err != nil {
			t.Fatalf("ObjectIDFromHex() error = %v", err)
		}
		if parsed != id {
			t.Errorf("ObjectIDFromHex() = %v, want %v", parsed, id)
		}
		if len(id.Hex()) != 2*ObjectIDSize {
			t.Errorf("len(Hex()) = %d, want %d", len(id.Hex()), 2*ObjectIDSize)
		}
	})

	t.Run("binary rejects wrong length", func(t *testing.T) {
		if _, err := ObjectIDFromBinary(make([]byte, 20)); err == nil {
			t.Error("ObjectIDFromBinary() error = nil, want length error")
		}
		if _, err := ObjectIDFromHex("zz"); err == nil {
			t.Error("ObjectIDFromHex() error = nil, want decode error")
		}
	})

	t.Run("binary returns a copy", func(t *testing.T) {
		id := NewObjectID()
		b := id.Binary()
		b[0] ^= 0xff
		if id.Binary()[0] == b[0] {
			t.Error("Binary() aliases the id")
		}
	})
}

func TestObjectSource(t *testing.T) {
	tests := []struct {
		source ObjectSource
		want   string
	}{
		{CreatedByWorker, "created_by_worker"},
		{RestoredFromStorage, "restored_from_storage"},
		{ReceivedFromRemoteNode, "received_from_remote_node"},
		{ErrorStored, "error_stored"},
		{CreatedByFallbackAllocation, "created_by_fallback_allocation"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.source.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if !tt.source.Valid() {
				t.Error("Valid() = false")
			}
		})
	}

	if ObjectSource(9).Valid() {
		t.Error("ObjectSource(9).Valid() = true")
	}
	if len(AllObjectSources) != 5 {
		t.Errorf("len(AllObjectSources) = %d, want 5", len(AllObjectSources))
	}
}

func TestSizes(t *testing.T) {
	info := ObjectInfo{DataSize: 100, MetadataSize: 8}
	if info.TotalSize() != 108 {
		t.Errorf("ObjectInfo.TotalSize() = %d, want 108", info.TotalSize())
	}
	view := ObjectView{DataSize: 5, MetadataSize: 3, State: ObjectSealed, CreateTime: time.Now()}
	if view.TotalSize() != 8 {
		t.Errorf("ObjectView.TotalSize() = %d, want 8", view.TotalSize())
	}
	if view.State.String() != "sealed" || ObjectCreated.String() != "created" {
		t.Error("ObjectState.String() mismatch")
	}
}

func TestNopRecorder(t *testing.T) {
	var r OperationRecorder = NopRecorder{}
	r.RecordOperation("create", time.Millisecond, 10, true)
	r.RecordEviction(1, 10)
}
