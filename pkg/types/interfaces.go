package types

import "time"

// OperationRecorder receives per-operation outcomes from the store. The
// Prometheus collector implements it.
type OperationRecorder interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordEviction(objects int, bytes int64)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, time.Duration, int64, bool) {}

func (NopRecorder) RecordEviction(int, int64) {}
