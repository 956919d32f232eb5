/*
Package metrics exports plasma store metrics to Prometheus.

# Overview

Two kinds of series are exported from a single registry:

	┌──────────────┐  RecordOperation   ┌──────────────────────┐
	│  lifecycle   │ ─────────────────▶ │      Collector       │
	│   Manager    │  RecordEviction    │ operations_total     │
	│              │  RecordError       │ operation_duration_* │
	│              │                    │ errors_total{code}   │
	│              │  Report() (scrape) │ evicted_*_total      │
	│              │ ◀───────────────── │ store gauges         │
	└──────────────┘                    └──────────┬───────────┘
	                                               │ Handler()
	                                          GET /metrics

Operation series are pushed by the lifecycle manager after every call, outside
its lock. Store gauges (live objects, bytes by seal state and pool, eviction
cache usage, allocator counters) are pulled at scrape time from a single
Report, so one scrape never mixes two store states.

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Namespace: "plasma",
	})
	if err != nil {
		return err
	}
	manager.SetRecorder(collector)
	if err := collector.RegisterStore(manager); err != nil {
		return err
	}
	mux.Handle("/metrics", collector.Handler())

A disabled collector accepts every call and records nothing; its Handler
answers 404.
*/
package metrics
