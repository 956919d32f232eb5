package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plasmastore/plasmastore/internal/lifecycle"
	"github.com/plasmastore/plasmastore/pkg/types"
)

// gauge is one store statistic exported at scrape time.
type gauge struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(r *lifecycle.Report) float64
}

// storeCollector reads a single report per scrape so that every exported
// value comes from the same consistent snapshot.
type storeCollector struct {
	source   ReportSource
	gauges   []gauge
	bySource *prometheus.Desc
	byPool   *prometheus.Desc
}

func newStoreCollector(source ReportSource, config *Config) *storeCollector {
	name := func(n string) string {
		return prometheus.BuildFQName(config.Namespace, config.Subsystem, n)
	}
	desc := func(n, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(name(n), help, labels, config.Labels)
	}
	g := func(n, help string, kind prometheus.ValueType, value func(r *lifecycle.Report) float64) gauge {
		return gauge{desc: desc(n, help), kind: kind, value: value}
	}
	gv, cv := prometheus.GaugeValue, prometheus.CounterValue

	return &storeCollector{
		source: source,
		gauges: []gauge{
			g("objects", "Live objects", gv, func(r *lifecycle.Report) float64 { return float64(r.Objects.NumObjects) }),
			g("bytes_used", "Bytes held by live objects", gv, func(r *lifecycle.Report) float64 { return float64(r.BytesUsed) }),
			g("capacity_bytes", "Object store admission capacity", gv, func(r *lifecycle.Report) float64 { return float64(r.Capacity) }),
			g("objects_created_total", "Objects ever created", cv, func(r *lifecycle.Report) float64 { return float64(r.Objects.NumObjectsCreatedTotal) }),
			g("bytes_created_total", "Bytes ever created", cv, func(r *lifecycle.Report) float64 { return float64(r.Objects.NumBytesCreatedTotal) }),
			g("fallback_allocations_total", "Objects ever created in the fallback pool", cv, func(r *lifecycle.Report) float64 {
				return float64(r.Objects.NumFallbackAllocationsTotal)
			}),
			g("unsealed_bytes", "Bytes of objects not yet sealed", gv, func(r *lifecycle.Report) float64 { return float64(r.Objects.NumBytesUnsealed) }),
			g("in_use_bytes", "Bytes of referenced objects", gv, func(r *lifecycle.Report) float64 { return float64(r.Objects.NumBytesInUse) }),
			g("evictable_bytes", "Bytes of sealed unreferenced objects", gv, func(r *lifecycle.Report) float64 { return float64(r.Objects.NumBytesEvictable) }),
			g("spillable_bytes", "Bytes of sealed objects held only by their creator", gv, func(r *lifecycle.Report) float64 {
				return float64(r.Objects.NumBytesSpillable)
			}),
			g("pending_delete_objects", "Objects waiting for their last reference to be released", gv, func(r *lifecycle.Report) float64 {
				return float64(r.Objects.NumObjectsPendingDelete)
			}),
			g("allocator_footprint_limit_bytes", "Primary pool ceiling", gv, func(r *lifecycle.Report) float64 {
				return float64(r.Allocator.FootprintLimitBytes)
			}),
			g("allocator_peak_bytes", "Highest allocated byte count", gv, func(r *lifecycle.Report) float64 { return float64(r.Allocator.PeakBytes) }),
			g("allocator_failed_allocations_total", "Allocations rejected by the allocator", cv, func(r *lifecycle.Report) float64 {
				return float64(r.Allocator.NumFailedAllocs)
			}),
			g("eviction_cache_entries", "Objects in the eviction cache", gv, func(r *lifecycle.Report) float64 { return float64(r.Cache.Entries) }),
			g("eviction_cache_used_bytes", "Bytes in the eviction cache", gv, func(r *lifecycle.Report) float64 { return float64(r.Cache.UsedCapacity) }),
			g("eviction_cache_capacity_bytes", "Eviction cache capacity", gv, func(r *lifecycle.Report) float64 { return float64(r.Cache.Capacity) }),
		},
		bySource: desc("source_objects", "Live objects by provenance", "source"),
		byPool:   desc("pool_bytes", "Allocated bytes by pool and seal state", "pool", "state"),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
	ch <- c.bySource
	ch <- c.byPool
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	r := c.source.Report()

	for _, g := range c.gauges {
		ch <- prometheus.MustNewConstMetric(g.desc, g.kind, g.value(&r))
	}

	for _, src := range []types.ObjectSource{
		types.CreatedByWorker, types.RestoredFromStorage, types.ReceivedFromRemoteNode, types.ErrorStored,
	} {
		objects, _ := r.Objects.BySource(src)
		ch <- prometheus.MustNewConstMetric(c.bySource, prometheus.GaugeValue, float64(objects), src.String())
	}

	pools := []struct {
		pool, state string
		bytes       int64
	}{
		{"primary", "sealed", r.Objects.NumBytesPrimarySealed},
		{"primary", "unsealed", r.Objects.NumBytesPrimaryUnsealed},
		{"fallback", "sealed", r.Objects.NumBytesFallbackSealed},
		{"fallback", "unsealed", r.Objects.NumBytesFallbackUnsealed},
	}
	for _, p := range pools {
		ch <- prometheus.MustNewConstMetric(c.byPool, prometheus.GaugeValue, float64(p.bytes), p.pool, p.state)
	}
}
