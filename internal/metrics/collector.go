package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plasmastore/plasmastore/internal/lifecycle"
	plasmaerrors "github.com/plasmastore/plasmastore/pkg/errors"
	"github.com/plasmastore/plasmastore/pkg/types"
)

// Collector implements store metrics collection
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	errorCounter      *prometheus.CounterVec
	evictedObjects    prometheus.Counter
	evictedBytes      prometheus.Counter

	// Internal tracking
	operations map[string]*OperationMetrics
	lastReset  time.Time
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
	AvgSize       float64       `json:"avg_size"`
}

var _ types.OperationRecorder = (*Collector)(nil)

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "plasma",
			Labels:    make(map[string]string),
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool { return c.config.Enabled }

// Registry returns the Prometheus registry, or nil when disabled.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RegisterStore exports the statistics of src as gauges read at scrape time.
func (c *Collector) RegisterStore(src ReportSource) error {
	if !c.config.Enabled {
		return nil
	}
	return c.registry.Register(newStoreCollector(src, c.config))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordOperation records an operation with its metrics
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	metrics, exists := c.operations[operation]
	if !exists {
		metrics = &OperationMetrics{}
		c.operations[operation] = metrics
	}
	metrics.Count++
	metrics.TotalDuration += duration
	metrics.TotalSize += size
	if !success {
		metrics.Errors++
	}
	metrics.LastOperation = time.Now()
	metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	metrics.AvgSize = float64(metrics.TotalSize) / float64(metrics.Count)

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    status,
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())

	if size > 0 {
		c.operationSize.With(prometheus.Labels{
			"operation": operation,
		}).Observe(float64(size))
	}
}

// RecordEviction records objects reclaimed by eviction
func (c *Collector) RecordEviction(objects int, bytes int64) {
	if !c.config.Enabled {
		return
	}
	c.evictedObjects.Add(float64(objects))
	c.evictedBytes.Add(float64(bytes))
}

// RecordError records a failed operation by error code
func (c *Collector) RecordError(operation string, err error) {
	if !c.config.Enabled || err == nil {
		return
	}

	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"code":      classifyError(err),
	}).Inc()
}

// RecordResult records the error code of a failed Result
func (c *Collector) RecordResult(operation string, res plasmaerrors.Result) {
	if res.Success {
		return
	}
	c.RecordError(operation, res.Err())
}

// GetMetrics returns current metrics
func (c *Collector) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	metrics := make(map[string]interface{})

	// Copy operation metrics
	operations := make(map[string]*OperationMetrics)
	for k, v := range c.operations {
		op := *v
		operations[k] = &op
	}

	metrics["operations"] = operations
	metrics["last_reset"] = c.lastReset
	metrics["uptime"] = time.Since(c.lastReset)

	return metrics
}

// ResetMetrics resets the operation summary. Prometheus counters keep
// counting.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Helper methods

func (c *Collector) initMetrics() {
	ns, sub, labels := c.config.Namespace, c.config.Subsystem, c.config.Labels
	counterOpts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: labels}
	}

	// Operation metrics
	c.operationCounter = prometheus.NewCounterVec(
		counterOpts("operations_total", "Total number of store operations"),
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "operation_duration_seconds",
			Help:        "Duration of store operations in seconds",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 12), // 1us to ~4s
		},
		[]string{"operation"},
	)

	c.operationSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "operation_size_bytes",
			Help:        "Object size of store operations in bytes",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(64, 4, 14), // 64B to ~16GB
		},
		[]string{"operation"},
	)

	// Error metrics
	c.errorCounter = prometheus.NewCounterVec(
		counterOpts("errors_total", "Total number of failed operations by error code"),
		[]string{"operation", "code"},
	)

	// Eviction metrics
	c.evictedObjects = prometheus.NewCounter(counterOpts("evicted_objects_total", "Objects reclaimed by eviction"))
	c.evictedBytes = prometheus.NewCounter(counterOpts("evicted_bytes_total", "Bytes reclaimed by eviction"))
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.operationSize,
		c.errorCounter,
		c.evictedObjects,
		c.evictedBytes,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

func classifyError(err error) string {
	return string(plasmaerrors.CodeOf(err))
}

// DebugHandler serves a plain-text summary of recorded operations.
func (c *Collector) DebugHandler() http.Handler {
	return http.HandlerFunc(c.debugOperationsHandler)
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")

	// Helper to avoid errcheck issues
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("Plasma Store Operations Summary\n")
	writef("===============================\n\n")
	writef("Uptime: %v\n", time.Since(c.lastReset))
	writef("Last Reset: %v\n\n", c.lastReset)

	if len(c.operations) == 0 {
		writef("No operations recorded.\n")
		return
	}

	writef("%-20s %10s %10s %12s %12s %10s\n",
		"Operation", "Count", "Errors", "Avg Duration", "Avg Size", "Last Op")
	writef("%-20s %10s %10s %12s %12s %10s\n",
		"----------", "-----", "------", "------------", "--------", "-------")

	names := make([]string, 0, len(c.operations))
	for name := range c.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		op := c.operations[name]
		writef("%-20s %10d %10d %12v %12.0f %10s\n",
			name, op.Count, op.Errors, op.AvgDuration,
			op.AvgSize, op.LastOperation.Format("15:04:05"))
	}
}

// ReportSource supplies store statistics at scrape time.
type ReportSource interface {
	Report() lifecycle.Report
}
