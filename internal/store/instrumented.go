package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/heysubinoy/flagstore/pkg/flags"
)

// Metrics holds the collectors updated by InstrumentedStorage.
type Metrics struct {
	Operations *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
}

// NewMetrics registers the storage collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flagstore_operations_total",
			Help: "Flag storage operations by operation and result.",
		}, []string{"op", "result"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flagstore_operation_seconds",
			Help:    "Latency of flag storage operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

// InstrumentedStorage wraps any flags.Storage implementation with timing
// metrics. This pattern works for every backend.
type InstrumentedStorage struct {
	storage flags.Storage
	metrics *Metrics
}

// Compile-time check to ensure InstrumentedStorage implements flags.Storage.
var _ flags.Storage = (*InstrumentedStorage)(nil)

// NewInstrumentedStorage wraps storage with instrumentation.
func NewInstrumentedStorage(storage flags.Storage, metrics *Metrics) *InstrumentedStorage {
	return &InstrumentedStorage{
		storage: storage,
		metrics: metrics,
	}
}

func (s *InstrumentedStorage) observe(op string, start time.Time, err error) {
	s.metrics.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	s.metrics.Operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case flags.IsDuplicate(err):
		return "duplicate"
	case flags.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

// CreateFlag delegates to the wrapped storage and records timing.
func (s *InstrumentedStorage) CreateFlag(ctx context.Context, flag flags.Flag) error {
	start := time.Now()
	err := s.storage.CreateFlag(ctx, flag)
	s.observe("create", start, err)
	return err
}

// GetFlag delegates to the wrapped storage and records timing. A miss is
// counted as not_found.
func (s *InstrumentedStorage) GetFlag(ctx context.Context, name string, env flags.Environment) (flags.Flag, bool, error) {
	start := time.Now()
	flag, found, err := s.storage.GetFlag(ctx, name, env)
	s.metrics.Latency.WithLabelValues("get").Observe(time.Since(start).Seconds())
	result := resultLabel(err)
	if err == nil && !found {
		result = "not_found"
	}
	s.metrics.Operations.WithLabelValues("get", result).Inc()
	return flag, found, err
}

// ListFlags delegates to the wrapped storage and records timing.
func (s *InstrumentedStorage) ListFlags(ctx context.Context) ([]flags.Flag, error) {
	start := time.Now()
	out, err := s.storage.ListFlags(ctx)
	s.observe("list", start, err)
	return out, err
}

// UpdateFlag delegates to the wrapped storage and records timing.
func (s *InstrumentedStorage) UpdateFlag(ctx context.Context, name string, env flags.Environment, patch flags.Patch) (flags.Flag, error) {
	start := time.Now()
	out, err := s.storage.UpdateFlag(ctx, name, env, patch)
	s.observe("update", start, err)
	return out, err
}

// DeleteFlag delegates to the wrapped storage and records timing.
func (s *InstrumentedStorage) DeleteFlag(ctx context.Context, name string) error {
	start := time.Now()
	err := s.storage.DeleteFlag(ctx, name)
	s.observe("delete", start, err)
	return err
}
