package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "dueue"

// Metrics instruments the delivery engine and the storage layer.
type Metrics struct {
	published              *prometheus.CounterVec
	delivered              *prometheus.CounterVec
	acknowledged           *prometheus.CounterVec
	evicted                *prometheus.CounterVec
	evictionDeleteFailures *prometheus.CounterVec
	emptyReceives          *prometheus.CounterVec

	opDuration *prometheus.HistogramVec

	storageWriteBytes prometheus.Histogram
	storageReadBytes  prometheus.Histogram
	storageCommitTime prometheus.Histogram
}

// New creates a Metrics instance and registers everything with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_published_total",
			Help:      "Messages durably published per queue",
		}, []string{"queue"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_delivered_total",
			Help:      "Messages handed to a subscriber per queue",
		}, []string{"queue"}),
		acknowledged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_acknowledged_total",
			Help:      "Acknowledgements recorded per queue",
		}, []string{"queue"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "messages_evicted_total",
			Help:      "Expired messages evicted during receive scans",
		}, []string{"queue"}),
		evictionDeleteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "eviction_delete_failures_total",
			Help:      "Durable deletes that failed during expiry eviction",
		}, []string{"queue"}),
		emptyReceives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "empty_receives_total",
			Help:      "Receive calls that found no eligible message",
		}, []string{"queue"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Delivery engine operation latency, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		storageWriteBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "write_bytes",
			Help:      "Bytes per storage write",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}),
		storageReadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "read_bytes",
			Help:      "Bytes per storage read",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}),
		storageCommitTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "commit_duration_seconds",
			Help:      "Storage batch commit latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.published, m.delivered, m.acknowledged, m.evicted,
		m.evictionDeleteFailures, m.emptyReceives, m.opDuration,
		m.storageWriteBytes, m.storageReadBytes, m.storageCommitTime,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// NewNop returns metrics registered against a throwaway registry, for tests
// and for callers that do not expose an exporter.
func NewNop() *Metrics {
	m, _ := New(prometheus.NewRegistry())
	return m
}

func (m *Metrics) IncPublished(queue string)    { m.published.WithLabelValues(queue).Inc() }
func (m *Metrics) IncDelivered(queue string)    { m.delivered.WithLabelValues(queue).Inc() }
func (m *Metrics) IncAcknowledged(queue string) { m.acknowledged.WithLabelValues(queue).Inc() }
func (m *Metrics) IncEvicted(queue string)      { m.evicted.WithLabelValues(queue).Inc() }
func (m *Metrics) IncEmptyReceive(queue string) { m.emptyReceives.WithLabelValues(queue).Inc() }

func (m *Metrics) IncEvictionDeleteFailure(queue string) {
	m.evictionDeleteFailures.WithLabelValues(queue).Inc()
}

func (m *Metrics) ObserveOp(op string, elapsed time.Duration) {
	m.opDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// StorageHook adapts Metrics to the storage layer's observation interface.
type StorageHook struct {
	m *Metrics
}

// StorageHook returns an adapter satisfying pebblestore.MetricsHook.
func (m *Metrics) StorageHook() *StorageHook { return &StorageHook{m: m} }

func (h *StorageHook) ObserveWrite(elapsed time.Duration, bytes int) {
	h.m.storageWriteBytes.Observe(float64(bytes))
}

func (h *StorageHook) ObserveRead(elapsed time.Duration, bytes int) {
	h.m.storageReadBytes.Observe(float64(bytes))
}

func (h *StorageHook) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	h.m.storageCommitTime.Observe(elapsed.Seconds())
}
