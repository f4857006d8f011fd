// Package observability holds the Prometheus collectors exported by metrink.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "metrink"

// Metrics groups every collector. All methods are safe on a nil receiver so
// components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	SamplesIngested     *prometheus.CounterVec
	SamplesRejected     *prometheus.CounterVec
	SamplesAggregated   prometheus.Counter
	CompactionFailures  prometheus.Counter
	CompactionBatchSize prometheus.Histogram
	ActiveDefinitions   prometheus.Gauge
	AlertsFired         *prometheus.CounterVec
	DeliveryFailures    *prometheus.CounterVec
	DispatchDropped     prometheus.Counter
	SyncWatermark       prometheus.Gauge
	TaskRuns            *prometheus.CounterVec
	TaskDuration        *prometheus.HistogramVec
	StreamClients       prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SamplesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_ingested_total",
			Help: "Samples accepted into the aggregation buffer.",
		}, []string{"source"}),
		SamplesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_rejected_total",
			Help: "Samples rejected during ingest parsing.",
		}, []string{"source"}),
		SamplesAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_aggregated_total",
			Help: "Aggregated samples written to the store.",
		}),
		CompactionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "compaction_failures_total",
			Help: "Compaction cycles whose sink write failed.",
		}),
		CompactionBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "compaction_batch_size",
			Help:    "Aggregated samples per compaction cycle.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		ActiveDefinitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "alert_definitions_active",
			Help: "Alert definitions currently held in the registry.",
		}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_fired_total",
			Help: "Alert episodes that triggered an action.",
		}, []string{"action_type"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alert_delivery_failures_total",
			Help: "Failed action deliveries.",
		}, []string{"action_type"}),
		DispatchDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "alert_dispatch_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full.",
		}),
		SyncWatermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "definition_sync_watermark_seconds",
			Help: "Modified time of the newest synchronized alert definition.",
		}),
		TaskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "scheduler_task_runs_total",
			Help: "Scheduled task cycles by outcome.",
		}, []string{"task", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "scheduler_task_duration_seconds",
			Help:    "Duration of scheduled task cycles.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "alert_stream_clients",
			Help: "Connected live alert stream clients.",
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SamplesIngested, m.SamplesRejected, m.SamplesAggregated,
		m.CompactionFailures, m.CompactionBatchSize, m.ActiveDefinitions,
		m.AlertsFired, m.DeliveryFailures, m.DispatchDropped, m.SyncWatermark,
		m.TaskRuns, m.TaskDuration, m.StreamClients,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordIngested(source string, accepted, rejected int) {
	if m == nil {
		return
	}
	m.SamplesIngested.WithLabelValues(source).Add(float64(accepted))
	if rejected > 0 {
		m.SamplesRejected.WithLabelValues(source).Add(float64(rejected))
	}
}

func (m *Metrics) RecordCompaction(written int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.CompactionFailures.Inc()
		return
	}
	m.SamplesAggregated.Add(float64(written))
	m.CompactionBatchSize.Observe(float64(written))
}

func (m *Metrics) SetActiveDefinitions(n int) {
	if m == nil {
		return
	}
	m.ActiveDefinitions.Set(float64(n))
}

func (m *Metrics) RecordFired(actionType string) {
	if m == nil {
		return
	}
	m.AlertsFired.WithLabelValues(actionType).Inc()
}

func (m *Metrics) RecordDeliveryFailure(actionType string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(actionType).Inc()
}

func (m *Metrics) RecordDispatchDropped() {
	if m == nil {
		return
	}
	m.DispatchDropped.Inc()
}

func (m *Metrics) SetWatermark(t time.Time) {
	if m == nil {
		return
	}
	m.SyncWatermark.Set(float64(t.Unix()))
}

func (m *Metrics) RecordTask(task string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.TaskRuns.WithLabelValues(task, status).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (m *Metrics) SetStreamClients(n int) {
	if m == nil {
		return
	}
	m.StreamClients.Set(float64(n))
}
