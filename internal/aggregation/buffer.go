// Package aggregation absorbs bursty metric writes and compacts them into
// one-minute mean samples.
package aggregation

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/observability"
)

// DefaultInterval is how often the scheduler should call Compact.
const DefaultInterval = time.Minute

// writeTimeout bounds a single sink write.
const writeTimeout = 30 * time.Second

// ErrCompactionInProgress is returned when Compact is called while another
// cycle is still running.
var ErrCompactionInProgress = errors.NewStd("compaction already in progress")

// Sink receives aggregated batches.
type Sink interface {
	Write(ctx context.Context, batch []metric.AggregatedSample) error
}

// Buffer is the aggregation intake plus its compaction step.
type Buffer struct {
	queue   intake
	sink    Sink
	log     logger.Logger
	metrics *observability.Metrics

	compactMu sync.Mutex
}

// NewBuffer creates a Buffer that writes to sink.
func NewBuffer(sink Sink, log logger.Logger, metrics *observability.Metrics) *Buffer {
	return &Buffer{
		sink:    sink,
		log:     log.Module("aggregation"),
		metrics: metrics,
	}
}

// Enqueue appends samples to the intake. It never blocks and never drops.
func (b *Buffer) Enqueue(samples []metric.Sample) {
	if len(samples) == 0 {
		return
	}
	b.queue.push(slices.Clone(samples))
}

// Pending returns the approximate number of samples awaiting compaction.
func (b *Buffer) Pending() int64 {
	return b.queue.pending()
}

// Compact drains the intake, averages samples per identity into their minute
// bucket and writes the result as one batch. Sink failures are logged and the
// drained data is discarded.
func (b *Buffer) Compact(ctx context.Context) error {
	if !b.compactMu.TryLock() {
		b.log.Debug("skipping overlapping compaction cycle")
		return ErrCompactionInProgress
	}
	defer b.compactMu.Unlock()

	batch := Aggregate(b.queue.drain())
	if len(batch) == 0 {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	start := time.Now()
	if err := b.sink.Write(writeCtx, batch); err != nil {
		b.metrics.RecordCompaction(0, true)
		b.log.Error("failed to write aggregated batch",
			logger.Int("samples", len(batch)),
			logger.Error(err))
		return nil
	}

	b.metrics.RecordCompaction(len(batch), false)
	b.log.Debug("compaction completed",
		logger.Int("samples", len(batch)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

type group struct {
	first metric.Sample
	sum   float64
	count int
}

// Aggregate groups samples by identity. A single-sample group keeps its value;
// larger groups use the arithmetic mean. Timestamps are floored to the minute
// of the group's first sample. The result is ordered by identity.
func Aggregate(samples []metric.Sample) []metric.AggregatedSample {
	if len(samples) == 0 {
		return nil
	}

	groups := make(map[metric.Identity]*group)
	for _, s := range samples {
		g, ok := groups[s.Identity]
		if !ok {
			groups[s.Identity] = &group{first: s, sum: s.Value, count: 1}
			continue
		}
		g.sum += s.Value
		g.count++
	}

	out := make([]metric.AggregatedSample, 0, len(groups))
	for _, g := range groups {
		s := g.first
		if g.count > 1 {
			s.Value = g.sum / float64(g.count)
		}
		s.Timestamp = metric.FloorToBucket(s.Timestamp)
		out = append(out, metric.AggregatedSample{Sample: s, Count: g.count})
	}
	slices.SortFunc(out, func(a, b metric.AggregatedSample) int {
		return a.Identity.Compare(b.Identity)
	})
	return out
}
