package aggregation

import (
	"sync/atomic"

	"github.com/metrink/metrink-go/internal/metric"
)

// intakeNode holds one producer's batch.
type intakeNode struct {
	samples []metric.Sample
	next    *intakeNode
}

// intake is an unbounded multi-producer, single-consumer queue. Producers
// push with a CAS loop; the consumer detaches the whole chain with a single
// swap, so anything pushed after the swap belongs to the next drain.
type intake struct {
	head atomic.Pointer[intakeNode]
	size atomic.Int64
}

func (q *intake) push(samples []metric.Sample) {
	n := &intakeNode{samples: samples}
	for {
		old := q.head.Load()
		n.next = old
		if q.head.CompareAndSwap(old, n) {
			q.size.Add(int64(len(samples)))
			return
		}
	}
}

// drain detaches every pending batch and returns the samples in push order.
func (q *intake) drain() []metric.Sample {
	n := q.head.Swap(nil)
	if n == nil {
		return nil
	}

	var batches [][]metric.Sample
	total := 0
	for ; n != nil; n = n.next {
		batches = append(batches, n.samples)
		total += len(n.samples)
	}
	q.size.Add(-int64(total))

	out := make([]metric.Sample, 0, total)
	for i := len(batches) - 1; i >= 0; i-- {
		out = append(out, batches[i]...)
	}
	return out
}

// pending returns an approximate count of queued samples.
func (q *intake) pending() int64 {
	return q.size.Load()
}
