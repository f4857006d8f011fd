package alerting

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/observability"
)

const (
	// defaultDispatchBuffer is the capacity of the job channel.
	defaultDispatchBuffer = 1000
	// deliveryTimeout bounds a single dispatch call.
	deliveryTimeout = 30 * time.Second
)

// DispatchJob is one fired alert waiting for delivery.
type DispatchJob struct {
	ID         string
	Definition *Definition
	Sample     metric.Sample
	FiredAt    time.Time
}

// DispatchFunc delivers one job.
type DispatchFunc func(ctx context.Context, job DispatchJob) error

// Enqueuer accepts fired alerts without blocking.
type Enqueuer interface {
	Enqueue(def *Definition, sample metric.Sample) (string, bool)
}

// DispatchQueue runs deliveries on a single worker so the evaluation path
// never waits on a transport. Enqueue is non-blocking: when the buffer is
// full the job is dropped and counted.
type DispatchQueue struct {
	handler DispatchFunc
	limiter *rate.Limiter
	log     logger.Logger
	metrics *observability.Metrics

	jobs     chan DispatchJob
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewDispatchQueue creates a queue and starts its worker. perSecond <= 0
// disables rate limiting.
func NewDispatchQueue(handler DispatchFunc, buffer int, perSecond float64, log logger.Logger, metrics *observability.Metrics) *DispatchQueue {
	if buffer <= 0 {
		buffer = defaultDispatchBuffer
	}
	if log == nil {
		log = logger.Global()
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &DispatchQueue{
		handler: handler,
		limiter: rate.NewLimiter(limit, 1),
		log:     log.Module("dispatch"),
		metrics: metrics,
		jobs:    make(chan DispatchJob, buffer),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	go q.processLoop()
	return q
}

// Enqueue implements Enqueuer. It returns the job id and whether the job was
// accepted.
func (q *DispatchQueue) Enqueue(def *Definition, sample metric.Sample) (string, bool) {
	select {
	case <-q.stopCh:
		return "", false
	default:
	}

	job := DispatchJob{
		ID:         uuid.NewString(),
		Definition: def,
		Sample:     sample,
		FiredAt:    time.Now(),
	}
	select {
	case q.jobs <- job:
		return job.ID, true
	default:
		q.metrics.RecordDispatchDropped()
		q.log.Warn("dispatch queue full, alert dropped",
			logger.Int64("alert_id", def.AlertID),
			logger.String("identity", sample.Identity.String()))
		return "", false
	}
}

// Pending returns the number of queued jobs.
func (q *DispatchQueue) Pending() int {
	return len(q.jobs)
}

// Stop stops accepting jobs and delivers those already queued. When ctx
// expires first the remaining jobs are abandoned.
func (q *DispatchQueue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})
	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}

func (q *DispatchQueue) processLoop() {
	defer close(q.done)
	for {
		select {
		case job := <-q.jobs:
			q.deliver(job)
		case <-q.stopCh:
			for {
				select {
				case job := <-q.jobs:
					if q.ctx.Err() != nil {
						q.log.Warn("dispatch abandoned on shutdown", logger.String("job_id", job.ID))
						continue
					}
					q.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (q *DispatchQueue) deliver(job DispatchJob) {
	if err := q.limiter.Wait(q.ctx); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(q.ctx, deliveryTimeout)
	defer cancel()
	q.safeCall(ctx, job)
}

// safeCall invokes the handler with panic recovery so one bad delivery
// cannot kill the worker.
func (q *DispatchQueue) safeCall(ctx context.Context, job DispatchJob) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("dispatch handler panicked",
				logger.String("job_id", job.ID),
				logger.String("panic", fmt.Sprint(r)),
				logger.String("stack", string(debug.Stack())))
		}
	}()
	// errors are logged by the handler
	_ = q.handler(ctx, job)
}
