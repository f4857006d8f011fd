// Package scheduler runs the periodic background tasks: compaction,
// definition sync, retention purge and self stats.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/observability"
)

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single cycle; zero means the interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler ticks each task on its own goroutine. A failing or panicking
// cycle is logged and the next tick runs as usual; cycles of the same task
// never overlap.
type Scheduler struct {
	tasks   []Task
	running map[string]*sync.Mutex
	log     logger.Logger
	metrics *observability.Metrics
	mu      sync.Mutex
}

// New creates an empty Scheduler.
func New(log logger.Logger, metrics *observability.Metrics) *Scheduler {
	if log == nil {
		log = logger.Global()
	}
	return &Scheduler{
		running: make(map[string]*sync.Mutex),
		log:     log.Module("scheduler"),
		metrics: metrics,
	}
}

// Add registers a task. Names must be unique and intervals positive.
func (s *Scheduler) Add(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.Name == "" || task.Run == nil || task.Interval <= 0 {
		return errors.Newf("invalid task %q: name, run function and positive interval are required", task.Name).
			Component("scheduler").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if _, exists := s.running[task.Name]; exists {
		return errors.Newf("task %q already registered", task.Name).
			Component("scheduler").
			Category(errors.CategoryConfiguration).
			Build()
	}
	s.tasks = append(s.tasks, task)
	s.running[task.Name] = &sync.Mutex{}
	return nil
}

// Tasks returns the registered task names in registration order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tasks))
	for i := range s.tasks {
		names[i] = s.tasks[i].Name
	}
	return names
}

// Run blocks until ctx is cancelled. Task errors never end Run.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	tasks := append([]Task(nil), s.tasks...)
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error {
			s.loop(gctx, task)
			return nil
		})
	}
	s.log.Info("scheduler started", logger.Int("tasks", len(tasks)))
	err := g.Wait()
	s.log.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// error already logged and counted
			_ = s.cycle(ctx, task)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce runs a single cycle of the named task, for CLI use and tests.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.Lock()
	var (
		task  Task
		found bool
	)
	for i := range s.tasks {
		if s.tasks[i].Name == name {
			task, found = s.tasks[i], true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return errors.Newf("unknown task %q", name).
			Component("scheduler").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return s.cycle(ctx, task)
}

// cycle runs one task iteration unless the previous one is still running.
func (s *Scheduler) cycle(ctx context.Context, task Task) (err error) {
	s.mu.Lock()
	lock := s.running[task.Name]
	s.mu.Unlock()
	if !lock.TryLock() {
		s.log.Debug("task still running, cycle skipped", logger.String("task", task.Name))
		return nil
	}
	defer lock.Unlock()

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = task.Interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("task %s panicked: %v", task.Name, r).
				Component("scheduler").
				Category(errors.CategorySystem).
				Context("task", task.Name).
				Build()
			s.log.Error("task panicked",
				logger.String("task", task.Name),
				logger.String("panic", fmt.Sprint(r)),
				logger.String("stack", string(debug.Stack())))
		} else if err != nil {
			s.log.Error("task failed",
				logger.String("task", task.Name),
				logger.Duration("elapsed", time.Since(start)),
				logger.Error(err))
		} else {
			s.log.Debug("task completed",
				logger.String("task", task.Name),
				logger.Duration("elapsed", time.Since(start)))
		}
		s.metrics.RecordTask(task.Name, time.Since(start), err)
	}()

	return task.Run(runCtx)
}
