package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testScheduler(t *testing.T) *Scheduler {
	t.Helper()
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)
	return New(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC), metrics)
}

func TestScheduler_AddValidates(t *testing.T) {
	t.Parallel()

	s := testScheduler(t)
	run := func(context.Context) error { return nil }

	require.NoError(t, s.Add(Task{Name: "compaction", Interval: time.Minute, Run: run}))
	err := s.Add(Task{Name: "compaction", Interval: time.Minute, Run: run})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	assert.Error(t, s.Add(Task{Name: "zero", Run: run}))
	assert.Error(t, s.Add(Task{Name: "nil", Interval: time.Second}))
	assert.Equal(t, []string{"compaction"}, s.Tasks())
}

func TestScheduler_FailuresDoNotStopTicking(t *testing.T) {
	t.Parallel()

	s := testScheduler(t)
	var failing, panicking, healthy atomic.Int32
	require.NoError(t, s.Add(Task{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		failing.Add(1)
		return errors.NewStd("storage unavailable")
	}}))
	require.NoError(t, s.Add(Task{Name: "panicking", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		panicking.Add(1)
		panic("boom")
	}}))
	require.NoError(t, s.Add(Task{Name: "healthy", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		healthy.Add(1)
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return failing.Load() >= 3 && panicking.Load() >= 3 && healthy.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Parallel()

	s := testScheduler(t)
	require.NoError(t, s.Add(Task{Name: "purge", Interval: time.Hour, Run: func(context.Context) error {
		return errors.NewStd("disk full")
	}}))
	require.NoError(t, s.Add(Task{Name: "explode", Interval: time.Hour, Run: func(context.Context) error {
		panic("boom")
	}}))

	assert.EqualError(t, s.RunOnce(context.Background(), "purge"), "disk full")

	err := s.RunOnce(context.Background(), "explode")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySystem))

	err = s.RunOnce(context.Background(), "missing")
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestScheduler_CyclesNeverOverlap(t *testing.T) {
	t.Parallel()

	s := testScheduler(t)
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Add(Task{Name: "slow", Interval: time.Hour, Run: func(context.Context) error {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	}}))

	done := make(chan error, 1)
	go func() { done <- s.RunOnce(context.Background(), "slow") }()
	<-started

	require.NoError(t, s.RunOnce(context.Background(), "slow"), "overlapping cycle is skipped")
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.NoError(t, <-done)
}

func TestScheduler_CycleTimeout(t *testing.T) {
	t.Parallel()

	s := testScheduler(t)
	require.NoError(t, s.Add(Task{Name: "stuck", Interval: time.Hour, Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))
	assert.ErrorIs(t, s.RunOnce(context.Background(), "stuck"), context.DeadlineExceeded)
}
