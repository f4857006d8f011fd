package alerting

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/notification"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func sampleAt(id metric.Identity, at time.Time, value float64) metric.Sample {
	return metric.Sample{Identity: id, Timestamp: at.UnixMilli(), Value: value}
}

func mustCompile(t *testing.T, alertID, ownerID int64, text string) *Definition {
	t.Helper()
	def, err := NewQueryCompiler().Compile(alertID, ownerID, text)
	require.NoError(t, err)
	return def
}

// observeCurrent feeds a true result for the live definition of alertID.
func observeCurrent(t *testing.T, r *Registry, alertID int64, sustain time.Duration) {
	t.Helper()
	def, ok := r.Get(alertID)
	require.True(t, ok)
	r.Episodes().Observe(alertID, def.Generation, true, t0, sustain)
}

// recordingMailer captures every mail and optionally fails.
type recordingMailer struct {
	mu   sync.Mutex
	err  error
	sent []notification.Mail
}

func (m *recordingMailer) Send(_ context.Context, mail notification.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return m.err
}

func (m *recordingMailer) Mails() []notification.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Mail(nil), m.sent...)
}

// recordingQueue captures enqueued alerts.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []DispatchJob
}

func (q *recordingQueue) Enqueue(def *Definition, s metric.Sample) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, DispatchJob{Definition: def, Sample: s})
	return "job", true
}

func (q *recordingQueue) Jobs() []DispatchJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DispatchJob(nil), q.jobs...)
}

// mockActionRepo is a minimal in-memory ActionRepository.
type mockActionRepo struct {
	mu      sync.Mutex
	actions map[string]entities.AlertAction
	lookups int
}

func newMockActionRepo(actions ...entities.AlertAction) *mockActionRepo {
	m := &mockActionRepo{actions: make(map[string]entities.AlertAction)}
	for _, a := range actions {
		m.actions[a.Name] = a
	}
	return m
}

func (m *mockActionRepo) GetByName(_ context.Context, name string) (*entities.AlertAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	a, ok := m.actions[name]
	if !ok {
		return nil, repository.ErrActionNotFound
	}
	return &a, nil
}

// Unused methods satisfy the interface.
func (m *mockActionRepo) List(_ context.Context, _ uint) ([]entities.AlertAction, error) {
	return nil, nil
}
func (m *mockActionRepo) Create(_ context.Context, _ *entities.AlertAction) error { return nil }
func (m *mockActionRepo) Update(_ context.Context, _ *entities.AlertAction) error { return nil }
func (m *mockActionRepo) Delete(_ context.Context, _ uint) error                  { return nil }

// mockHistoryRepo records saved history.
type mockHistoryRepo struct {
	mu      sync.Mutex
	records []*entities.AlertHistory
}

func (m *mockHistoryRepo) Save(_ context.Context, h *entities.AlertHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, h)
	return nil
}

func (m *mockHistoryRepo) List(_ context.Context, _ repository.AlertHistoryFilter) ([]entities.AlertHistory, int64, error) {
	return nil, 0, nil
}

func (m *mockHistoryRepo) DeleteBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *mockHistoryRepo) Records() []*entities.AlertHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entities.AlertHistory(nil), m.records...)
}

// mockSource serves definition rows modified after the watermark.
type mockSource struct {
	mu    sync.Mutex
	rows  []entities.AlertDefinition
	err   error
	calls []int64
}

func (m *mockSource) ModifiedSince(_ context.Context, watermark int64) ([]entities.AlertDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, watermark)
	if m.err != nil {
		return nil, m.err
	}
	var out []entities.AlertDefinition
	for _, r := range m.rows {
		if r.ModifiedAt > watermark {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockSource) set(rows ...entities.AlertDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
}
