package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/metrink/metrink-go/internal/alerting"
	"github.com/metrink/metrink-go/internal/datastore/entities"
	"github.com/metrink/metrink-go/internal/datastore/repository"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeBuffer struct {
	mu      sync.Mutex
	samples []metric.Sample
}

func (b *fakeBuffer) Enqueue(samples []metric.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, samples...)
}

func (b *fakeBuffer) Pending() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.samples))
}

type fakeEngine struct {
	seen  int
	fired int
}

func (e *fakeEngine) ProcessSamples(samples []metric.Sample) int {
	e.seen += len(samples)
	return e.fired
}

type fakeCache struct{ invalidated []string }

func (c *fakeCache) Invalidate(name string) { c.invalidated = append(c.invalidated, name) }

type fakeDefinitions struct {
	mu     sync.Mutex
	rows   map[uint]*entities.AlertDefinition
	nextID uint
}

func newFakeDefinitions() *fakeDefinitions {
	return &fakeDefinitions{rows: make(map[uint]*entities.AlertDefinition)}
}

func (f *fakeDefinitions) ModifiedSince(_ context.Context, watermark int64) ([]entities.AlertDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.AlertDefinition
	for _, row := range f.rows {
		if row.ModifiedAt > watermark {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeDefinitions) Get(_ context.Context, id uint) (*entities.AlertDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrAlertDefinitionNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeDefinitions) Create(_ context.Context, def *entities.AlertDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	def.ID = f.nextID
	def.ModifiedAt = testNow.UnixMilli()
	cp := *def
	f.rows[def.ID] = &cp
	return nil
}

func (f *fakeDefinitions) Update(_ context.Context, def *entities.AlertDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[def.ID]; !ok {
		return repository.ErrAlertDefinitionNotFound
	}
	cp := *def
	f.rows[def.ID] = &cp
	return nil
}

func (f *fakeDefinitions) SetEnabled(_ context.Context, id uint, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repository.ErrAlertDefinitionNotFound
	}
	row.Enabled = enabled
	return nil
}

func (f *fakeDefinitions) Delete(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repository.ErrAlertDefinitionNotFound
	}
	delete(f.rows, id)
	return nil
}

type fakeActions struct {
	rows   []entities.AlertAction
	nextID uint
}

func (f *fakeActions) GetByName(_ context.Context, name string) (*entities.AlertAction, error) {
	for i := range f.rows {
		if f.rows[i].Name == name {
			return &f.rows[i], nil
		}
	}
	return nil, repository.ErrActionNotFound
}

func (f *fakeActions) List(_ context.Context, ownerID uint) ([]entities.AlertAction, error) {
	var out []entities.AlertAction
	for _, row := range f.rows {
		if ownerID == 0 || row.OwnerID == ownerID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeActions) Create(_ context.Context, action *entities.AlertAction) error {
	if slices.ContainsFunc(f.rows, func(a entities.AlertAction) bool { return a.Name == action.Name }) {
		return repository.ErrActionNameTaken
	}
	f.nextID++
	action.ID = f.nextID
	f.rows = append(f.rows, *action)
	return nil
}

func (f *fakeActions) Update(_ context.Context, action *entities.AlertAction) error {
	for i := range f.rows {
		if f.rows[i].ID == action.ID {
			f.rows[i] = *action
			return nil
		}
	}
	return repository.ErrActionNotFound
}

func (f *fakeActions) Delete(_ context.Context, id uint) error {
	idx := slices.IndexFunc(f.rows, func(a entities.AlertAction) bool { return a.ID == id })
	if idx < 0 {
		return repository.ErrActionNotFound
	}
	f.rows = slices.Delete(f.rows, idx, idx+1)
	return nil
}

type fakeHistory struct {
	rows       []entities.AlertHistory
	lastFilter repository.AlertHistoryFilter
}

func (f *fakeHistory) Save(_ context.Context, h *entities.AlertHistory) error {
	f.rows = append(f.rows, *h)
	return nil
}

func (f *fakeHistory) List(_ context.Context, filter repository.AlertHistoryFilter) ([]entities.AlertHistory, int64, error) {
	f.lastFilter = filter
	return f.rows, int64(len(f.rows)), nil
}

func (f *fakeHistory) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeSamples struct {
	series  []metric.Sample
	lastID  metric.Identity
	lastEnd int64
	err     error
}

func (f *fakeSamples) Init(context.Context) error                             { return nil }
func (f *fakeSamples) Shutdown() error                                        { return nil }
func (f *fakeSamples) Write(context.Context, []metric.AggregatedSample) error { return nil }
func (f *fakeSamples) DeleteBefore(context.Context, int64) (int64, error)     { return 0, nil }

func (f *fakeSamples) ReadRange(_ context.Context, id metric.Identity, _, end int64) ([]metric.Sample, error) {
	f.lastID, f.lastEnd = id, end
	return f.series, f.err
}

type fakeCatalog struct {
	items      []entities.MetricIdentity
	lastFilter repository.CatalogFilter
}

func (f *fakeCatalog) ListIdentities(_ context.Context, filter repository.CatalogFilter) ([]entities.MetricIdentity, error) {
	f.lastFilter = filter
	return f.items, nil
}

func (f *fakeCatalog) Upsert(context.Context, []entities.MetricIdentity) error { return nil }

// newTestController builds a controller over deps with a fixed clock.
func newTestController(t *testing.T, deps Dependencies) (*echo.Echo, *Controller) {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
	}
	e := echo.New()
	c := New(e, deps)
	c.now = func() time.Time { return testNow }
	return e, c
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func compileDefinition(t *testing.T, alertID, ownerID int64, text string) *alerting.Definition {
	t.Helper()
	def, err := alerting.NewQueryCompiler().Compile(alertID, ownerID, text)
	require.NoError(t, err)
	return def
}
