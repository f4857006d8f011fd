package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/metric"
)

var webLoad = metric.Identity{Device: "web1", Group: "cpu", Name: "load"}

// stubCondition lets tests control evaluation results.
type stubCondition struct {
	pattern metric.Pattern
	eval    func(metric.Sample) (bool, error)
}

func (c *stubCondition) Pattern() metric.Pattern                { return c.pattern }
func (c *stubCondition) Evaluate(s metric.Sample) (bool, error) { return c.eval(s) }
func (c *stubCondition) Sustain() time.Duration                 { return 0 }
func (c *stubCondition) String() string                         { return "stub" }

func newTestEngine(t *testing.T, defs ...*Definition) (*Engine, *recordingQueue) {
	t.Helper()
	r := NewRegistry()
	r.Upsert(defs)
	q := &recordingQueue{}
	return NewEngine(r, q, testLogger(), nil), q
}

func TestEngine_SustainedAlertFiresOncePerEpisode(t *testing.T) {
	t.Parallel()

	def := mustCompile(t, 1, 1, `m("web1", "cpu", "load") > 4 for 5m do "ops"`)
	e, q := newTestEngine(t, def)

	values := []float64{5, 6, 7, 8, 9, 9, 9}
	var batch []metric.Sample
	for i, v := range values {
		batch = append(batch, sampleAt(webLoad, t0.Add(time.Duration(i)*time.Minute), v))
	}
	assert.Equal(t, 1, e.ProcessSamples(batch))

	jobs := q.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, t0.Add(5*time.Minute).UnixMilli(), jobs[0].Sample.Timestamp, "fires at armedSince + sustain")

	// clears, then a new episode fires again
	e.ProcessSamples([]metric.Sample{sampleAt(webLoad, t0.Add(10*time.Minute), 1)})
	e.ProcessSamples([]metric.Sample{
		sampleAt(webLoad, t0.Add(11*time.Minute), 5),
		sampleAt(webLoad, t0.Add(16*time.Minute), 5),
	})
	assert.Len(t, q.Jobs(), 2)
}

func TestEngine_ShortSpikeDoesNotFire(t *testing.T) {
	t.Parallel()

	def := mustCompile(t, 1, 1, `m("web1", "cpu", "load") > 4 for 5m do "ops"`)
	e, q := newTestEngine(t, def)

	e.ProcessSamples([]metric.Sample{
		sampleAt(webLoad, t0, 9),
		sampleAt(webLoad, t0.Add(4*time.Minute), 9),
		sampleAt(webLoad, t0.Add(5*time.Minute), 1),
		sampleAt(webLoad, t0.Add(6*time.Minute), 9),
	})
	assert.Empty(t, q.Jobs())
}

func TestEngine_ZeroSustainFiresImmediately(t *testing.T) {
	t.Parallel()

	def := mustCompile(t, 1, 1, `m("*", "cpu", "load") > 4 do "ops"`)
	e, q := newTestEngine(t, def)

	fired := e.ProcessSamples([]metric.Sample{
		sampleAt(webLoad, t0, 9),
		sampleAt(metric.Identity{Device: "web2", Group: "cpu", Name: "load"}, t0, 9),
	})
	assert.Equal(t, 1, fired, "a wildcard definition shares one episode")
	assert.Len(t, q.Jobs(), 1)
}

func TestEngine_FailingDefinitionDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	pattern := metric.PatternOf(webLoad)
	panics := &Definition{AlertID: 1, OwnerID: 1, ActionName: "ops", Condition: &stubCondition{
		pattern: pattern,
		eval:    func(metric.Sample) (bool, error) { panic("boom") },
	}}
	failing := &Definition{AlertID: 2, OwnerID: 1, ActionName: "ops", Condition: &stubCondition{
		pattern: pattern,
		eval:    func(metric.Sample) (bool, error) { return false, errors.NewStd("no data") },
	}}
	healthy := &Definition{AlertID: 3, OwnerID: 2, ActionName: "ops", Condition: &stubCondition{
		pattern: pattern,
		eval:    func(metric.Sample) (bool, error) { return true, nil },
	}}
	e, q := newTestEngine(t, panics, failing, healthy)

	assert.NotPanics(t, func() {
		assert.Equal(t, 1, e.ProcessSamples([]metric.Sample{sampleAt(webLoad, t0, 1)}))
	})
	jobs := q.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(3), jobs[0].Definition.AlertID)
}

func TestEngine_UnmatchedSamplesAreIgnored(t *testing.T) {
	t.Parallel()

	e, q := newTestEngine(t, mustCompile(t, 1, 1, `m("web1", "cpu", "load") > 4 do "ops"`))
	assert.Zero(t, e.ProcessSamples([]metric.Sample{
		sampleAt(metric.Identity{Device: "db1", Group: "cpu", Name: "load"}, t0, 100),
	}))
	assert.Empty(t, q.Jobs())
	assert.Zero(t, e.ProcessSamples(nil))
}

func TestEngine_ReplacedDefinitionCannotArmSuccessor(t *testing.T) {
	t.Parallel()

	old := mustCompile(t, 1, 1, `m("web1", "cpu", "load") > 4 for 5m do "ops"`)
	e, q := newTestEngine(t, old)

	matched := e.registry.Match(webLoad)
	require.Len(t, matched, 1)

	// replaced between Match and evaluation
	e.registry.Upsert([]*Definition{mustCompile(t, 1, 1, `m("web1", "cpu", "load") > 100 for 5m do "ops"`)})
	assert.False(t, e.evaluate(matched[0], sampleAt(webLoad, t0, 5)))

	armed, _ := e.registry.Episodes().Armed(1)
	assert.False(t, armed)

	e.ProcessSamples([]metric.Sample{sampleAt(webLoad, t0.Add(5*time.Minute), 5)})
	armed, _ = e.registry.Episodes().Armed(1)
	assert.False(t, armed, "live definition does not match 5")
	assert.Empty(t, q.Jobs())
}

func TestEngine_ForecastAlertFiresOnDeviation(t *testing.T) {
	t.Parallel()

	def := mustCompile(t, 1, 1, `m("web1", "cpu", "load") > forecast(2) * 2 do "ops"`)
	e, q := newTestEngine(t, def)

	var batch []metric.Sample
	for i, v := range []float64{10, 10, 10, 10, 11} {
		batch = append(batch, sampleAt(webLoad, t0.Add(time.Duration(i)*time.Minute), v))
	}
	assert.Zero(t, e.ProcessSamples(batch), "warm-up and in-band samples never fire")

	assert.Equal(t, 1, e.ProcessSamples([]metric.Sample{sampleAt(webLoad, t0.Add(5*time.Minute), 500)}))
	jobs := q.Jobs()
	require.Len(t, jobs, 1)
	assert.InDelta(t, 500.0, jobs[0].Sample.Value, 1e-9)
}
