package alerting

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/metrink/metrink-go/internal/forecast"
	"github.com/metrink/metrink-go/internal/metric"
)

// maxForecastPeriod caps the per-series warm-up history at one week of
// one-minute samples.
var maxForecastPeriod = forecast.DefaultPeriod

// ForecastCondition compares each sample with the Holt-Winters prediction for
// its series, scaled by Factor. Every matching series keeps its own model,
// which is built after two full periods of samples; until then the series
// never satisfies the condition.
type ForecastCondition struct {
	Series     metric.Pattern
	Comparator Comparator
	Period     int
	Factor     float64
	Duration   time.Duration

	mu     sync.Mutex
	models map[metric.Identity]*seriesModel
}

type seriesModel struct {
	history []float64
	model   *forecast.TripleExponential
}

// NewForecastCondition returns a condition with empty per-series state.
func NewForecastCondition(pattern metric.Pattern, cmp Comparator, period int, factor float64, sustain time.Duration) *ForecastCondition {
	return &ForecastCondition{
		Series:     pattern,
		Comparator: cmp,
		Period:     period,
		Factor:     factor,
		Duration:   sustain,
		models:     make(map[metric.Identity]*seriesModel),
	}
}

// Pattern implements Condition.
func (c *ForecastCondition) Pattern() metric.Pattern { return c.Series }

// Sustain implements Condition.
func (c *ForecastCondition) Sustain() time.Duration { return c.Duration }

// Evaluate implements Condition. NaN values are neither matched nor fed to
// the model.
func (c *ForecastCondition) Evaluate(s metric.Sample) (bool, error) {
	if !c.Comparator.Valid() {
		return false, fmt.Errorf("unknown comparator %q", c.Comparator)
	}
	if math.IsNaN(s.Value) {
		return false, nil
	}
	predicted, ready, err := c.predict(s)
	if err != nil || !ready {
		return false, err
	}
	if math.IsNaN(predicted) || math.IsInf(predicted, 0) {
		return false, nil
	}
	return c.Comparator.Compare(s.Value, c.Factor*predicted), nil
}

// predict feeds s into the model of its series and returns the forecast that
// was made for it.
func (c *ForecastCondition) predict(s metric.Sample) (float64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.models == nil {
		c.models = make(map[metric.Identity]*seriesModel)
	}
	m, ok := c.models[s.Identity]
	if !ok {
		m = &seriesModel{history: make([]float64, 0, 2*c.Period)}
		c.models[s.Identity] = m
	}
	if m.model != nil {
		return m.model.Observe(s.Value), true, nil
	}

	m.history = append(m.history, s.Value)
	if len(m.history) < 2*c.Period {
		return 0, false, nil
	}
	model, err := forecast.NewTripleExponential(m.history, c.Period)
	if err != nil {
		delete(c.models, s.Identity)
		return 0, false, err
	}
	m.model = model
	m.history = nil
	return 0, false, nil
}

// Tracked returns the number of series with forecast state.
func (c *ForecastCondition) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}

func (c *ForecastCondition) String() string {
	s := fmt.Sprintf("m(%q, %q, %q) %s forecast(%d)",
		c.Series.Device, c.Series.Group, c.Series.Name,
		c.Comparator, c.Period)
	if c.Factor != 1 {
		s += " * " + strconv.FormatFloat(c.Factor, 'g', -1, 64)
	}
	if c.Duration > 0 {
		s += " for " + formatSustain(c.Duration)
	}
	return s
}
