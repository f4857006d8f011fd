// Package forecast implements multiplicative triple exponential smoothing and
// a real-valued discrete Fourier transform for period estimation.
package forecast

import (
	"time"

	"github.com/metrink/metrink-go/internal/errors"
)

// DefaultPeriod is one week of one-minute samples.
var DefaultPeriod = int((7 * 24 * time.Hour) / time.Minute)

// Default smoothing constants.
const (
	DefaultAlpha = 0.5
	DefaultBeta  = 0.6
	DefaultGamma = 0.4
)

// TripleExponential is a Holt-Winters forecaster for one series. It is not
// safe for concurrent use.
type TripleExponential struct {
	alpha, beta, gamma float64
	period             int

	level    float64
	trend    float64
	seasonal *RingBuffer

	// next is the forecast for the observation after the last one seen.
	next float64
}

// NewTripleExponential builds a forecaster with the default constants.
func NewTripleExponential(history []float64, period int) (*TripleExponential, error) {
	return NewTripleExponentialWithParams(history, period, DefaultAlpha, DefaultBeta, DefaultGamma)
}

// NewTripleExponentialWithParams builds a forecaster from history, which must
// hold at least two full periods. The history is replayed through the
// update equations to warm the model.
func NewTripleExponentialWithParams(history []float64, period int, alpha, beta, gamma float64) (*TripleExponential, error) {
	if period < 1 {
		return nil, validationError("period must be positive", period, len(history))
	}
	if len(history) < 2*period {
		return nil, validationError("history must hold at least two seasonal periods", period, len(history))
	}

	f := &TripleExponential{
		alpha:    alpha,
		beta:     beta,
		gamma:    gamma,
		period:   period,
		level:    history[0],
		seasonal: NewRingBuffer(history[:period]),
	}
	f.trend = initialTrend(history, period)
	for _, idx := range initialSeasonal(history, period) {
		f.seasonal.Add(idx)
	}

	for i := 2; i < len(history); i++ {
		f.next = f.update(history[i], i-period < 0)
	}
	return f, nil
}

// Observe feeds value into the model. It returns the forecast that was
// computed from the previous observation, then stores the forecast for the
// next one.
func (f *TripleExponential) Observe(value float64) float64 {
	prev := f.next
	f.next = f.update(value, false)
	return prev
}

// Next returns the stored forecast for the upcoming observation.
func (f *TripleExponential) Next() float64 { return f.next }

// Period returns the seasonal period length.
func (f *TripleExponential) Period() int { return f.period }

// Seasonal returns the seasonal indices from head to tail.
func (f *TripleExponential) Seasonal() []float64 { return f.seasonal.Values() }

// update applies one smoothing step. During warm-up the seasonal component is
// neither applied nor updated and the forecast is zero.
func (f *TripleExponential) update(value float64, warmup bool) float64 {
	oldLevel := f.level
	oldTrend := f.trend

	var oldSeasonal float64
	if warmup {
		oldSeasonal = f.seasonal.GetAt(f.period - 1)
		f.level = f.alpha*value + (1-f.alpha)*(oldLevel+oldTrend)
	} else {
		oldSeasonal = f.seasonal.Get()
		f.level = f.alpha*(value/oldSeasonal) + (1-f.alpha)*(oldLevel+oldTrend)
	}

	f.trend = f.beta*(f.level-oldLevel) + (1-f.beta)*oldTrend

	if warmup {
		return 0
	}
	f.seasonal.Add(f.gamma*(value/f.level) + (1-f.gamma)*oldSeasonal)
	return (f.level + f.trend) * f.seasonal.Get()
}

func initialTrend(history []float64, period int) float64 {
	sum := 0.0
	for i := range period {
		sum += history[period+i] - history[i]
	}
	return sum / float64(period*period)
}

func initialSeasonal(history []float64, period int) []float64 {
	seasons := len(history) / period

	averages := make([]float64, seasons)
	for s := range seasons {
		for i := range period {
			averages[s] += history[s*period+i]
		}
		averages[s] /= float64(period)
	}

	indices := make([]float64, period)
	for p := range period {
		for s := range seasons {
			indices[p] += history[s*period+p] / averages[s]
		}
		indices[p] /= float64(seasons)
	}
	return indices
}

func validationError(msg string, period, length int) error {
	return errors.Newf("%s (period %d, history length %d)", msg, period, length).
		Component("forecast").
		Category(errors.CategoryValidation).
		Context("period", period).
		Context("history_length", length).
		Build()
}
