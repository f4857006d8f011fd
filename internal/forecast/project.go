package forecast

import "github.com/metrink/metrink-go/internal/errors"

// Projection is a fitted model's forecast over a horizon.
type Projection struct {
	Period      int       `json:"period"`
	Detected    bool      `json:"detected"`
	Observed    int       `json:"observed"`
	Predictions []float64 `json:"predictions"`
}

// Project fits a triple exponential model over series and returns horizon
// predictions, each fed back as the next observation. A zero period is
// taken from the series' dominant frequency.
func Project(series []float64, period, horizon int) (*Projection, error) {
	p := &Projection{Period: period, Observed: len(series)}
	if period == 0 {
		detected, err := DominantPeriod(series)
		if err != nil {
			return nil, err
		}
		if detected == 0 {
			return nil, errors.Newf("no seasonal period found in %d values", len(series)).
				Component("forecast").
				Category(errors.CategoryValidation).
				Build()
		}
		p.Period = detected
		p.Detected = true
	}

	model, err := NewTripleExponential(series, p.Period)
	if err != nil {
		return nil, err
	}
	p.Predictions = make([]float64, 0, horizon)
	for range horizon {
		next := model.Next()
		p.Predictions = append(p.Predictions, next)
		model.Observe(next)
	}
	return p, nil
}
