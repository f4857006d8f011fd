package forecast

import (
	"math"

	"github.com/metrink/metrink-go/internal/errors"
)

// ErrEmptySeries is returned by the transforms for empty input.
var ErrEmptySeries = errors.New(errors.NewStd("empty series")).
	Component("forecast").
	Category(errors.CategoryValidation).
	Build()

// Forward computes the real part of the discrete Fourier transform by direct
// summation: X[k] = Σ x[n]·cos(-2πkn/N).
func Forward(series []float64) ([]float64, error) {
	return cosineSum(series, -1, false)
}

// Inverse computes the real part of the inverse transform:
// x[k] = Σ X[n]·cos(2πkn/N) / N.
//
// Only the cosine terms are kept, so Inverse(Forward(x)) reproduces x exactly
// for even-symmetric input (x[n] == x[N-n]); in general each point becomes
// (x[n] + x[N-n]) / 2.
func Inverse(spectrum []float64) ([]float64, error) {
	return cosineSum(spectrum, 1, true)
}

func cosineSum(in []float64, sign float64, normalize bool) ([]float64, error) {
	n := len(in)
	if n == 0 {
		return nil, ErrEmptySeries
	}

	out := make([]float64, n)
	for k := range n {
		x := sign * 2 * math.Pi * float64(k) / float64(n)
		sum := 0.0
		for i := range n {
			sum += in[i] * math.Cos(x*float64(i))
		}
		if normalize {
			sum /= float64(n)
		}
		out[k] = sum
	}
	return out, nil
}

// DominantPeriod returns the cycle length, in samples, of the strongest
// non-constant frequency bin of series. It returns 0 when the series is
// flat.
func DominantPeriod(series []float64) (int, error) {
	spectrum, err := Forward(series)
	if err != nil {
		return 0, err
	}

	n := len(series)
	best, bestMag := 0, 0.0
	for k := 1; k <= n/2; k++ {
		if mag := math.Abs(spectrum[k]); mag > bestMag+1e-9 {
			best, bestMag = k, mag
		}
	}
	if best == 0 {
		return 0, nil
	}
	return int(math.Round(float64(n) / float64(best))), nil
}
