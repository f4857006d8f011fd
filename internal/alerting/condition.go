package alerting

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/metrink/metrink-go/internal/metric"
)

// Condition is a compiled alert condition. Implementations must be safe for
// concurrent use.
type Condition interface {
	// Pattern selects the series the condition applies to.
	Pattern() metric.Pattern
	// Evaluate reports whether the sample satisfies the condition.
	Evaluate(s metric.Sample) (bool, error)
	// Sustain is how long the condition must hold before the action fires.
	Sustain() time.Duration
	String() string
}

// Comparator is one of the comparison operators of the alert grammar.
type Comparator string

// Valid reports whether c is a supported comparator.
func (c Comparator) Valid() bool {
	switch c {
	case ComparatorGreater, ComparatorGreaterOrEqual, ComparatorLess, ComparatorLessOrEqual, ComparatorEqual:
		return true
	}
	return false
}

// Compare evaluates "value c threshold".
func (c Comparator) Compare(value, threshold float64) bool {
	switch c {
	case ComparatorGreater:
		return value > threshold
	case ComparatorGreaterOrEqual:
		return value >= threshold
	case ComparatorLess:
		return value < threshold
	case ComparatorLessOrEqual:
		return value <= threshold
	case ComparatorEqual:
		return value == threshold
	default:
		return false
	}
}

// ThresholdCondition compares each sample of a series against a constant.
type ThresholdCondition struct {
	Series     metric.Pattern
	Comparator Comparator
	Threshold  float64
	Duration   time.Duration
}

// Pattern implements Condition.
func (c *ThresholdCondition) Pattern() metric.Pattern { return c.Series }

// Sustain implements Condition.
func (c *ThresholdCondition) Sustain() time.Duration { return c.Duration }

// Evaluate implements Condition. NaN values never satisfy a condition.
func (c *ThresholdCondition) Evaluate(s metric.Sample) (bool, error) {
	if !c.Comparator.Valid() {
		return false, fmt.Errorf("unknown comparator %q", c.Comparator)
	}
	if math.IsNaN(s.Value) {
		return false, nil
	}
	return c.Comparator.Compare(s.Value, c.Threshold), nil
}

func (c *ThresholdCondition) String() string {
	s := fmt.Sprintf("m(%q, %q, %q) %s %s",
		c.Series.Device, c.Series.Group, c.Series.Name,
		c.Comparator, strconv.FormatFloat(c.Threshold, 'g', -1, 64))
	if c.Duration > 0 {
		s += " for " + formatSustain(c.Duration)
	}
	return s
}

// formatSustain renders d in the largest grammar unit that divides it.
func formatSustain(d time.Duration) string {
	for _, u := range durationUnits {
		if d%u.size == 0 {
			return strconv.FormatInt(int64(d/u.size), 10) + u.suffix
		}
	}
	return d.String()
}
