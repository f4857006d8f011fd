package metric

import (
	"fmt"
	"time"
)

// BucketWidthMs is the aggregation bucket width in milliseconds.
const BucketWidthMs int64 = 60_000

// Sample is a single observation of a metric series.
type Sample struct {
	Identity  Identity `json:"identity"`
	Timestamp int64    `json:"timestamp"` // ms since epoch, UTC
	Value     float64  `json:"value"`
	Unit      string   `json:"unit,omitempty"`
}

// AggregatedSample is a Sample floored to its minute bucket holding the mean
// of all samples compacted into it.
type AggregatedSample struct {
	Sample
	Count int `json:"count"`
}

// Time returns the sample timestamp as a time.Time in UTC.
func (s Sample) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

func (s Sample) String() string {
	return fmt.Sprintf("%s = %g @ %d", s.Identity, s.Value, s.Timestamp)
}

// FloorToBucket returns ts floored to the start of its minute. Pre-epoch
// timestamps floor toward negative infinity.
func FloorToBucket(ts int64) int64 {
	return ts - ((ts%BucketWidthMs)+BucketWidthMs)%BucketWidthMs
}

// ToMillis converts t to epoch milliseconds.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}
