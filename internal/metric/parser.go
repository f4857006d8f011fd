package metric

import (
	"time"

	"github.com/antonholmquist/jason"

	"github.com/metrink/metrink-go/internal/errors"
)

// Batch is the result of parsing one ingest payload.
type Batch struct {
	Samples  []Sample
	Rejected []error
}

// ParsePayload decodes an ingest payload of the form
//
//	{"d": "device", "g": "group", "m": [{"n": "name", "t": 1700000000000, "v": 1.5, "u": "ms"}]}
//
// "g" may be given per metric instead of at the top level, and "t" defaults
// to now when absent. A malformed item is rejected on its own; a malformed envelope fails
// the whole payload.
func ParsePayload(data []byte, now time.Time) (*Batch, error) {
	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return nil, parseError("invalid JSON payload", err)
	}

	device, err := obj.GetString("d")
	if err != nil {
		return nil, parseError("missing device field \"d\"", err)
	}
	if err := ValidateComponent("device", device); err != nil {
		return nil, err
	}

	items, err := obj.GetObjectArray("m")
	if err != nil {
		return nil, parseError("missing metrics array \"m\"", err)
	}

	topGroup, _ := obj.GetString("g")
	batch := &Batch{Samples: make([]Sample, 0, len(items))}
	for _, item := range items {
		s, err := parseItem(item, device, topGroup, now)
		if err != nil {
			batch.Rejected = append(batch.Rejected, err)
			continue
		}
		batch.Samples = append(batch.Samples, s)
	}
	return batch, nil
}

func parseItem(item *jason.Object, device, topGroup string, now time.Time) (Sample, error) {
	group := topGroup
	if group == "" {
		g, err := item.GetString("g")
		if err != nil {
			return Sample{}, parseError("missing group field \"g\"", err)
		}
		group = g
	}
	name, err := item.GetString("n")
	if err != nil {
		return Sample{}, parseError("missing name field \"n\"", err)
	}
	value, err := item.GetFloat64("v")
	if err != nil {
		return Sample{}, parseError("missing value field \"v\"", err)
	}

	ts := now.UnixMilli()
	if _, present := item.Map()["t"]; present {
		t, err := item.GetInt64("t")
		if err != nil {
			return Sample{}, parseError("timestamp field \"t\" must be integer milliseconds", err)
		}
		ts = t
	}
	unit, _ := item.GetString("u")

	id, err := NewIdentity(device, group, name)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Identity: id, Timestamp: ts, Value: value, Unit: unit}, nil
}

func parseError(msg string, cause error) error {
	return errors.Newf("%s: %w", msg, cause).
		Component("metric").
		Category(errors.CategoryValidation).
		Build()
}
