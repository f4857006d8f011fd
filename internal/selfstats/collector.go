// Package selfstats samples host metrics of the machine metrink runs on
// and feeds them back through the ingest pipeline.
package selfstats

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/metrink/metrink-go/internal/errors"
	"github.com/metrink/metrink-go/internal/logger"
	"github.com/metrink/metrink-go/internal/metric"
	"github.com/metrink/metrink-go/internal/observability"
)

const sourceSelf = "self"

// Buffer accepts raw samples for aggregation.
type Buffer interface {
	Enqueue(samples []metric.Sample)
}

// Processor evaluates samples against live alerts.
type Processor interface {
	ProcessSamples(samples []metric.Sample) int
}

// reading is one named host value.
type reading struct {
	group, name, unit string
	value             float64
}

// probe reads one family of host values.
type probe func(ctx context.Context) ([]reading, error)

// Collector turns host statistics into samples for a fixed device name.
type Collector struct {
	device  string
	buffer  Buffer
	engine  Processor
	log     logger.Logger
	metrics *observability.Metrics
	now     func() time.Time
	probes  map[string]probe
}

// NewCollector returns a collector reporting as device. diskPath is the
// mount point whose usage is reported.
func NewCollector(device, diskPath string, buffer Buffer, engine Processor, log logger.Logger, metrics *observability.Metrics) *Collector {
	if log == nil {
		log = logger.Global()
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &Collector{
		device:  device,
		buffer:  buffer,
		engine:  engine,
		log:     log.Module("selfstats"),
		metrics: metrics,
		now:     time.Now,
		probes: map[string]probe{
			"cpu":    cpuProbe,
			"memory": memoryProbe,
			"disk":   diskProbe(diskPath),
			"load":   loadProbe,
		},
	}
}

func cpuProbe(ctx context.Context) ([]reading, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	if len(pct) == 0 {
		return nil, nil
	}
	return []reading{{group: "cpu", name: "percent", unit: "%", value: pct[0]}}, nil
}

func memoryProbe(ctx context.Context) ([]reading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return []reading{
		{group: "memory", name: "used_percent", unit: "%", value: vm.UsedPercent},
		{group: "memory", name: "available", unit: "B", value: float64(vm.Available)},
	}, nil
}

func diskProbe(path string) probe {
	return func(ctx context.Context) ([]reading, error) {
		usage, err := disk.UsageWithContext(ctx, path)
		if err != nil {
			return nil, err
		}
		return []reading{
			{group: "disk", name: "used_percent", unit: "%", value: usage.UsedPercent},
			{group: "disk", name: "free", unit: "B", value: float64(usage.Free)},
		}, nil
	}
}

func loadProbe(ctx context.Context) ([]reading, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return []reading{{group: "load", name: "load1", value: avg.Load1}}, nil
}

// Collect reads every probe once and enqueues the results. A failing probe
// is logged and skipped; Collect fails only when every probe failed.
func (c *Collector) Collect(ctx context.Context) error {
	ts := c.now().UnixMilli()
	var samples []metric.Sample
	var errs []error

	for family, p := range c.probes {
		readings, err := p(ctx)
		if err != nil {
			c.log.Debug("probe failed", logger.String("probe", family), logger.Error(err))
			errs = append(errs, err)
			continue
		}
		for _, r := range readings {
			id, err := metric.NewIdentity(c.device, r.group, r.name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			samples = append(samples, metric.Sample{Identity: id, Timestamp: ts, Value: r.value, Unit: r.unit})
		}
	}

	if len(samples) == 0 && len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component("selfstats").
			Category(errors.CategorySystem).
			Context("device", c.device).
			Build()
	}
	if len(samples) > 0 {
		c.buffer.Enqueue(samples)
		if c.engine != nil {
			c.engine.ProcessSamples(samples)
		}
	}
	c.metrics.RecordIngested(sourceSelf, len(samples), 0)
	return nil
}
