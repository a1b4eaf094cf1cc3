// Package system implements the periodic host-stats sensor of spec §4.8
// (C7): CPU, memory, and swap gauges pushed once per tick.
package system

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/asree/homelab-telemetry/internal/collector"
	"github.com/asree/homelab-telemetry/internal/sensor"
	"github.com/asree/homelab-telemetry/pkg/metric"
)

// Config configures the sampling interval.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns the spec's default 10 second tick.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Second}
}

const sensorID = "system"

// Start launches the system sensor as a BasicTaskSensor. It refreshes host
// stats every tick and pushes one batch of gauges to coll.
func Start(ctx context.Context, coll collector.Collector, cfg Config, logger *log.Logger) *sensor.BasicTaskSensor {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}

	hostname := "unknown"
	if info, err := host.InfoWithContext(ctx); err == nil && info.Hostname != "" {
		hostname = info.Hostname
	} else if err != nil {
		logger.Printf("[SYSTEM] failed to resolve hostname: %v", err)
	}

	return sensor.StartBasicTaskSensor(ctx, sensor.Descriptor{ID: sensorID, Kind: "system"}, func(ctx context.Context) error {
		return run(ctx, coll, cfg, hostname, logger)
	})
}

func run(ctx context.Context, coll collector.Collector, cfg Config, hostname string, logger *log.Logger) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick(ctx, coll, hostname, logger)
		}
	}
}

func tick(ctx context.Context, coll collector.Collector, hostname string, logger *log.Logger) {
	var metrics []metric.Metric
	now := uint64(time.Now().Unix())

	if infos, err := cpu.InfoWithContext(ctx); err != nil {
		logger.Printf("[SYSTEM] cpu.Info failed: %v", err)
	} else if percents, err := cpu.PercentWithContext(ctx, 0, true); err != nil {
		logger.Printf("[SYSTEM] cpu.Percent failed: %v", err)
	} else {
		for i, info := range infos {
			tags := metric.NewTags(
				"host", hostname,
				"index", int64(i),
				"cpu_name", cpuName(i),
				"cpu_brand", info.ModelName,
				"cpu_vendor_id", info.VendorID,
			)
			metrics = append(metrics,
				metric.Metric{Name: "system.cpu.frequency", Tags: tags, Timestamp: now, Value: metric.GaugeOf(info.Mhz)},
			)
			if i < len(percents) {
				metrics = append(metrics,
					metric.Metric{Name: "system.cpu.usage", Tags: tags, Timestamp: now, Value: metric.GaugeOf(percents[i])},
				)
			}
		}
	}

	hostTags := metric.NewTags("host", hostname)
	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		logger.Printf("[SYSTEM] mem.VirtualMemory failed: %v", err)
	} else {
		metrics = append(metrics,
			metric.Metric{Name: "system.memory.total", Tags: hostTags, Timestamp: now, Value: metric.GaugeOf(float64(vm.Total))},
			metric.Metric{Name: "system.memory.used", Tags: hostTags, Timestamp: now, Value: metric.GaugeOf(float64(vm.Used))},
		)
	}
	if sm, err := mem.SwapMemoryWithContext(ctx); err != nil {
		logger.Printf("[SYSTEM] mem.SwapMemory failed: %v", err)
	} else {
		metrics = append(metrics,
			metric.Metric{Name: "system.swap.total", Tags: hostTags, Timestamp: now, Value: metric.GaugeOf(float64(sm.Total))},
			metric.Metric{Name: "system.swap.used", Tags: hostTags, Timestamp: now, Value: metric.GaugeOf(float64(sm.Used))},
		)
	}

	if len(metrics) == 0 {
		return
	}
	if err := coll.PushMetrics(ctx, metrics); err != nil {
		logger.Printf("[SYSTEM] push failed: %v", err)
	}
}

func cpuName(index int) string {
	return "cpu" + strconv.Itoa(index)
}
