// Package atc implements the passive BLE advertising sensor of spec §4.9
// (C8): Xiaomi LYWSD03MMC thermometers running the "ATC" custom firmware,
// identified by their 0x181A environmental-sensing service data.
package atc

import (
	"context"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"tinygo.org/x/bluetooth"

	"github.com/asree/homelab-telemetry/internal/collector"
	"github.com/asree/homelab-telemetry/internal/sensor"
	"github.com/asree/homelab-telemetry/pkg/event"
	"github.com/asree/homelab-telemetry/pkg/metric"
)

var serviceUUID = bluetooth.New16BitUUID(0x181A)

const (
	deviceTagValue = "xiaomi-lywsd03mmc-atc"
	sensorID       = "atc"
)

// Device is the cached identity of a peripheral seen during scanning.
type Device struct {
	Address string
	Name    *string
}

// Config configures the ATC sensor's device cache.
type Config struct {
	// CacheCapacity bounds the LRU of recently seen peripherals.
	CacheCapacity int
}

// DefaultConfig returns the spec's default capacity-10 LRU.
func DefaultConfig() Config {
	return Config{CacheCapacity: 10}
}

// Start launches the ATC sensor as a BasicTaskSensor, scanning via adapter
// until ctx is cancelled.
func Start(ctx context.Context, adapter *bluetooth.Adapter, coll collector.Collector, cfg Config, logger *log.Logger) (*sensor.BasicTaskSensor, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.CacheCapacity <= 0 {
		cfg = DefaultConfig()
	}

	cache, err := lru.New[string, Device](cfg.CacheCapacity)
	if err != nil {
		return nil, err
	}

	if err := adapter.Enable(); err != nil {
		return nil, err
	}

	return sensor.StartBasicTaskSensor(ctx, sensor.Descriptor{ID: sensorID, Kind: "ble-advertising"}, func(ctx context.Context) error {
		return scanLoop(ctx, adapter, coll, cache, logger)
	}), nil
}

func scanLoop(ctx context.Context, adapter *bluetooth.Adapter, coll collector.Collector, cache *lru.Cache[string, Device], logger *log.Logger) error {
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			onAdvertisement(ctx, coll, cache, logger, result)
		})
	}()

	select {
	case <-ctx.Done():
		if err := adapter.StopScan(); err != nil {
			logger.Printf("[ATC] stop scan: %v", err)
		}
		<-scanErr
		return nil
	case err := <-scanErr:
		return err
	}
}

func onAdvertisement(ctx context.Context, coll collector.Collector, cache *lru.Cache[string, Device], logger *log.Logger, result bluetooth.ScanResult) {
	id := result.Address.String()

	if _, seen := cache.Get(id); !seen {
		var namePtr *string
		if name := result.LocalName(); name != "" {
			namePtr = &name
		}
		cache.Add(id, Device{Address: id, Name: namePtr})

		if err := coll.PushEvent(ctx, event.DeviceDiscovered(sensorID, id, namePtr)); err != nil {
			logger.Printf("[ATC] push event for %s: %v", id, err)
		}
	}

	if !result.HasServiceUUID(serviceUUID) {
		return
	}
	for _, sd := range result.ServiceData() {
		if sd.UUID != serviceUUID {
			continue
		}
		pushReading(ctx, coll, cache, logger, id, sd.Data)
	}
}

func pushReading(ctx context.Context, coll collector.Collector, cache *lru.Cache[string, Device], logger *log.Logger, id string, payload []byte) {
	reading := parsePayload(payload)
	if reading.isEmpty() {
		return
	}

	var namePtr *string
	if dev, ok := cache.Get(id); ok {
		namePtr = dev.Name
	}

	pairs := []any{"device", deviceTagValue, "address", id}
	if namePtr != nil {
		pairs = append(pairs, "name", *namePtr)
	}
	tags := metric.NewTags(pairs...)

	now := uint64(time.Now().Unix())

	var metrics []metric.Metric
	if reading.batteryPct != nil {
		metrics = append(metrics, metric.Metric{Name: "device.battery", Tags: tags, Timestamp: now, Value: metric.GaugeOf(float64(*reading.batteryPct))})
	}
	if reading.temperatureC != nil {
		metrics = append(metrics, metric.Metric{Name: "measurement.temperature", Tags: tags, Timestamp: now, Value: metric.GaugeOf(*reading.temperatureC)})
	}
	if reading.humidityPct != nil {
		metrics = append(metrics, metric.Metric{Name: "measurement.humidity", Tags: tags, Timestamp: now, Value: metric.GaugeOf(float64(*reading.humidityPct))})
	}

	if len(metrics) == 0 {
		return
	}
	if err := coll.PushMetrics(ctx, metrics); err != nil {
		logger.Printf("[ATC] push metrics for %s: %v", id, err)
	}
}

type reading struct {
	batteryPct   *uint8
	temperatureC *float64
	humidityPct  *uint8
}

func (r reading) isEmpty() bool {
	return r.batteryPct == nil && r.temperatureC == nil && r.humidityPct == nil
}

// parsePayload decodes the ATC advertisement layout of spec §4.9. A missing
// byte for a given field skips only that field.
func parsePayload(data []byte) reading {
	var r reading
	if len(data) > 9 {
		v := data[9]
		r.batteryPct = &v
	}
	if len(data) >= 8 {
		raw := int16(uint16(data[6])<<8 | uint16(data[7]))
		v := float64(raw) / 10.0
		r.temperatureC = &v
	}
	if len(data) >= 9 {
		v := data[8]
		r.humidityPct = &v
	}
	return r
}
