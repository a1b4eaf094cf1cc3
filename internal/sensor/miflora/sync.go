package miflora

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/asree/homelab-telemetry/internal/collector"
	"github.com/asree/homelab-telemetry/pkg/metric"
)

// Characteristic numbers from spec §4.10. The enclosing service UUIDs are
// never given in the spec, only these characteristic numbers; dataServiceUUID
// and historyServiceUUID below are this implementation's own placeholders
// (see DESIGN.md).
var (
	dataServiceUUID    = bluetooth.New16BitUUID(0x1204)
	historyServiceUUID = bluetooth.New16BitUUID(0x1206)

	modeCharUUID     = bluetooth.New16BitUUID(50)
	realtimeCharUUID = bluetooth.New16BitUUID(52)
	firmwareCharUUID = bluetooth.New16BitUUID(0x37)
	historyCtrlUUID  = bluetooth.New16BitUUID(61)
	historyDataUUID  = bluetooth.New16BitUUID(59)
	epochCharUUID    = bluetooth.New16BitUUID(64)
)

const deviceTagValue = "xiaomi-miflora"

// synchronizeOne runs the full connect/read/disconnect sequence of spec
// §4.10 against one peripheral: enable realtime mode, read firmware and
// battery, read the realtime measurement, drain the history log
// best-effort, disconnect, and push the readings as one metric batch. Any
// step failing aborts the sequence and returns the error. The caller only
// records the failure in the scheduler; no retry is queued, and the device
// is tried again when a later discovery, heartbeat or command finds it
// eligible.
func synchronizeOne(ctx context.Context, adapter *bluetooth.Adapter, coll collector.Collector, address string) error {
	addr, err := bluetooth.ParseMAC(address)
	if err != nil {
		return fmt.Errorf("miflora: parsing address %q: %w", address, err)
	}

	dev, err := adapter.Connect(bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: addr}}, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("miflora: connect %s: %w", address, err)
	}
	disconnected := false
	defer func() {
		if !disconnected {
			_ = dev.Disconnect()
		}
	}()

	services, err := dev.DiscoverServices([]bluetooth.UUID{dataServiceUUID})
	if err != nil || len(services) == 0 {
		return fmt.Errorf("miflora: discover data service on %s: %w", address, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{modeCharUUID, realtimeCharUUID, firmwareCharUUID})
	if err != nil {
		return fmt.Errorf("miflora: discover characteristics on %s: %w", address, err)
	}

	mode, ok := findCharacteristic(chars, modeCharUUID)
	if !ok {
		return fmt.Errorf("miflora: %s has no mode characteristic", address)
	}
	realtime, ok := findCharacteristic(chars, realtimeCharUUID)
	if !ok {
		return fmt.Errorf("miflora: %s has no realtime characteristic", address)
	}
	firmware, ok := findCharacteristic(chars, firmwareCharUUID)
	if !ok {
		return fmt.Errorf("miflora: %s has no firmware/battery characteristic", address)
	}

	if _, err := mode.WriteWithoutResponse(modeRealtimeEnable); err != nil {
		return fmt.Errorf("miflora: enabling realtime mode on %s: %w", address, err)
	}
	modeReadback := make([]byte, 8)
	n, err := mode.Read(modeReadback)
	if err != nil {
		return fmt.Errorf("miflora: reading back mode on %s: %w", address, err)
	}
	if !bytes.HasPrefix(modeReadback[:n], modeRealtimeEnable) {
		return errModeWriteback
	}

	fwBuf := make([]byte, 20)
	n, err = firmware.Read(fwBuf)
	if err != nil {
		return fmt.Errorf("miflora: reading firmware/battery on %s: %w", address, err)
	}
	batteryPct, _ := decodeFirmwareBattery(fwBuf[:n])

	rtBuf := make([]byte, 16)
	n, err = realtime.Read(rtBuf)
	if err != nil {
		return fmt.Errorf("miflora: reading realtime payload on %s: %w", address, err)
	}
	reading, ok := decodeRealtime(rtBuf[:n])
	if !ok {
		return fmt.Errorf("miflora: %s returned a short realtime payload", address)
	}

	tags := metric.NewTags("device", deviceTagValue, "address", address)

	// Historical sync is best-effort: spec §4.10/§9 marks it optional and
	// does not require it to be reliable, so a failure here only drops the
	// history metrics, it never aborts or fails the realtime synchronization.
	historyMetrics, historyErr := readHistory(dev, tags)

	if err := dev.Disconnect(); err != nil {
		return fmt.Errorf("miflora: disconnect %s: %w", address, err)
	}
	disconnected = true

	now := uint64(time.Now().Unix())
	metrics := []metric.Metric{
		{Name: "measurement.temperature", Tags: tags, Timestamp: now, Value: metric.GaugeOf(reading.temperatureC)},
		{Name: "measurement.light", Tags: tags, Timestamp: now, Value: metric.GaugeOf(float64(reading.brightness))},
		{Name: "measurement.moisture", Tags: tags, Timestamp: now, Value: metric.GaugeOf(float64(reading.moisturePct))},
		{Name: "measurement.conductivity", Tags: tags, Timestamp: now, Value: metric.GaugeOf(float64(reading.conductivity))},
	}
	if batteryPct != nil {
		metrics = append(metrics, metric.Metric{Name: "device.battery", Tags: tags, Timestamp: now, Value: metric.GaugeOf(float64(*batteryPct))})
	}
	if historyErr == nil {
		metrics = append(metrics, historyMetrics...)
	}

	return coll.PushMetrics(ctx, metrics)
}

// readHistory recovers the device's boot time from its epoch characteristic
// and drains its history log, translating each entry's relative offset into
// an absolute timestamp. Every produced metric carries the same name as its
// realtime counterpart plus source:"history" (spec §9's resolution of the
// history-schema open question), so a query can filter history out.
func readHistory(dev *bluetooth.Device, tags metric.MetricTags) ([]metric.Metric, error) {
	services, err := dev.DiscoverServices([]bluetooth.UUID{historyServiceUUID})
	if err != nil || len(services) == 0 {
		return nil, fmt.Errorf("miflora: discover history service: %w", err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{historyCtrlUUID, historyDataUUID, epochCharUUID})
	if err != nil {
		return nil, fmt.Errorf("miflora: discover history characteristics: %w", err)
	}
	ctrl, ok := findCharacteristic(chars, historyCtrlUUID)
	if !ok {
		return nil, fmt.Errorf("miflora: no history control characteristic")
	}
	data, ok := findCharacteristic(chars, historyDataUUID)
	if !ok {
		return nil, fmt.Errorf("miflora: no history data characteristic")
	}
	epoch, ok := findCharacteristic(chars, epochCharUUID)
	if !ok {
		return nil, fmt.Errorf("miflora: no epoch characteristic")
	}

	bootTime, err := readBootTime(epoch)
	if err != nil {
		return nil, err
	}

	countBuf := make([]byte, 4)
	if _, err := ctrl.WriteWithoutResponse(historyReadInit); err != nil {
		return nil, fmt.Errorf("miflora: initiating history read: %w", err)
	}
	n, err := ctrl.Read(countBuf)
	if err != nil {
		return nil, fmt.Errorf("miflora: reading history entry count: %w", err)
	}
	entryCount := decodeHistoryCount(countBuf[:n])

	historyTags := make(metric.MetricTags, len(tags)+1)
	for k, v := range tags {
		historyTags[k] = v
	}
	historyTags["source"] = metric.Text("history")

	var metrics []metric.Metric
	entryBuf := make([]byte, 16)
	for idx := uint16(0); idx < entryCount; idx++ {
		if _, err := ctrl.WriteWithoutResponse(historyEntryAddress(idx)); err != nil {
			return metrics, fmt.Errorf("miflora: requesting history entry %d: %w", idx, err)
		}
		n, err := data.Read(entryBuf)
		if err != nil {
			return metrics, fmt.Errorf("miflora: reading history entry %d: %w", idx, err)
		}
		entry, ok := decodeHistorical(entryBuf[:n])
		if !ok {
			continue
		}
		ts := uint64(bootTime.Add(time.Duration(entry.offsetSeconds) * time.Second).Unix())
		metrics = append(metrics,
			metric.Metric{Name: "measurement.temperature", Tags: historyTags, Timestamp: ts, Value: metric.GaugeOf(entry.temperatureC)},
			metric.Metric{Name: "measurement.light", Tags: historyTags, Timestamp: ts, Value: metric.GaugeOf(float64(entry.brightness))},
			metric.Metric{Name: "measurement.moisture", Tags: historyTags, Timestamp: ts, Value: metric.GaugeOf(float64(entry.moisturePct))},
			metric.Metric{Name: "measurement.conductivity", Tags: historyTags, Timestamp: ts, Value: metric.GaugeOf(float64(entry.conductivity))},
		)
	}
	if _, err := ctrl.WriteWithoutResponse(historyReadSuccess); err != nil {
		return metrics, fmt.Errorf("miflora: acknowledging history read: %w", err)
	}
	return metrics, nil
}

// readBootTime recovers the device's boot time by reading its
// seconds-since-boot epoch characteristic and bracketing the read with two
// wall-clock samples, averaging them to cancel out GATT round-trip latency.
func readBootTime(epoch bluetooth.DeviceCharacteristic) (time.Time, error) {
	before := time.Now()
	buf := make([]byte, 4)
	n, err := epoch.Read(buf)
	after := time.Now()
	if err != nil {
		return time.Time{}, fmt.Errorf("miflora: reading epoch: %w", err)
	}
	if n < 4 {
		return time.Time{}, fmt.Errorf("miflora: short epoch payload (%d bytes)", n)
	}
	offset := binary.LittleEndian.Uint32(buf[:4])
	sampledAt := before.Add(after.Sub(before) / 2)
	return sampledAt.Add(-time.Duration(offset) * time.Second), nil
}

func decodeHistoryCount(data []byte) uint16 {
	if len(data) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(data[:2])
}

func findCharacteristic(chars []bluetooth.DeviceCharacteristic, uuid bluetooth.UUID) (bluetooth.DeviceCharacteristic, bool) {
	for _, c := range chars {
		if c.UUID() == uuid {
			return c, true
		}
	}
	return bluetooth.DeviceCharacteristic{}, false
}

// decodeFirmwareBattery reads the battery percentage out of the combined
// firmware/battery characteristic: byte 0 is the battery level, byte 1 is
// skipped, and the bytes from index 2 onward are an ASCII firmware version
// string (unused here).
func decodeFirmwareBattery(data []byte) (*uint8, string) {
	if len(data) == 0 {
		return nil, ""
	}
	v := data[0]
	version := ""
	if len(data) > 2 {
		version = string(data[2:])
	}
	return &v, version
}
