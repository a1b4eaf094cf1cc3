package collector

import (
	"context"
	"testing"
	"time"

	"github.com/asree/homelab-telemetry/pkg/event"
	"github.com/asree/homelab-telemetry/pkg/metric"
	"github.com/asree/homelab-telemetry/pkg/query"
	"github.com/asree/homelab-telemetry/pkg/timerange"
)

type fakeIntake struct {
	pushed []metric.Batch
	events []event.Event
	err    error
}

func (f *fakeIntake) PushMetrics(ctx context.Context, batch metric.Batch) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, batch)
	return nil
}

func (f *fakeIntake) PushEvent(ctx context.Context, evt event.Event) error {
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeIntake) Execute(ctx context.Context, requests query.Batch, rng timerange.TimeRange, now time.Time) (query.ResponseBatch, error) {
	return query.ResponseBatch{}, nil
}

func TestPushMetricsPartitionsByKind(t *testing.T) {
	intake := &fakeIntake{}
	c := New(intake, nil)

	metrics := []metric.Metric{
		{Name: "counter.one", Value: metric.CounterOf(1)},
		{Name: "gauge.one", Value: metric.GaugeOf(1.5)},
	}
	if err := c.PushMetrics(context.Background(), metrics); err != nil {
		t.Fatalf("push metrics: %v", err)
	}
	if len(intake.pushed) != 1 {
		t.Fatalf("expected exactly one forwarded batch, got %d", len(intake.pushed))
	}
	batch := intake.pushed[0]
	if len(batch.Counters) != 1 || len(batch.Gauges) != 1 {
		t.Errorf("expected 1 counter and 1 gauge, got %d/%d", len(batch.Counters), len(batch.Gauges))
	}
}

func TestPushEventAppendsToLog(t *testing.T) {
	intake := &fakeIntake{}
	log := NewEventLog()
	defer log.Close()
	c := New(intake, log)

	evt := event.DeviceDiscovered("atc", "AA:BB:CC:DD:EE:FF", nil)
	if err := c.PushEvent(context.Background(), evt); err != nil {
		t.Fatalf("push event: %v", err)
	}
	if len(intake.events) != 1 {
		t.Fatalf("expected event forwarded to intake, got %d", len(intake.events))
	}
	if log.Len() != 1 {
		t.Errorf("expected event log length 1, got %d", log.Len())
	}
}

func TestEventLogSubscribeDeliversInOrder(t *testing.T) {
	log := NewEventLog()
	defer log.Close()

	received := make(chan event.Event, 10)
	log.Subscribe("sub", OffsetEarliest, func(ctx context.Context, evt event.Event) {
		received <- evt
	})

	log.Append(event.DeviceDiscovered("atc", "addr-1", nil))
	log.Append(event.DeviceDiscovered("atc", "addr-2", nil))

	first := <-received
	second := <-received
	if first.Fields["address"] != "addr-1" || second.Fields["address"] != "addr-2" {
		t.Errorf("expected in-order delivery, got %q then %q", first.Fields["address"], second.Fields["address"])
	}
}
