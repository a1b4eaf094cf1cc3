// Package collector implements the Collector contract of spec §4.5: the
// single shared sink every sensor pushes metrics and events through.
package collector

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/asree/homelab-telemetry/internal/storage"
	"github.com/asree/homelab-telemetry/pkg/event"
	"github.com/asree/homelab-telemetry/pkg/metric"
)

// Collector is a cheap, shareable handle: all mutable state lives behind
// the wrapped Intake and EventLog, so copying a Collector is always safe
// and every sensor task can hold its own copy (spec §4.5's cloning
// semantics).
type Collector struct {
	intake storage.Intake
	events *EventLog
}

// New builds a Collector forwarding into intake and recording pushed
// events in log.
func New(intake storage.Intake, log *EventLog) Collector {
	return Collector{intake: intake, events: log}
}

// PushMetrics forwards the slice to the Intake unmodified. There is no
// internal buffering: batching is the caller's concern, since each sensor
// already emits one naturally-sized batch per tick.
func (c Collector) PushMetrics(ctx context.Context, metrics []metric.Metric) error {
	batchID := uuid.New().String()

	var batch metric.Batch
	for _, m := range metrics {
		switch m.Value.Kind {
		case metric.Counter:
			batch.Counters = append(batch.Counters, m)
		case metric.Gauge:
			batch.Gauges = append(batch.Gauges, m)
		default:
			return fmt.Errorf("collector: batch %s: metric %q has unrecognized value kind", batchID, m.Name)
		}
	}
	if err := c.intake.PushMetrics(ctx, batch); err != nil {
		return fmt.Errorf("collector: batch %s: %w", batchID, err)
	}
	return nil
}

// PushEvent forwards to the event sink and appends it to the tailable
// event log. Every event is stamped with a unique ID, giving tailers a
// stable key for dedup across a resumed Subscribe.
func (c Collector) PushEvent(ctx context.Context, evt event.Event) error {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if err := c.intake.PushEvent(ctx, evt); err != nil {
		return fmt.Errorf("collector: event %s: %w", evt.ID, err)
	}
	if c.events != nil {
		c.events.Append(evt)
	}
	return nil
}
