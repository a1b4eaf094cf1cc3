// Package storage defines the storage-agnostic contracts of spec §4.3-§4.4
// and the concrete SQL engine that implements them.
package storage

import (
	"context"
	"time"

	"github.com/asree/homelab-telemetry/pkg/event"
	"github.com/asree/homelab-telemetry/pkg/metric"
	"github.com/asree/homelab-telemetry/pkg/query"
	"github.com/asree/homelab-telemetry/pkg/timerange"
)

// Intake defines the write-side interface sensors and the collector push
// through (spec §4.3). Used by: Collector.
type Intake interface {
	// PushMetrics persists a batch of counter/gauge measurements.
	PushMetrics(ctx context.Context, batch metric.Batch) error

	// PushEvent records a single non-metric occurrence.
	PushEvent(ctx context.Context, evt event.Event) error
}

// Executor defines the read-side interface the query API runs against
// (spec §4.4). Used by: HTTP query handler.
type Executor interface {
	// Execute resolves every request in the batch against the shared time
	// range, as of now, and returns one response per label that
	// succeeded; a label whose request failed is absent from the result,
	// and an error is returned only when every request failed. A Query
	// naming an unknown metric yields an empty result for that label,
	// never an error.
	Execute(ctx context.Context, requests query.Batch, rng timerange.TimeRange, now time.Time) (query.ResponseBatch, error)
}

// Storage is the full read/write contract a concrete backend implements.
type Storage interface {
	Intake
	Executor

	// Cleanup removes data older than the retention cutoff (spec §4.10's
	// maintenance sweep) and reports how many rows were removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)

	// Stats reports coarse storage counters. No HTTP route exposes them.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the underlying database handle.
	Close() error
}

// Stats summarizes stored volume for diagnostics.
type Stats struct {
	CounterRows int64     `json:"counter_rows"`
	GaugeRows   int64     `json:"gauge_rows"`
	OldestPoint time.Time `json:"oldest_point"`
	NewestPoint time.Time `json:"newest_point"`
}
