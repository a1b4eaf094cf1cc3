package storage

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/asree/homelab-telemetry/pkg/event"
	"github.com/asree/homelab-telemetry/pkg/metric"
)

// PushMetrics implements spec §4.3's batch ingest algorithm: one
// transaction, one multi-row insert per non-empty value domain, all-or-
// nothing commit.
func (e *SQLEngine) PushMetrics(ctx context.Context, batch metric.Batch) error {
	if len(batch.Counters) == 0 && len(batch.Gauges) == 0 {
		return nil
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: starting ingest transaction: %w", err)
	}
	defer tx.Rollback()

	if len(batch.Counters) > 0 {
		insert := sq.Insert("counter_metrics").Columns("name", "tags", "timestamp", "value")
		for _, m := range batch.Counters {
			tagsJSON, err := json.Marshal(m.Tags)
			if err != nil {
				return fmt.Errorf("storage: encoding counter tags: %w", err)
			}
			insert = insert.Values(m.Name, string(tagsJSON), m.Timestamp, m.Value.CounterValue)
		}
		sqlStr, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("storage: building counter insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("storage: inserting counters: %w", err)
		}
	}

	if len(batch.Gauges) > 0 {
		insert := sq.Insert("gauge_metrics").Columns("name", "tags", "timestamp", "value")
		for _, m := range batch.Gauges {
			tagsJSON, err := json.Marshal(m.Tags)
			if err != nil {
				return fmt.Errorf("storage: encoding gauge tags: %w", err)
			}
			insert = insert.Values(m.Name, string(tagsJSON), m.Timestamp, m.Value.GaugeValue)
		}
		sqlStr, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("storage: building gauge insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("storage: inserting gauges: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: committing ingest: %w", err)
	}

	e.logger.Printf("[DEBUG] ingest: inserted %d counter point(s), %d gauge point(s)", len(batch.Counters), len(batch.Gauges))
	return nil
}

// PushEvent records a single occurrence. The schema of spec §6 defines no
// event table — events are operator-facing notifications, not queryable
// time-series — so the sink is the structured log, consistent with how the
// rest of the system surfaces operational detail.
func (e *SQLEngine) PushEvent(ctx context.Context, evt event.Event) error {
	e.logger.Printf("[EVENT] source=%s severity=%d message=%q fields=%v", evt.Source, evt.Severity, evt.Message, evt.Fields)
	return nil
}
