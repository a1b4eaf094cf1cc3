package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/asree/homelab-telemetry/pkg/metric"
	"github.com/asree/homelab-telemetry/pkg/query"
	"github.com/asree/homelab-telemetry/pkg/timerange"
)

// ErrZeroPeriod is returned for a timeseries request with period 0, the
// deterministic refusal spec §4.4 requires before query construction.
var ErrZeroPeriod = errors.New("storage: timeseries period must be non-zero")

// ErrUnsupportedFilterValue is returned for an Array-valued tag equality
// filter. Spec §9 leaves the legacy behavior (silently dropping the clause)
// as an open question and recommends rejecting it deterministically instead;
// this engine takes that recommendation rather than the silent no-op.
var ErrUnsupportedFilterValue = errors.New("storage: array-valued tag filters are not supported")

// ErrBatchFailed is returned when every request in a batch failed.
var ErrBatchFailed = errors.New("storage: every request in the batch failed")

// Execute implements spec §4.2/§4.4: each request is resolved
// independently against the range's absolute window at now; a per-request
// failure is logged and the label is dropped from the response, never
// aborting the rest of the batch.
func (e *SQLEngine) Execute(ctx context.Context, requests query.Batch, rng timerange.TimeRange, now time.Time) (query.ResponseBatch, error) {
	abs := rng.Resolve(now)
	out := make(query.ResponseBatch, len(requests))
	failures := 0

	for label, req := range requests {
		resp, err := e.executeOne(ctx, req, abs)
		if err != nil {
			e.logger.Printf("[STORAGE] query %q failed: %v", label, err)
			failures++
			continue
		}
		out[label] = resp
	}

	if len(requests) > 0 && failures == len(requests) {
		return nil, ErrBatchFailed
	}
	return out, nil
}

func (e *SQLEngine) executeOne(ctx context.Context, req query.Request, abs timerange.Absolute) (query.Response, error) {
	if req.Kind.IsTimeseries && req.Kind.PeriodS == 0 {
		return query.Response{}, ErrZeroPeriod
	}

	groupKeys := req.Query.GroupKeys()

	if req.Kind.IsTimeseries {
		return e.executeTimeseries(ctx, req.Query, abs, groupKeys, req.Kind.PeriodS)
	}
	return e.executeScalar(ctx, req.Query, abs, groupKeys)
}

// tagsExpr renders the `json_object(<group keys>)` projection of spec
// §4.4, or the literal empty object when there are no group keys.
func tagsExpr(groupKeys []string) string {
	if len(groupKeys) == 0 {
		return "'{}'"
	}
	expr := "json_object("
	for i, k := range groupKeys {
		if i > 0 {
			expr += ", "
		}
		path := jsonPath(k)
		expr += fmt.Sprintf("%s, json_extract(tags, '%s')", sqlQuote(k), path)
	}
	expr += ")"
	return expr
}

func jsonPath(tagName string) string {
	return "$." + tagName
}

func sqlQuote(s string) string {
	return "'" + escapeSingleQuotes(s) + "'"
}

func escapeSingleQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// buildExtraction renders the per-table extraction CTE body of spec §4.4:
// name/tags/value/timestamp, filtered by name, the resolved time range, and
// equality tag filters. An Array-valued tag filter is rejected with
// ErrUnsupportedFilterValue rather than silently dropped (spec §9).
func buildExtraction(table string, q query.Query, abs timerange.Absolute, groupKeys []string) (string, []any, error) {
	b := sq.Select("name", tagsExpr(groupKeys)+" AS tags", "value", "timestamp").
		From(table).
		Where(sq.Eq{"name": q.Name}).
		Where(sq.GtOrEq{"timestamp": abs.Start})
	if abs.End != nil {
		b = b.Where(sq.Lt{"timestamp": *abs.End})
	}

	for _, k := range q.Tags.SortedKeys() {
		v := q.Tags[k]
		if v.Kind == metric.TagArray {
			return "", nil, fmt.Errorf("%w: tag %q", ErrUnsupportedFilterValue, k)
		}
		path := jsonPath(k)
		var bound any
		if v.Kind == metric.TagInteger {
			bound = v.Integer
		} else {
			bound = v.Text
		}
		b = b.Where(sq.Expr(fmt.Sprintf("json_extract(tags, '%s') = ?", path), bound))
	}

	return b.ToSql()
}

func (e *SQLEngine) executeScalar(ctx context.Context, q query.Query, abs timerange.Absolute, groupKeys []string) (query.Response, error) {
	gaugeSQL, gaugeArgs, err := buildExtraction("gauge_metrics", q, abs, groupKeys)
	if err != nil {
		return query.Response{}, fmt.Errorf("storage: building gauge extraction: %w", err)
	}
	counterSQL, counterArgs, err := buildExtraction("counter_metrics", q, abs, groupKeys)
	if err != nil {
		return query.Response{}, fmt.Errorf("storage: building counter extraction: %w", err)
	}

	sqlStr := fmt.Sprintf(`
WITH gauge_extractions AS (%s),
counter_extractions AS (%s),
extractions AS (
	SELECT * FROM gauge_extractions
	UNION ALL SELECT * FROM counter_extractions
)
SELECT name, tags, %s(value) AS value
  FROM extractions
 GROUP BY name, tags`, gaugeSQL, counterSQL, q.Aggregator.SQLFunc())

	args := append(append([]any{}, gaugeArgs...), counterArgs...)

	rows, err := e.db.QueryxContext(ctx, sqlStr, args...)
	if err != nil {
		return query.Response{}, fmt.Errorf("storage: running scalar query: %w", err)
	}
	defer rows.Close()

	var results []query.ScalarResponse
	for rows.Next() {
		var name, tagsJSON string
		var value float64
		if err := rows.Scan(&name, &tagsJSON, &value); err != nil {
			return query.Response{}, fmt.Errorf("storage: scanning scalar row: %w", err)
		}
		var tags metric.MetricTags
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return query.Response{}, fmt.Errorf("storage: decoding scalar tags: %w", err)
		}
		results = append(results, query.ScalarResponse{Name: name, Tags: tags, Value: value})
	}
	if err := rows.Err(); err != nil {
		return query.Response{}, fmt.Errorf("storage: iterating scalar rows: %w", err)
	}

	return query.ScalarResult(results), nil
}

func (e *SQLEngine) executeTimeseries(ctx context.Context, q query.Query, abs timerange.Absolute, groupKeys []string, periodS uint32) (query.Response, error) {
	gaugeSQL, gaugeArgs, err := buildExtraction("gauge_metrics", q, abs, groupKeys)
	if err != nil {
		return query.Response{}, fmt.Errorf("storage: building gauge extraction: %w", err)
	}
	counterSQL, counterArgs, err := buildExtraction("counter_metrics", q, abs, groupKeys)
	if err != nil {
		return query.Response{}, fmt.Errorf("storage: building counter extraction: %w", err)
	}

	sqlStr := fmt.Sprintf(`
WITH gauge_extractions AS (%s),
counter_extractions AS (%s),
extractions AS (
	SELECT * FROM gauge_extractions
	UNION ALL SELECT * FROM counter_extractions
),
aggregated AS (
	SELECT name, tags, MIN(timestamp) AS timestamp, %s(value) AS value, (timestamp / ?) AS bucket
	  FROM extractions
	 GROUP BY name, tags, bucket
)
SELECT name, tags, json_group_array(timestamp) AS timestamps, json_group_array(value) AS amounts
  FROM aggregated
 GROUP BY name, tags`, gaugeSQL, counterSQL, q.Aggregator.SQLFunc())

	args := append(append([]any{}, gaugeArgs...), counterArgs...)
	args = append(args, periodS)

	rows, err := e.db.QueryxContext(ctx, sqlStr, args...)
	if err != nil {
		return query.Response{}, fmt.Errorf("storage: running timeseries query: %w", err)
	}
	defer rows.Close()

	var results []query.TimeseriesResponse
	for rows.Next() {
		var name, tagsJSON, timestampsJSON, amountsJSON string
		if err := rows.Scan(&name, &tagsJSON, &timestampsJSON, &amountsJSON); err != nil {
			return query.Response{}, fmt.Errorf("storage: scanning timeseries row: %w", err)
		}
		var tags metric.MetricTags
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			return query.Response{}, fmt.Errorf("storage: decoding timeseries tags: %w", err)
		}
		var timestamps []uint64
		if err := json.Unmarshal([]byte(timestampsJSON), &timestamps); err != nil {
			return query.Response{}, fmt.Errorf("storage: decoding timeseries timestamps: %w", err)
		}
		var amounts []float64
		if err := json.Unmarshal([]byte(amountsJSON), &amounts); err != nil {
			return query.Response{}, fmt.Errorf("storage: decoding timeseries values: %w", err)
		}

		n := len(timestamps)
		if len(amounts) < n {
			n = len(amounts)
		}
		points := make([]query.Point, n)
		for i := 0; i < n; i++ {
			points[i] = query.Point{TimestampS: timestamps[i], Value: amounts[i]}
		}
		results = append(results, query.TimeseriesResponse{Name: name, Tags: tags, Values: points})
	}
	if err := rows.Err(); err != nil {
		return query.Response{}, fmt.Errorf("storage: iterating timeseries rows: %w", err)
	}

	return query.TimeseriesResult(results), nil
}
