package metric

import (
	"encoding/json"
	"fmt"
)

// ValueKind selects which variant of Value is populated.
type ValueKind int

const (
	// Counter is a monotonically-increasing unsigned integer value.
	Counter ValueKind = iota
	// Gauge is an arbitrary floating-point value.
	Gauge
)

// Value is the `Counter(u64) | Gauge(f64)` union from spec §3.
type Value struct {
	Kind         ValueKind
	CounterValue uint64
	GaugeValue   float64
}

// CounterOf builds a counter-valued Value.
func CounterOf(v uint64) Value { return Value{Kind: Counter, CounterValue: v} }

// GaugeOf builds a gauge-valued Value.
func GaugeOf(v float64) Value { return Value{Kind: Gauge, GaugeValue: v} }

// Float64 returns the value widened to float64, the domain every aggregator
// operates in once extracted from storage (spec §4.4: UNION ALL of the two
// value domains).
func (v Value) Float64() float64 {
	if v.Kind == Counter {
		return float64(v.CounterValue)
	}
	return v.GaugeValue
}

// Metric is a single measurement: `{name, tags, timestamp, value}` (spec §3).
// Timestamp is unix seconds; sub-second resolution is out of scope (spec §9 —
// callers using nanoseconds internally MUST truncate before constructing a
// Metric).
type Metric struct {
	Name      string
	Tags      MetricTags
	Timestamp uint64
	Value     Value
}

// Header returns the borrowed {name, tags} view used during ingest batching.
func (m Metric) Header() Header {
	return Header{Name: m.Name, Tags: m.Tags}
}

// Header is the MetricHeader borrowed view of spec §3: `{name, &tags}`,
// used to group metrics during ingest batching. Never stored on its own.
type Header struct {
	Name string
	Tags MetricTags
}

// Key renders a stable identity for Header, usable as a Go map key when
// grouping a batch by series (name + tag contents).
func (h Header) Key() string {
	keys := h.Tags.SortedKeys()
	buf := h.Name
	for _, k := range keys {
		buf += "\x00" + k + "\x00" + h.Tags[k].String()
	}
	return buf
}

// wireSeries is the JSON shape of one entry of the batched intake
// payload's "counters"/"gauges" arrays (spec §6): parallel
// timestamps/values arrays sharing one header.
type wireSeries struct {
	Header wireHeader      `json:"header"`
	Values wireSeriesValue `json:"values"`
}

type wireHeader struct {
	Name string     `json:"name"`
	Tags MetricTags `json:"tags"`
}

type wireSeriesValue struct {
	Timestamps []uint64          `json:"timestamps"`
	Values     []json.RawMessage `json:"values"`
}

// Batch holds the decoded counters/gauges intake payload (spec §6).
type Batch struct {
	Counters []Metric
	Gauges   []Metric
}

// UnmarshalJSON decodes the HTTP intake wire payload of spec §6 into a flat
// Batch. A length mismatch between timestamps and values for one series
// silently drops the extra elements, matching the documented "caller bug"
// behavior.
func (b *Batch) UnmarshalJSON(data []byte) error {
	var wire struct {
		Counters []wireSeries `json:"counters"`
		Gauges   []wireSeries `json:"gauges"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	b.Counters = b.Counters[:0]
	for _, s := range wire.Counters {
		n := min(len(s.Values.Timestamps), len(s.Values.Values))
		for i := 0; i < n; i++ {
			var raw uint64
			if err := json.Unmarshal(s.Values.Values[i], &raw); err != nil {
				return fmt.Errorf("metric: decoding counter value: %w", err)
			}
			b.Counters = append(b.Counters, Metric{
				Name:      s.Header.Name,
				Tags:      s.Header.Tags,
				Timestamp: s.Values.Timestamps[i],
				Value:     CounterOf(raw),
			})
		}
	}

	b.Gauges = b.Gauges[:0]
	for _, s := range wire.Gauges {
		n := min(len(s.Values.Timestamps), len(s.Values.Values))
		for i := 0; i < n; i++ {
			var raw float64
			if err := json.Unmarshal(s.Values.Values[i], &raw); err != nil {
				return fmt.Errorf("metric: decoding gauge value: %w", err)
			}
			b.Gauges = append(b.Gauges, Metric{
				Name:      s.Header.Name,
				Tags:      s.Header.Tags,
				Timestamp: s.Values.Timestamps[i],
				Value:     GaugeOf(raw),
			})
		}
	}
	return nil
}

// MarshalJSON encodes the batch back into the spec §6 wire shape, one series
// per distinct header.
func (b Batch) MarshalJSON() ([]byte, error) {
	wire := struct {
		Counters []wireSeries `json:"counters"`
		Gauges   []wireSeries `json:"gauges"`
	}{
		Counters: groupSeries(b.Counters, func(v Value) json.RawMessage {
			raw, _ := json.Marshal(v.CounterValue)
			return raw
		}),
		Gauges: groupSeries(b.Gauges, func(v Value) json.RawMessage {
			raw, _ := json.Marshal(v.GaugeValue)
			return raw
		}),
	}
	return json.Marshal(wire)
}

func groupSeries(metrics []Metric, encode func(Value) json.RawMessage) []wireSeries {
	order := make([]string, 0, len(metrics))
	byHeader := make(map[string]*wireSeries, len(metrics))
	for _, m := range metrics {
		key := m.Header().Key()
		s, ok := byHeader[key]
		if !ok {
			s = &wireSeries{Header: wireHeader{Name: m.Name, Tags: m.Tags}}
			byHeader[key] = s
			order = append(order, key)
		}
		s.Values.Timestamps = append(s.Values.Timestamps, m.Timestamp)
		s.Values.Values = append(s.Values.Values, encode(m.Value))
	}
	out := make([]wireSeries, 0, len(order))
	for _, key := range order {
		out = append(out, *byHeader[key])
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// All returns the counters and gauges concatenated, the flat slice the
// Intake contract (spec §4.1) operates on.
func (b Batch) All() []Metric {
	out := make([]Metric, 0, len(b.Counters)+len(b.Gauges))
	out = append(out, b.Counters...)
	out = append(out, b.Gauges...)
	return out
}
