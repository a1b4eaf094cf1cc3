package metric

import (
	"encoding/json"
	"testing"
)

func TestBatchUnmarshalDecodesCountersAndGauges(t *testing.T) {
	payload := []byte(`{
		"counters": [
			{"header": {"name": "requests_total", "tags": {"host": "pi-1"}},
			 "values": {"timestamps": [1, 2], "values": [10, 11]}}
		],
		"gauges": [
			{"header": {"name": "cpu_pct", "tags": {"host": "pi-1"}},
			 "values": {"timestamps": [1], "values": [42.5]}}
		]
	}`)

	var batch Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(batch.Counters) != 2 {
		t.Fatalf("expected 2 counter points, got %d", len(batch.Counters))
	}
	if batch.Counters[0].Value.CounterValue != 10 || batch.Counters[1].Value.CounterValue != 11 {
		t.Errorf("unexpected counter values: %+v", batch.Counters)
	}
	if len(batch.Gauges) != 1 || batch.Gauges[0].Value.GaugeValue != 42.5 {
		t.Fatalf("unexpected gauge points: %+v", batch.Gauges)
	}
}

func TestBatchUnmarshalTruncatesMismatchedLengths(t *testing.T) {
	payload := []byte(`{
		"counters": [
			{"header": {"name": "requests_total", "tags": {}},
			 "values": {"timestamps": [1, 2, 3], "values": [10]}}
		],
		"gauges": []
	}`)

	var batch Batch
	if err := json.Unmarshal(payload, &batch); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(batch.Counters) != 1 {
		t.Fatalf("expected the extra timestamps to be silently dropped, got %d points", len(batch.Counters))
	}
}

func TestBatchMarshalGroupsBySeries(t *testing.T) {
	batch := Batch{
		Counters: []Metric{
			{Name: "requests_total", Tags: NewTags("host", "pi-1"), Timestamp: 1, Value: CounterOf(10)},
			{Name: "requests_total", Tags: NewTags("host", "pi-1"), Timestamp: 2, Value: CounterOf(11)},
		},
	}

	data, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Batch
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if len(decoded.Counters) != 2 {
		t.Fatalf("expected 2 counter points after round-trip, got %d", len(decoded.Counters))
	}
}

func TestHeaderKeyDistinguishesTagSets(t *testing.T) {
	a := Metric{Name: "cpu_pct", Tags: NewTags("host", "pi-1")}.Header().Key()
	b := Metric{Name: "cpu_pct", Tags: NewTags("host", "pi-2")}.Header().Key()
	if a == b {
		t.Error("expected different tag sets to produce different header keys")
	}
}

func TestValueFloat64Widening(t *testing.T) {
	if CounterOf(7).Float64() != 7.0 {
		t.Error("expected counter value to widen exactly")
	}
	if GaugeOf(1.5).Float64() != 1.5 {
		t.Error("expected gauge value to pass through")
	}
}

func TestBatchAllConcatenatesCountersAndGauges(t *testing.T) {
	batch := Batch{
		Counters: []Metric{{Name: "c"}},
		Gauges:   []Metric{{Name: "g1"}, {Name: "g2"}},
	}
	all := batch.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 combined metrics, got %d", len(all))
	}
}
