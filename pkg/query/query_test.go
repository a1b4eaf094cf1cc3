package query

import (
	"encoding/json"
	"testing"

	"github.com/asree/homelab-telemetry/pkg/metric"
)

func TestAggregatorJSONRoundTrip(t *testing.T) {
	tests := []struct {
		agg  Aggregator
		wire string
	}{
		{Average, `"average"`},
		{Max, `"max"`},
		{Min, `"min"`},
		{Sum, `"sum"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.agg)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.agg, err)
		}
		if string(data) != tt.wire {
			t.Errorf("marshal %v = %s, want %s", tt.agg, data, tt.wire)
		}

		var decoded Aggregator
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.wire, err)
		}
		if decoded != tt.agg {
			t.Errorf("unmarshal %s = %v, want %v", tt.wire, decoded, tt.agg)
		}
	}
}

func TestParseAggregatorRejectsUnknown(t *testing.T) {
	if _, err := ParseAggregator("median"); err == nil {
		t.Fatal("expected an error for an unrecognized aggregator")
	}
}

func TestAggregatorSQLFunc(t *testing.T) {
	if Average.SQLFunc() != "avg" {
		t.Errorf("Average.SQLFunc() = %q, want avg", Average.SQLFunc())
	}
	if Sum.SQLFunc() != "sum" {
		t.Errorf("Sum.SQLFunc() = %q, want sum", Sum.SQLFunc())
	}
}

func TestQueryGroupKeysDedupesTagsAndGroupBy(t *testing.T) {
	q := Query{
		Name:    "cpu_pct",
		Tags:    metric.NewTags("host", "pi-1"),
		GroupBy: []string{"host", "cpu_index"},
	}
	keys := q.GroupKeys()
	want := []string{"host", "cpu_index"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestKindJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Timeseries(60))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Kind
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.IsTimeseries || decoded.PeriodS != 60 {
		t.Errorf("decoded kind = %+v, want timeseries period 60", decoded)
	}

	data, err = json.Marshal(Scalar())
	if err != nil {
		t.Fatalf("marshal scalar: %v", err)
	}
	decoded = Kind{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal scalar: %v", err)
	}
	if decoded.IsTimeseries {
		t.Error("expected a scalar kind")
	}
}

func TestKindUnmarshalRejectsUnknownName(t *testing.T) {
	var k Kind
	if err := json.Unmarshal([]byte(`{"name": "histogram"}`), &k); err == nil {
		t.Fatal("expected an error for an unrecognized request kind")
	}
}

func TestPointMarshalsAsTwoElementArray(t *testing.T) {
	p := Point{TimestampS: 100, Value: 42.5}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `[100,42.5]` {
		t.Errorf("marshal = %s, want [100,42.5]", data)
	}

	var decoded Point
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.TimestampS != 100 || decoded.Value != 42.5 {
		t.Errorf("decoded = %+v, want {100 42.5}", decoded)
	}
}

func TestResponseMarshalsAsTaggedObject(t *testing.T) {
	resp := ScalarResult([]ScalarResponse{{Name: "cpu_pct", Value: 50}})
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		t.Fatalf("unmarshal into probe: %v", err)
	}
	if _, ok := probe["Scalar"]; !ok {
		t.Fatalf("expected a top-level Scalar key, got %s", data)
	}
	if _, ok := probe["Timeseries"]; ok {
		t.Fatalf("did not expect a Timeseries key on a scalar response, got %s", data)
	}
}

func TestResponseEmptyResultIsEmptySliceNotNull(t *testing.T) {
	resp := ScalarResult(nil)
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Scalar == nil {
		t.Fatal("expected an empty slice, not nil, for an empty scalar result")
	}
	if len(decoded.Scalar) != 0 {
		t.Errorf("expected zero entries, got %d", len(decoded.Scalar))
	}
}

func TestResponseRoundTripTimeseries(t *testing.T) {
	resp := TimeseriesResult([]TimeseriesResponse{
		{Name: "cpu_pct", Values: []Point{{TimestampS: 1, Value: 2}}},
	})
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Response
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Timeseries) != 1 || decoded.Scalar != nil {
		t.Errorf("decoded = %+v, want one timeseries entry and no scalar", decoded)
	}
}
