// Package query defines the typed request/response model of spec §3-§4.2:
// scalar aggregations and bucketed time-series, independent of any storage
// backend.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/asree/homelab-telemetry/pkg/metric"
)

// Aggregator selects how values within a group are reduced.
type Aggregator int

const (
	Average Aggregator = iota
	Max
	Min
	Sum
)

func (a Aggregator) String() string {
	switch a {
	case Average:
		return "average"
	case Max:
		return "max"
	case Min:
		return "min"
	case Sum:
		return "sum"
	default:
		return ""
	}
}

// SQLFunc returns the SQL aggregate function name for this aggregator
// (spec §4.4: avg|max|min|sum).
func (a Aggregator) SQLFunc() string {
	switch a {
	case Average:
		return "avg"
	case Max:
		return "max"
	case Min:
		return "min"
	case Sum:
		return "sum"
	default:
		return ""
	}
}

// ErrUnknownAggregator is returned when decoding an unrecognized aggregator
// literal.
var ErrUnknownAggregator = fmt.Errorf("query: unknown aggregator")

func ParseAggregator(s string) (Aggregator, error) {
	switch s {
	case "average":
		return Average, nil
	case "max":
		return Max, nil
	case "min":
		return Min, nil
	case "sum":
		return Sum, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAggregator, s)
	}
}

func (a Aggregator) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

func (a *Aggregator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAggregator(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Query is the storage-agnostic selection spec §3 describes: a name, a set
// of equality tag filters (AND-combined), an aggregator, and the tag names
// to project into the group key.
type Query struct {
	Name       string            `json:"name"`
	Tags       metric.MetricTags `json:"tags"`
	Aggregator Aggregator        `json:"aggregator"`
	GroupBy    []string          `json:"group_by"`
}

// GroupKeys returns the ordered, deduplicated union of the query's tag
// filter names and group-by names — the "<group keys>" of spec §4.4.
func (q Query) GroupKeys() []string {
	seen := make(map[string]struct{}, len(q.Tags)+len(q.GroupBy))
	keys := make([]string, 0, len(q.Tags)+len(q.GroupBy))
	for _, k := range q.Tags.SortedKeys() {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for _, k := range q.GroupBy {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// Kind selects whether a Request computes a single aggregated scalar or a
// bucketed time-series.
type Kind struct {
	IsTimeseries bool
	PeriodS      uint32 // meaningful only when IsTimeseries
}

// Scalar builds a scalar-kind Kind.
func Scalar() Kind { return Kind{IsTimeseries: false} }

// Timeseries builds a timeseries-kind Kind with the given bucket width.
func Timeseries(periodS uint32) Kind { return Kind{IsTimeseries: true, PeriodS: periodS} }

func (k Kind) MarshalJSON() ([]byte, error) {
	if k.IsTimeseries {
		return json.Marshal(struct {
			Name   string `json:"name"`
			Period uint32 `json:"period"`
		}{Name: "timeseries", Period: k.PeriodS})
	}
	return json.Marshal(struct {
		Name string `json:"name"`
	}{Name: "scalar"})
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var probe struct {
		Name   string `json:"name"`
		Period uint32 `json:"period"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Name {
	case "scalar":
		*k = Scalar()
	case "timeseries":
		*k = Timeseries(probe.Period)
	default:
		return fmt.Errorf("query: unknown request kind %q", probe.Name)
	}
	return nil
}

// Request pairs a Kind with the Query it applies to (spec §3).
type Request struct {
	Kind  Kind  `json:"kind"`
	Query Query `json:"query"`
}

// Label is the caller-chosen key identifying one Request within a Batch; it
// is echoed back in the Response map (spec §3, §4.2).
type Label = string

// Batch is the named batch of requests a caller submits in one call to the
// Query Executor contract (spec §3: `Map<label, Request>`).
type Batch map[Label]Request

// ScalarResponse is one grouped aggregation result.
type ScalarResponse struct {
	Name  string            `json:"name"`
	Tags  metric.MetricTags `json:"tags"`
	Value float64           `json:"value"`
}

// Point is one (timestamp, value) pair within a TimeseriesResponse.
type Point struct {
	TimestampS uint64  `json:"0"`
	Value      float64 `json:"1"`
}

// MarshalJSON encodes a Point as a two-element JSON array, matching the
// `Vec<(ts_s, value)>` shape of spec §3.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(p.TimestampS), p.Value})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.TimestampS = uint64(pair[0])
	p.Value = pair[1]
	return nil
}

// TimeseriesResponse is one grouped, bucketed series result.
type TimeseriesResponse struct {
	Name   string            `json:"name"`
	Tags   metric.MetricTags `json:"tags"`
	Values []Point           `json:"values"`
}

// Response is the `Scalar(...) | Timeseries(...)` union of spec §3. Exactly
// one of the two fields is populated; empty result sets are an empty slice,
// never nil/error (spec §3: "Empty result sets are represented by empty
// vectors, never error").
type Response struct {
	Scalar     []ScalarResponse     `json:"Scalar,omitempty"`
	Timeseries []TimeseriesResponse `json:"Timeseries,omitempty"`
}

// ScalarResult builds a Scalar-variant Response.
func ScalarResult(entries []ScalarResponse) Response {
	if entries == nil {
		entries = []ScalarResponse{}
	}
	return Response{Scalar: entries}
}

// TimeseriesResult builds a Timeseries-variant Response.
func TimeseriesResult(entries []TimeseriesResponse) Response {
	if entries == nil {
		entries = []TimeseriesResponse{}
	}
	return Response{Timeseries: entries}
}

// MarshalJSON encodes the response as the tagged `{"Scalar":[...]}` or
// `{"Timeseries":[...]}` object spec §6 specifies.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Timeseries != nil {
		return json.Marshal(struct {
			Timeseries []TimeseriesResponse `json:"Timeseries"`
		}{Timeseries: r.Timeseries})
	}
	return json.Marshal(struct {
		Scalar []ScalarResponse `json:"Scalar"`
	}{Scalar: r.Scalar})
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var probe struct {
		Scalar     *[]ScalarResponse     `json:"Scalar"`
		Timeseries *[]TimeseriesResponse `json:"Timeseries"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Timeseries != nil {
		r.Timeseries = *probe.Timeseries
		r.Scalar = nil
		return nil
	}
	if probe.Scalar != nil {
		r.Scalar = *probe.Scalar
		r.Timeseries = nil
		return nil
	}
	return fmt.Errorf("query: response must be Scalar or Timeseries")
}

// ResponseBatch is the `Map<label, Response>` a successful Executor.Execute
// call returns (spec §4.2).
type ResponseBatch map[Label]Response
