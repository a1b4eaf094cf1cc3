// Package metric defines the measurement model shared by every sensor and
// the storage engine: metric names, tag maps, and the counter/gauge value
// union.
package metric

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TagValueKind identifies which variant of TagValue is populated.
type TagValueKind int

const (
	// TagText holds a string tag value.
	TagText TagValueKind = iota
	// TagInteger holds a signed 64-bit tag value.
	TagInteger
	// TagArray holds an ordered list of Text/Integer tag values.
	TagArray
)

// TagValue is the sum type `Text(string) | Integer(i64) | Array<Text|Integer>`
// from spec §3. Only one of the fields is meaningful, selected by Kind.
type TagValue struct {
	Kind    TagValueKind
	Text    string
	Integer int64
	Array   []TagValue
}

// Text builds a text-valued tag.
func Text(v string) TagValue { return TagValue{Kind: TagText, Text: v} }

// Integer builds an integer-valued tag.
func Integer(v int64) TagValue { return TagValue{Kind: TagInteger, Integer: v} }

// ArrayOf builds an array-valued tag.
func ArrayOf(values ...TagValue) TagValue { return TagValue{Kind: TagArray, Array: values} }

// String renders the tag value for JSON path comparisons and debug output.
func (v TagValue) String() string {
	switch v.Kind {
	case TagText:
		return v.Text
	case TagInteger:
		return fmt.Sprintf("%d", v.Integer)
	case TagArray:
		parts := make([]string, len(v.Array))
		for i, e := range v.Array {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return ""
	}
}

// MarshalJSON encodes the tag as the bare JSON scalar/array it represents,
// not as a tagged union, matching the wire format of spec §6.
func (v TagValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case TagText:
		return json.Marshal(v.Text)
	case TagInteger:
		return json.Marshal(v.Integer)
	case TagArray:
		return json.Marshal(v.Array)
	default:
		return json.Marshal(nil)
	}
}

// UnmarshalJSON decodes a bare JSON scalar/array into the matching TagValue
// variant.
func (v *TagValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := tagValueFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func tagValueFromAny(raw any) (TagValue, error) {
	switch t := raw.(type) {
	case string:
		return Text(t), nil
	case float64:
		return Integer(int64(t)), nil
	case []any:
		elems := make([]TagValue, len(t))
		for i, e := range t {
			parsed, err := tagValueFromAny(e)
			if err != nil {
				return TagValue{}, err
			}
			elems[i] = parsed
		}
		return ArrayOf(elems...), nil
	default:
		return TagValue{}, fmt.Errorf("metric: unsupported tag value %#v", raw)
	}
}

// MetricTags is an ordered mapping from tag name to TagValue. Spec §3:
// equality and hashing are over the full ordered *contents*; insertion order
// is not preserved, iteration is by sorted key so SQL parameter order and
// group keys are stable.
type MetricTags map[string]TagValue

// NewTags builds a MetricTags from name/value pairs.
func NewTags(pairs ...any) MetricTags {
	tags := make(MetricTags, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		name := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case TagValue:
			tags[name] = v
		case string:
			tags[name] = Text(v)
		case int:
			tags[name] = Integer(int64(v))
		case int64:
			tags[name] = Integer(v)
		default:
			panic(fmt.Sprintf("metric: unsupported tag literal %#v", v))
		}
	}
	return tags
}

// SortedKeys returns the tag names in ascending order, giving a stable
// iteration order for SQL binding and group-key construction.
func (t MetricTags) SortedKeys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether two tag sets have identical contents; two metrics
// with the same name and Equal tag sets are the same series (spec §3).
func (t MetricTags) Equal(other MetricTags) bool {
	if len(t) != len(other) {
		return false
	}
	for k, v := range t {
		ov, ok := other[k]
		if !ok || ov.String() != v.String() || ov.Kind != v.Kind {
			return false
		}
	}
	return true
}

// Subset reports whether every name/value pair in filters is present and
// equal in t; used to apply Query.tags equality filters in-process (e.g. in
// tests and in-memory fakes).
func (t MetricTags) Subset(filters MetricTags) bool {
	for k, v := range filters {
		tv, ok := t[k]
		if !ok || tv.Kind != v.Kind || tv.String() != v.String() {
			return false
		}
	}
	return true
}

// Project returns a new MetricTags containing only the requested keys, in
// the order given keys are irrelevant to the returned map but the result is
// used wherever spec §3 says a response's tags contain only the projected
// group-by keys (plus the original equality filters).
func (t MetricTags) Project(keys []string) MetricTags {
	out := make(MetricTags, len(keys))
	for _, k := range keys {
		if v, ok := t[k]; ok {
			out[k] = v
		}
	}
	return out
}
