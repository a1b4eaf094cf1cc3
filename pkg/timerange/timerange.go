// Package timerange implements the absolute/relative time-window sum type
// used by every query (spec §3).
package timerange

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Bucket widths in seconds, spec §3: "HOUR=3600, DAY=86400, WEEK=604800,
// MONTH=2419200 (exactly 4 weeks)".
const (
	Hour  uint64 = 3600
	Day   uint64 = 86400
	Week  uint64 = 604800
	Month uint64 = 2419200
)

// Relative is one of the four named relative windows.
type Relative int

const (
	LastHour Relative = iota
	LastDay
	LastWeek
	LastMonth
)

func (r Relative) seconds() uint64 {
	switch r {
	case LastHour:
		return Hour
	case LastDay:
		return Day
	case LastWeek:
		return Week
	case LastMonth:
		return Month
	default:
		panic(fmt.Sprintf("timerange: unknown relative variant %d", r))
	}
}

func (r Relative) wireName() string {
	switch r {
	case LastHour:
		return "last-hour"
	case LastDay:
		return "last-day"
	case LastWeek:
		return "last-week"
	case LastMonth:
		return "last-month"
	default:
		panic(fmt.Sprintf("timerange: unknown relative variant %d", r))
	}
}

// Absolute is `{start_s, end_s?}`; End is nil for an open-ended range.
type Absolute struct {
	Start uint64
	End   *uint64
}

// TimeRange is the sum type `Absolute(...) | Relative(...)` from spec §3.
// Exactly one of Abs/Rel is meaningful, selected by IsRelative.
type TimeRange struct {
	IsRelative bool
	Abs        Absolute
	Rel        Relative
}

// AbsoluteRange builds an Absolute-variant TimeRange.
func AbsoluteRange(start uint64, end *uint64) TimeRange {
	return TimeRange{IsRelative: false, Abs: Absolute{Start: start, End: end}}
}

// RelativeRange builds a Relative-variant TimeRange.
func RelativeRange(r Relative) TimeRange {
	return TimeRange{IsRelative: true, Rel: r}
}

// Since is a convenience Absolute range with start=s, no end.
func Since(s uint64) TimeRange {
	return AbsoluteRange(s, nil)
}

// Resolve converts the range to a concrete Absolute window at query time.
// Spec §3: "Conversion to absolute fixes start = now - bucket_seconds,
// end = None."
func (t TimeRange) Resolve(now time.Time) Absolute {
	if !t.IsRelative {
		return t.Abs
	}
	nowSec := uint64(now.Unix())
	bucket := t.Rel.seconds()
	var start uint64
	if nowSec > bucket {
		start = nowSec - bucket
	}
	return Absolute{Start: start, End: nil}
}

// MarshalJSON encodes either the absolute object or one of the four relative
// string literals, per spec §6's flat JSON union.
func (t TimeRange) MarshalJSON() ([]byte, error) {
	if t.IsRelative {
		return json.Marshal(t.Rel.wireName())
	}
	return json.Marshal(struct {
		Start uint64  `json:"start"`
		End   *uint64 `json:"end"`
	}{Start: t.Abs.Start, End: t.Abs.End})
}

// ErrInvalidRange is returned when the wire payload matches neither shape.
var ErrInvalidRange = errors.New("timerange: range must be an absolute object or a relative literal")

// UnmarshalJSON decodes the flat union of spec §6: a JSON string literal for
// the relative variants, or an object for the absolute variant.
func (t *TimeRange) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		switch asString {
		case "last-hour":
			*t = RelativeRange(LastHour)
		case "last-day":
			*t = RelativeRange(LastDay)
		case "last-week":
			*t = RelativeRange(LastWeek)
		case "last-month":
			*t = RelativeRange(LastMonth)
		default:
			return fmt.Errorf("%w: unknown relative literal %q", ErrInvalidRange, asString)
		}
		return nil
	}

	var asObject struct {
		Start *uint64 `json:"start"`
		End   *uint64 `json:"end"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil || asObject.Start == nil {
		return ErrInvalidRange
	}
	*t = AbsoluteRange(*asObject.Start, asObject.End)
	return nil
}
