// Package event defines the non-metric notifications sensors push through
// the collector (spec §4.5, §4.9): device-discovery and similar occurrences
// that are worth recording but aren't a numeric measurement.
package event

import "time"

// Severity classifies an Event for downstream display/alerting (out of
// core scope) and filtering.
type Severity int

const (
	// Info marks routine, expected occurrences (e.g. a new device seen).
	Info Severity = iota
	// Warning marks a recoverable but noteworthy condition.
	Warning
	// Error marks a condition an operator should investigate.
	Error
)

// Event is a single occurrence pushed via Collector.PushEvent.
type Event struct {
	// ID uniquely identifies this event. Collector.PushEvent assigns one
	// when empty, so callers may leave it unset.
	ID        string
	Source    string
	Severity  Severity
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// DeviceDiscovered builds the Info-severity event emitted by the ATC sensor
// when a new BLE peripheral enters its LRU (spec §4.9).
func DeviceDiscovered(source, address string, name *string) Event {
	fields := map[string]string{"address": address}
	if name != nil {
		fields["name"] = *name
	}
	return Event{
		Source:    source,
		Severity:  Info,
		Message:   "device discovered",
		Timestamp: time.Now(),
		Fields:    fields,
	}
}
