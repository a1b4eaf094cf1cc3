package atc

import "testing"

func TestParsePayloadFullFrame(t *testing.T) {
	// temperature = 215 (0x00D7) / 10.0 = 21.5C, humidity = 55%, battery = 88%
	data := []byte{0, 0, 0, 0, 0, 0, 0x00, 0xD7, 55, 88}
	r := parsePayload(data)

	if r.temperatureC == nil || *r.temperatureC != 21.5 {
		t.Fatalf("temperature = %v, want 21.5", r.temperatureC)
	}
	if r.humidityPct == nil || *r.humidityPct != 55 {
		t.Fatalf("humidity = %v, want 55", r.humidityPct)
	}
	if r.batteryPct == nil || *r.batteryPct != 88 {
		t.Fatalf("battery = %v, want 88", r.batteryPct)
	}
}

func TestParsePayloadMissingTrailingBytesSkipsOnlyThoseFields(t *testing.T) {
	// Long enough for temperature and humidity, too short for battery.
	data := []byte{0, 0, 0, 0, 0, 0, 0x00, 0x64, 40}
	r := parsePayload(data)

	if r.temperatureC == nil || *r.temperatureC != 10.0 {
		t.Fatalf("temperature = %v, want 10.0", r.temperatureC)
	}
	if r.humidityPct == nil || *r.humidityPct != 40 {
		t.Fatalf("humidity = %v, want 40", r.humidityPct)
	}
	if r.batteryPct != nil {
		t.Errorf("expected battery to be skipped for a short payload, got %v", *r.batteryPct)
	}
}

func TestParsePayloadEmptyIsAllNil(t *testing.T) {
	r := parsePayload(nil)
	if !r.isEmpty() {
		t.Fatal("expected an empty reading for a nil payload")
	}
}

func TestParsePayloadNegativeTemperature(t *testing.T) {
	// -5.0C encoded as int16(-50) = 0xFFCE big-endian.
	data := []byte{0, 0, 0, 0, 0, 0, 0xFF, 0xCE, 10, 0}
	r := parsePayload(data)
	if r.temperatureC == nil || *r.temperatureC != -5.0 {
		t.Fatalf("temperature = %v, want -5.0", r.temperatureC)
	}
}
