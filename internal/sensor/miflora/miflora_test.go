package miflora

import (
	"testing"
	"time"
)

func TestDeviceHistoryZeroValueIsEligible(t *testing.T) {
	var h deviceHistory
	if !h.eligible(time.Now(), time.Hour) {
		t.Fatal("expected a never-synced device to be eligible")
	}
}

func TestDeviceHistoryIneligibleUntilSyncIntervalElapses(t *testing.T) {
	now := time.Now()
	h := deviceHistory{lastSync: now}
	if h.eligible(now.Add(time.Minute), time.Hour) {
		t.Fatal("expected a recently synced device to stay ineligible")
	}
	if !h.eligible(now.Add(2*time.Hour), time.Hour) {
		t.Fatal("expected the device to become eligible after the sync interval elapses")
	}
}

func TestDeviceHistoryBackoffScalesWithFailures(t *testing.T) {
	now := time.Now()
	h := deviceHistory{lastFailure: now, consecutiveFailures: 2}
	// backoff = (2+1)*10s = 30s
	if h.eligible(now.Add(10*time.Second), time.Hour) {
		t.Fatal("expected the device to stay ineligible inside its backoff window")
	}
	if !h.eligible(now.Add(31*time.Second), time.Hour) {
		t.Fatal("expected the device to become eligible once backoff elapses")
	}
}

func TestSchedulerRecordSuccessResetsFailures(t *testing.T) {
	s := newScheduler(time.Hour)
	now := time.Now()
	s.recordFailure("aa:bb", now)
	s.recordFailure("aa:bb", now)
	s.recordSuccess("aa:bb", now)

	s.mu.RLock()
	h := s.devices["aa:bb"]
	s.mu.RUnlock()
	if h.consecutiveFailures != 0 {
		t.Fatalf("consecutiveFailures = %d, want 0 after a success", h.consecutiveFailures)
	}
	if h.lastSync.IsZero() {
		t.Fatal("expected lastSync to be recorded")
	}
}

func TestSchedulerTouchIsIdempotent(t *testing.T) {
	s := newScheduler(time.Hour)
	s.touch("aa:bb")
	s.recordFailure("aa:bb", time.Now())
	s.touch("aa:bb")

	addrs := s.addresses()
	if len(addrs) != 1 {
		t.Fatalf("addresses = %v, want exactly one entry", addrs)
	}
}

func TestSchedulerUnknownAddressIsEligible(t *testing.T) {
	s := newScheduler(time.Hour)
	if !s.eligible("never-seen", time.Now()) {
		t.Fatal("expected an untracked address to be eligible")
	}
}

func TestDecodeRealtimeKnownFrame(t *testing.T) {
	// temperature = 215 (0x00D7 little-endian: D7 00) / 10 = 21.5C
	// brightness = 1000 lux little-endian across bytes 3..7
	// moisture = 30%, conductivity = 350uS/cm little-endian
	data := []byte{0xD7, 0x00, 0x00, 0xE8, 0x03, 0x00, 0x00, 30, 0x5E, 0x01}
	r, ok := decodeRealtime(data)
	if !ok {
		t.Fatal("expected a full 10-byte realtime payload to decode")
	}
	if r.temperatureC != 21.5 {
		t.Errorf("temperatureC = %v, want 21.5", r.temperatureC)
	}
	if r.brightness != 1000 {
		t.Errorf("brightness = %v, want 1000", r.brightness)
	}
	if r.moisturePct != 30 {
		t.Errorf("moisturePct = %v, want 30", r.moisturePct)
	}
	if r.conductivity != 350 {
		t.Errorf("conductivity = %v, want 350", r.conductivity)
	}
}

func TestDecodeRealtimeShortPayloadFails(t *testing.T) {
	if _, ok := decodeRealtime([]byte{1, 2, 3}); ok {
		t.Fatal("expected a short payload to fail to decode")
	}
}

func TestDecodeHistoricalKnownFrame(t *testing.T) {
	data := make([]byte, 16)
	// offset = 3600s
	data[0], data[1], data[2], data[3] = 0x10, 0x0E, 0x00, 0x00
	// temperature = 215 -> 21.5C
	data[4], data[5] = 0xD7, 0x00
	// brightness = 500 across bytes 7..10 (3-byte little-endian)
	data[7], data[8], data[9] = 0xF4, 0x01, 0x00
	data[11] = 42     // moisture
	data[12] = 0x2C   // conductivity low byte (0x012C = 300)
	data[13] = 0x01

	e, ok := decodeHistorical(data)
	if !ok {
		t.Fatal("expected a full 14+ byte historical payload to decode")
	}
	if e.offsetSeconds != 3600 {
		t.Errorf("offsetSeconds = %v, want 3600", e.offsetSeconds)
	}
	if e.temperatureC != 21.5 {
		t.Errorf("temperatureC = %v, want 21.5", e.temperatureC)
	}
	if e.brightness != 500 {
		t.Errorf("brightness = %v, want 500", e.brightness)
	}
	if e.moisturePct != 42 {
		t.Errorf("moisturePct = %v, want 42", e.moisturePct)
	}
	if e.conductivity != 300 {
		t.Errorf("conductivity = %v, want 300", e.conductivity)
	}
}

func TestHistoryEntryAddressEncodesIndexLittleEndian(t *testing.T) {
	addr := historyEntryAddress(0x0102)
	want := []byte{0xA1, 0x02, 0x01}
	if !bytesEqual(addr, want) {
		t.Fatalf("historyEntryAddress(0x0102) = % X, want % X", addr, want)
	}
}

func TestSensorExecuteRejectsWrongType(t *testing.T) {
	s := &Sensor{cmds: make(chan Cmd, 1)}
	if err := s.Execute("not-a-cmd"); err == nil {
		t.Fatal("expected an error for a non-Cmd argument")
	}
}

func TestSensorExecuteQueuesCommand(t *testing.T) {
	s := &Sensor{cmds: make(chan Cmd, 1)}
	if err := s.Execute(Synchronize("aa:bb", true)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case c := <-s.cmds:
		if c.Address != "aa:bb" || !c.Force {
			t.Fatalf("got %+v, want Synchronize(aa:bb, force=true)", c)
		}
	default:
		t.Fatal("expected the command to be queued")
	}
}

func TestSensorExecuteFailsWhenQueueFull(t *testing.T) {
	s := &Sensor{cmds: make(chan Cmd, 1)}
	if err := s.Execute(SynchronizeAll(false)); err != nil {
		t.Fatalf("unexpected error filling the queue: %v", err)
	}
	if err := s.Execute(SynchronizeAll(false)); err == nil {
		t.Fatal("expected an error once the command queue is full")
	}
}
