// Package miflora implements the Xiaomi Mi Flora GATT sensor of spec §4.10
// (C9): the most complex sensor, a small state machine with retry backoff
// that discovers peripherals by service UUID, then connects to read and
// synchronize each one in turn.
package miflora

import (
	"context"
	"log"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/asree/homelab-telemetry/internal/collector"
	"github.com/asree/homelab-telemetry/internal/sensor"
)

const sensorID = "miflora"

var advertisedServiceUUID = bluetooth.New16BitUUID(0xFE95)

// Config configures the synchronization schedule.
type Config struct {
	// SyncInterval is how long a successful synchronization stays fresh
	// before the device becomes eligible again.
	SyncInterval time.Duration
	// Heartbeat is how often the loop re-sweeps every tracked device for
	// eligibility even without a fresh discovery.
	Heartbeat time.Duration
	// CommandQueue bounds the Execute command channel.
	CommandQueue int
}

// DefaultConfig returns the spec's defaults: a one hour sync interval and a
// ten minute heartbeat.
func DefaultConfig() Config {
	return Config{
		SyncInterval: time.Hour,
		Heartbeat:    10 * time.Minute,
		CommandQueue: 8,
	}
}

// Cmd is the MiFlora command union: either synchronize every tracked
// device, or one named device, optionally bypassing backoff.
type Cmd struct {
	All     bool
	Address string
	Force   bool
}

// SynchronizeAll requests a sweep of every tracked device.
func SynchronizeAll(force bool) Cmd { return Cmd{All: true, Force: force} }

// Synchronize requests synchronization of a single device by address.
func Synchronize(address string, force bool) Cmd { return Cmd{Address: address, Force: force} }

// Sensor wraps a BasicTaskSensor with a command channel, the pattern spec
// §4.6 calls out for sensors that accept commands: Execute type-asserts and
// forwards non-blockingly instead of the embedded no-op.
type Sensor struct {
	*sensor.BasicTaskSensor
	cmds chan Cmd
}

// Descriptor identifies this sensor for the manager.
func (s *Sensor) Descriptor() sensor.Descriptor { return s.BasicTaskSensor.Descriptor() }

// Execute accepts a Cmd and forwards it to the running loop. It returns an
// error rather than blocking if the queue is full.
func (s *Sensor) Execute(cmd any) error {
	c, ok := cmd.(Cmd)
	if !ok {
		return errUnsupportedCommand
	}
	select {
	case s.cmds <- c:
		return nil
	default:
		return errCommandQueueFull
	}
}

// Start launches the MiFlora sensor: it scans for FE95-advertising
// peripherals, tracks each by address, and synchronizes eligible devices on
// discovery, on heartbeat, and on demand via Execute.
func Start(ctx context.Context, adapter *bluetooth.Adapter, coll collector.Collector, cfg Config, logger *log.Logger) (*Sensor, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.SyncInterval <= 0 || cfg.Heartbeat <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.CommandQueue <= 0 {
		cfg.CommandQueue = 8
	}

	if err := adapter.Enable(); err != nil {
		return nil, err
	}

	cmds := make(chan Cmd, cfg.CommandQueue)
	sched := newScheduler(cfg.SyncInterval)

	base := sensor.StartBasicTaskSensor(ctx, sensor.Descriptor{ID: sensorID, Kind: "ble-gatt"}, func(ctx context.Context) error {
		return run(ctx, adapter, coll, sched, cmds, cfg, logger)
	})

	return &Sensor{BasicTaskSensor: base, cmds: cmds}, nil
}

func run(ctx context.Context, adapter *bluetooth.Adapter, coll collector.Collector, sched *scheduler, cmds chan Cmd, cfg Config, logger *log.Logger) error {
	discovered := make(chan string, 16)

	scanErr := make(chan error, 1)
	go func() {
		scanErr <- adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(advertisedServiceUUID) {
				return
			}
			select {
			case discovered <- result.Address.String():
			default:
			}
		})
	}()
	defer func() {
		if err := adapter.StopScan(); err != nil {
			logger.Printf("[MIFLORA] stop scan: %v", err)
		}
		<-scanErr
	}()

	heartbeat := time.NewTicker(cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-scanErr:
			return err

		case address := <-discovered:
			sched.touch(address)
			now := time.Now()
			if sched.eligible(address, now) {
				syncDevice(ctx, adapter, coll, sched, address, false, logger)
			}

		case cmd := <-cmds:
			now := time.Now()
			if cmd.All {
				for _, address := range sched.addresses() {
					if cmd.Force || sched.eligible(address, now) {
						syncDevice(ctx, adapter, coll, sched, address, cmd.Force, logger)
					}
				}
				continue
			}
			sched.touch(cmd.Address)
			if cmd.Force || sched.eligible(cmd.Address, now) {
				syncDevice(ctx, adapter, coll, sched, cmd.Address, cmd.Force, logger)
			}

		case <-heartbeat.C:
			now := time.Now()
			for _, address := range sched.addresses() {
				if sched.eligible(address, now) {
					syncDevice(ctx, adapter, coll, sched, address, false, logger)
				}
			}
		}
	}
}

func syncDevice(ctx context.Context, adapter *bluetooth.Adapter, coll collector.Collector, sched *scheduler, address string, force bool, logger *log.Logger) {
	now := time.Now()
	if err := synchronizeOne(ctx, adapter, coll, address); err != nil {
		logger.Printf("[MIFLORA] synchronize %s: %v", address, err)
		sched.recordFailure(address, now)
		return
	}
	sched.recordSuccess(address, now)
}

// deviceHistory is one tracked device's synchronization record.
type deviceHistory struct {
	lastSync            time.Time
	lastFailure         time.Time
	consecutiveFailures uint8
}

// eligible reports whether now is far enough past both the last successful
// sync (syncInterval) and the last failure (an exponential-ish backoff of
// (consecutiveFailures+1)*10s). The zero value is eligible immediately.
func (h deviceHistory) eligible(now time.Time, syncInterval time.Duration) bool {
	if !h.lastSync.IsZero() && now.Sub(h.lastSync) < syncInterval {
		return false
	}
	backoff := (time.Duration(h.consecutiveFailures) + 1) * 10 * time.Second
	if !h.lastFailure.IsZero() && now.Sub(h.lastFailure) < backoff {
		return false
	}
	return true
}

// scheduler tracks every discovered device's synchronization history.
type scheduler struct {
	mu           sync.RWMutex
	syncInterval time.Duration
	devices      map[string]*deviceHistory
	order        []string
}

func newScheduler(syncInterval time.Duration) *scheduler {
	return &scheduler{syncInterval: syncInterval, devices: make(map[string]*deviceHistory)}
}

// touch registers address as tracked if it isn't already, a no-op
// otherwise.
func (s *scheduler) touch(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[address]; !ok {
		s.devices[address] = &deviceHistory{}
		s.order = append(s.order, address)
	}
}

func (s *scheduler) eligible(address string, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.devices[address]
	if !ok {
		return true
	}
	return h.eligible(now, s.syncInterval)
}

func (s *scheduler) recordSuccess(address string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.devices[address]
	if !ok {
		h = &deviceHistory{}
		s.devices[address] = h
		s.order = append(s.order, address)
	}
	h.lastSync = now
	h.consecutiveFailures = 0
}

func (s *scheduler) recordFailure(address string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.devices[address]
	if !ok {
		h = &deviceHistory{}
		s.devices[address] = h
		s.order = append(s.order, address)
	}
	h.lastFailure = now
	if h.consecutiveFailures < 255 {
		h.consecutiveFailures++
	}
}

func (s *scheduler) addresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
