package sensor

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// ErrUnknownSensor is returned when a command targets an unregistered
// sensor id.
type ErrUnknownSensor struct{ ID string }

func (e *ErrUnknownSensor) Error() string { return fmt.Sprintf("sensor: unknown sensor %q", e.ID) }

// ManagerCommand carries a per-sensor command to Manager.Dispatch; the tag
// is the target sensor's id, and Cmd is forwarded to that sensor's Execute
// untouched.
type ManagerCommand struct {
	SensorID string
	Cmd      any
}

// Manager owns every running sensor, keyed by id, iterated in sorted
// order so listings and healthchecks are deterministic (spec §4.7).
type Manager struct {
	mu      sync.RWMutex
	ids     []string
	sensors map[string]Sensor
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{sensors: make(map[string]Sensor)}
}

// Register adds a sensor under its descriptor's id.
func (m *Manager) Register(s Sensor) {
	id := s.Descriptor().ID
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sensors[id]; !exists {
		i := sort.SearchStrings(m.ids, id)
		m.ids = append(m.ids, "")
		copy(m.ids[i+1:], m.ids[i:])
		m.ids[i] = id
	}
	m.sensors[id] = s
}

// GetSensor looks up a sensor by id for command dispatch.
func (m *Manager) GetSensor(id string) (Sensor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sensors[id]
	return s, ok
}

// Sensors returns every registered sensor in ascending id order.
func (m *Manager) Sensors() []Sensor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sensor, len(m.ids))
	for i, id := range m.ids {
		out[i] = m.sensors[id]
	}
	return out
}

// Dispatch forwards a command to the named sensor.
func (m *Manager) Dispatch(cmd ManagerCommand) error {
	s, ok := m.GetSensor(cmd.SensorID)
	if !ok {
		return &ErrUnknownSensor{ID: cmd.SensorID}
	}
	return s.Execute(cmd.Cmd)
}

// Healthcheck succeeds iff every owned sensor is healthy; it short-circuits
// on the first failure, wrapping it with the failing sensor's id.
func (m *Manager) Healthcheck() error {
	for _, s := range m.Sensors() {
		if err := s.Healthcheck(); err != nil {
			return fmt.Errorf("sensor %s: %w", s.Descriptor().ID, err)
		}
	}
	return nil
}

// Wait awaits every owned sensor exactly once, in ascending id order, and
// returns their errors combined. A nil return means every sensor exited
// cleanly.
func (m *Manager) Wait() error {
	sensors := m.Sensors()
	var err error
	for _, s := range sensors {
		if werr := s.Wait(); werr != nil {
			err = multierr.Append(err, fmt.Errorf("sensor %s: %w", s.Descriptor().ID, werr))
		}
	}
	return err
}
