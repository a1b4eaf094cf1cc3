// Package sensor defines the long-running sensor contract of spec §4.6 and
// the manager that owns every running sensor (spec §4.7).
package sensor

import (
	"context"
	"fmt"
	"sync"
)

// Descriptor is a sensor's stable identity.
type Descriptor struct {
	ID   string
	Kind string
}

// Sensor is a typed long-running process: non-blocking command injection,
// a healthcheck that fails once the underlying task has terminated, and a
// wait that joins it.
type Sensor interface {
	Descriptor() Descriptor

	// Execute injects a command. Each sensor implementation defines its
	// own command shape; sensors with nothing to receive leave this a
	// no-op (BasicTaskSensor's default).
	Execute(cmd any) error

	// Healthcheck fails if the underlying task has already terminated.
	Healthcheck() error

	// Wait joins the underlying task and returns its result. Call once;
	// behavior of a second call is implementation-defined.
	Wait() error
}

// BasicTaskSensor is the default Sensor implementation: it owns one
// background task and reports health by whether that task has finished.
// Sensors that accept commands (MiFlora) embed a BasicTaskSensor and
// shadow Execute with their own command handling.
type BasicTaskSensor struct {
	descriptor Descriptor
	done       chan struct{}

	mu  sync.Mutex
	err error
}

// StartBasicTaskSensor launches task in its own goroutine and returns a
// sensor tracking its lifetime. task must return promptly once ctx is
// cancelled (spec §5: every long loop must include a cancellation branch).
func StartBasicTaskSensor(ctx context.Context, desc Descriptor, task func(ctx context.Context) error) *BasicTaskSensor {
	s := &BasicTaskSensor{descriptor: desc, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		err := task(ctx)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()
	return s
}

func (s *BasicTaskSensor) Descriptor() Descriptor { return s.descriptor }

// Execute is a no-op: BasicTaskSensor accepts no commands.
func (s *BasicTaskSensor) Execute(cmd any) error { return nil }

func (s *BasicTaskSensor) Healthcheck() error {
	select {
	case <-s.done:
		return fmt.Errorf("sensor %s: task has terminated", s.descriptor.ID)
	default:
		return nil
	}
}

func (s *BasicTaskSensor) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
