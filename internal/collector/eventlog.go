package collector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/asree/homelab-telemetry/pkg/event"
)

// Offset is a position in the event log.
type Offset int64

const (
	// OffsetEarliest starts tailing from the beginning of the log.
	OffsetEarliest Offset = -2
	// OffsetLatest starts tailing from new events only.
	OffsetLatest Offset = -1
)

// Handler processes one tailed event.
type Handler func(ctx context.Context, evt event.Event)

type tailer struct {
	offset  Offset
	handler Handler
	notify  chan struct{}
}

// EventLog is an append-only, in-memory log of pushed events with
// independent per-consumer read offsets, adapted from a log-based message
// queue design to the Collector's event sink (spec §4.5). PushEvent always
// forwards synchronously to the configured Intake; EventLog additionally
// records the event so an operator-facing endpoint can tail recent
// activity, since the SQL schema has no event table.
type EventLog struct {
	logMu sync.RWMutex
	log   []event.Event

	tailMu  sync.RWMutex
	tailers map[string]*tailer

	total int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEventLog creates an empty event log.
func NewEventLog() *EventLog {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLog{
		tailers: make(map[string]*tailer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close stops every tailer and waits for their goroutines to exit.
func (l *EventLog) Close() {
	l.cancel()
	l.tailMu.Lock()
	for _, t := range l.tailers {
		close(t.notify)
	}
	l.tailers = map[string]*tailer{}
	l.tailMu.Unlock()
	l.wg.Wait()
}

// Append records an event and wakes any tailers.
func (l *EventLog) Append(evt event.Event) {
	l.logMu.Lock()
	l.log = append(l.log, evt)
	l.logMu.Unlock()

	atomic.AddInt64(&l.total, 1)
	l.notifyTailers()
}

func (l *EventLog) notifyTailers() {
	l.tailMu.RLock()
	defer l.tailMu.RUnlock()
	for _, t := range l.tailers {
		select {
		case t.notify <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers handler to be invoked, in order, for every event from
// startOffset onward, delivered on its own goroutine.
func (l *EventLog) Subscribe(subscriberID string, startOffset Offset, handler Handler) {
	l.tailMu.Lock()
	t := &tailer{offset: l.resolveOffset(startOffset), handler: handler, notify: make(chan struct{}, 1)}
	l.tailers[subscriberID] = t
	l.tailMu.Unlock()

	l.wg.Add(1)
	select {
	case t.notify <- struct{}{}:
	default:
	}
	go l.consumeLoop(t)
}

// Unsubscribe stops a previously registered tailer.
func (l *EventLog) Unsubscribe(subscriberID string) {
	l.tailMu.Lock()
	defer l.tailMu.Unlock()
	if t, ok := l.tailers[subscriberID]; ok {
		close(t.notify)
		delete(l.tailers, subscriberID)
	}
}

func (l *EventLog) resolveOffset(offset Offset) Offset {
	l.logMu.RLock()
	defer l.logMu.RUnlock()
	switch offset {
	case OffsetEarliest:
		return 0
	case OffsetLatest:
		return Offset(len(l.log))
	default:
		if offset < 0 {
			return 0
		}
		return offset
	}
}

func (l *EventLog) consumeLoop(t *tailer) {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case _, ok := <-t.notify:
			if !ok {
				return
			}
			l.deliver(t)
		}
	}
}

func (l *EventLog) deliver(t *tailer) {
	for {
		l.logMu.RLock()
		idx := int(t.offset)
		if idx < 0 || idx >= len(l.log) {
			l.logMu.RUnlock()
			return
		}
		evt := l.log[idx]
		l.logMu.RUnlock()

		t.handler(l.ctx, evt)
		t.offset++
	}
}

// Recent returns up to n of the most recently appended events, oldest
// first.
func (l *EventLog) Recent(n int) []event.Event {
	l.logMu.RLock()
	defer l.logMu.RUnlock()
	if n <= 0 || n > len(l.log) {
		n = len(l.log)
	}
	out := make([]event.Event, n)
	copy(out, l.log[len(l.log)-n:])
	return out
}

// Len reports the total number of events ever appended.
func (l *EventLog) Len() int64 {
	return atomic.LoadInt64(&l.total)
}
