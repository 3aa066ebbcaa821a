// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"errors"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/charmbracelet/log"

	"github.com/perseusxr/magicopt/internal/optimize"
)

const (
	// EventProgress is published for every accepted progress update.
	EventProgress EventKind = "progress"
	// EventCompleted is published once when a run ends successfully.
	EventCompleted EventKind = "completed"
	// EventFailed is published once when a run ends with a failed result.
	EventFailed EventKind = "failed"
	// EventCancelled is published once when a cancelled run settles.
	EventCancelled EventKind = "cancelled"

	eventTopic = "run:event"
)

// ErrNilHandler is returned by Subscribe when the handler is nil.
var ErrNilHandler = errors.New("event handler is nil")

type (
	// EventKind names what happened to the run.
	EventKind string

	// Event is delivered to subscribers. Result is set only on terminal events.
	Event struct {
		Kind     EventKind
		Snapshot Snapshot
		Result   *optimize.Result
	}

	// dispatcher publishes events on its own goroutine in the order they were
	// queued. The owner goroutine never blocks on subscribers.
	dispatcher struct {
		bus    evbus.Bus
		logger *log.Logger

		mu     sync.Mutex
		queue  []Event
		signal chan struct{}
		stop   chan struct{}
		done   chan struct{}
		once   sync.Once
	}
)

// IsTerminal reports whether the event ends a run.
func (k EventKind) IsTerminal() bool {
	return k == EventCompleted || k == EventFailed || k == EventCancelled
}

func terminalKind(s Status) EventKind {
	switch s {
	case StatusCompleted:
		return EventCompleted
	case StatusCancelled:
		return EventCancelled
	default:
		return EventFailed
	}
}

func newDispatcher(logger *log.Logger) *dispatcher {
	d := &dispatcher{
		bus:    evbus.New(),
		logger: logger,
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) subscribe(handler func(Event)) error {
	if handler == nil {
		return ErrNilHandler
	}
	return d.bus.Subscribe(eventTopic, handler)
}

func (d *dispatcher) push(ev Event) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.signal:
			d.drain()
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		ev := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.publish(ev)
	}
}

func (d *dispatcher) publish(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "kind", ev.Kind, "run", ev.Snapshot.RunID, "panic", r)
		}
	}()
	d.bus.Publish(eventTopic, ev)
}

// close delivers everything still queued and stops the goroutine.
func (d *dispatcher) close() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}
