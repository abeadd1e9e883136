package tunnel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/wgmobile/lib/backend"
)

// EventType categorizes controller events.
type EventType int

const (
	// EventInitialized is emitted when the backend has been initialized.
	EventInitialized EventType = iota
	// EventConnected is emitted when the backend reports the tunnel up.
	EventConnected
	// EventDisconnected is emitted when the tunnel has been taken down.
	EventDisconnected
	// EventStateChanged is emitted when the backend pushes a state change.
	EventStateChanged
	// EventError is emitted when a lifecycle call fails.
	EventError
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EventInitialized:
		return "initialized"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventStateChanged:
		return "state_changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification.
type Event struct {
	// Type is the category of this event.
	Type EventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// State is the backend state for EventStateChanged, EventConnected and
	// EventDisconnected.
	State backend.TunnelState

	// Error contains the error for EventError events.
	Error error

	// Message is a human-readable description of the event.
	Message string
}

type subscriber struct {
	id int
	fn func(Event)
}

// eventEmitter fans events out to a buffered channel and to subscribers.
type eventEmitter struct {
	mu          sync.Mutex
	events      chan Event
	closed      bool
	subscribers []subscriber
	nextID      int
	onDrop      func()

	droppedCount atomic.Uint64 // counts events dropped due to full buffer
}

// newEventEmitter creates a new event emitter with the given buffer size.
func newEventEmitter(bufferSize int, onDrop func()) *eventEmitter {
	if bufferSize < 1 {
		bufferSize = 100
	}
	return &eventEmitter{
		events: make(chan Event, bufferSize),
		onDrop: onDrop,
	}
}

// emit sends an event to the channel and then to each subscriber, in
// subscription order. If the channel is full the event is dropped from the
// channel only.
func (e *eventEmitter) emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	select {
	case e.events <- event:
	default:
		e.droppedCount.Add(1)
		if e.onDrop != nil {
			e.onDrop()
		}
	}
	subs := append([]subscriber(nil), e.subscribers...)
	e.mu.Unlock()

	for _, s := range subs {
		s.fn(event)
	}
}

// emitSimple emits a simple event with just type and message.
func (e *eventEmitter) emitSimple(eventType EventType, state backend.TunnelState, message string) {
	e.emit(Event{
		Type:    eventType,
		State:   state,
		Message: message,
	})
}

// emitError emits an error event.
func (e *eventEmitter) emitError(err error, message string) {
	e.emit(Event{
		Type:    EventError,
		Error:   err,
		Message: message,
	})
}

func (e *eventEmitter) subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.subscribers = append(e.subscribers, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subscribers {
				if s.id == id {
					e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// channel returns the event channel for consumers.
func (e *eventEmitter) channel() <-chan Event {
	return e.events
}

// droppedEvents returns the total count of events dropped due to a full buffer.
func (e *eventEmitter) droppedEvents() uint64 {
	return e.droppedCount.Load()
}

// close closes the event channel and drops all subscribers.
func (e *eventEmitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.subscribers = nil
		close(e.events)
	}
}
