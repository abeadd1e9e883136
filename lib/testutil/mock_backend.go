// Package testutil provides testing utilities for the tunnel controller:
// a scriptable in-memory backend and ready-made configurations.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/go-i2p/wgmobile/lib/backend"
	"github.com/go-i2p/wgmobile/lib/descriptor"
	apperrors "github.com/go-i2p/wgmobile/lib/errors"
)

// Backend call kinds recorded by MockBackend.
const (
	CallInit     = "init"
	CallSetState = "set_state"
	CallState    = "state"
)

// Call is one recorded backend invocation.
type Call struct {
	Op         string
	Handle     backend.Handle
	State      backend.TunnelState
	Descriptor *descriptor.Descriptor
}

// MockBackend is an in-memory backend.Backend that records every call and
// can be told to fail or to block.
type MockBackend struct {
	mu          sync.Mutex
	initialized bool
	states      map[uuid.UUID]backend.TunnelState
	calls       []Call
	observer    backend.StateObserver

	initErr  error
	setErr   error
	stateErr error
	hold     *Hold
}

// Hold pauses the next SetState call until Release.
type Hold struct {
	entered  chan struct{}
	released chan struct{}
	once     sync.Once
}

// Entered is closed once the held SetState call has started.
func (h *Hold) Entered() <-chan struct{} {
	return h.entered
}

// Release lets the held call return. It is safe to call more than once.
func (h *Hold) Release() {
	h.once.Do(func() { close(h.released) })
}

// NewMockBackend creates an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		states: make(map[uuid.UUID]backend.TunnelState),
	}
}

// FailInit makes every following Init return err (nil to stop failing).
func (m *MockBackend) FailInit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// FailSetState makes every following SetState return err.
func (m *MockBackend) FailSetState(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// FailState makes every following State return err.
func (m *MockBackend) FailState(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateErr = err
}

// HoldNextSetState arranges for the next SetState call to block until the
// returned Hold is released or the call's context ends.
func (m *MockBackend) HoldNextSetState() *Hold {
	h := &Hold{
		entered:  make(chan struct{}),
		released: make(chan struct{}),
	}
	m.mu.Lock()
	m.hold = h
	m.mu.Unlock()
	return h
}

// SetStateObserver implements backend.Observable.
func (m *MockBackend) SetStateObserver(fn backend.StateObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// Init implements backend.Backend.
func (m *MockBackend) Init(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: CallInit})
	if m.initErr != nil {
		return m.initErr
	}
	m.initialized = true
	return nil
}

// SetState implements backend.Backend.
func (m *MockBackend) SetState(ctx context.Context, h backend.Handle, state backend.TunnelState, d *descriptor.Descriptor) (backend.TunnelState, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Op: CallSetState, Handle: h, State: state, Descriptor: d})
	hold := m.hold
	m.hold = nil
	m.mu.Unlock()

	if hold != nil {
		close(hold.entered)
		select {
		case <-hold.released:
		case <-ctx.Done():
			return backend.StateError, ctx.Err()
		}
	}

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return backend.StateUninitialized, apperrors.ErrBackendNotInitialized
	}
	if m.setErr != nil {
		err := m.setErr
		m.states[h.ID] = backend.StateError
		m.mu.Unlock()
		return backend.StateError, err
	}
	if state != backend.StateUp && state != backend.StateDown {
		m.mu.Unlock()
		return backend.StateError, apperrors.ErrUnsupportedState
	}
	m.states[h.ID] = state
	fn := m.observer
	m.mu.Unlock()

	if fn != nil {
		fn(h, state)
	}
	return state, nil
}

// State implements backend.Backend.
func (m *MockBackend) State(_ context.Context, h backend.Handle) (backend.TunnelState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Op: CallState, Handle: h})
	if m.stateErr != nil {
		return backend.StateError, m.stateErr
	}
	if !m.initialized {
		return backend.StateUninitialized, nil
	}
	if s, ok := m.states[h.ID]; ok {
		return s, nil
	}
	return backend.StateDown, nil
}

// Calls returns a copy of every recorded call.
func (m *MockBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallsOf returns the recorded calls of one kind.
func (m *MockBackend) CallsOf(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Call
	for _, c := range m.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls but keeps state and failure settings.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// ErrMockBackend is a generic failure for scripted errors.
var ErrMockBackend = errors.New("mock backend failure")
