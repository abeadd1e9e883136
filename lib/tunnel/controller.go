// Package tunnel implements the single-tunnel lifecycle controller. A
// Controller validates caller configuration, builds the tunnel descriptor
// and drives one tunnel on a backend through initialize, connect and
// disconnect, reporting status on demand.
//
// The controller holds no package-level state; create one per tunnel owner
// and pass it explicitly.
package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-i2p/wgmobile/lib/backend"
	"github.com/go-i2p/wgmobile/lib/config"
	"github.com/go-i2p/wgmobile/lib/descriptor"
	apperrors "github.com/go-i2p/wgmobile/lib/errors"
	"github.com/go-i2p/wgmobile/lib/metrics"
)

// Lifecycle is the controller's cached view of the tunnel. It only decides
// whether a call is meaningful; Status always asks the backend.
type Lifecycle string

const (
	LifecycleUninitialized Lifecycle = "uninitialized"
	LifecycleReady         Lifecycle = "ready"
	LifecycleConnected     Lifecycle = "connected"
	LifecycleDisconnected  Lifecycle = "disconnected"
)

// Operation names used in errors, logs and metrics.
const (
	OpInitialize = "initialize"
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
)

// Option is a functional option for configuring a Controller.
type Option func(*options)

type options struct {
	tunnelName      string
	metrics         *metrics.Metrics
	eventBufferSize int
}

// WithTunnelName sets the name the backend sees for the tunnel.
func WithTunnelName(name string) Option {
	return func(o *options) {
		o.tunnelName = name
	}
}

// WithMetrics records lifecycle metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithEventBufferSize sets the event channel buffer size.
func WithEventBufferSize(size int) Option {
	return func(o *options) {
		o.eventBufferSize = size
	}
}

// Controller drives one tunnel. Lifecycle calls are admitted one at a
// time: a call that arrives while another is in flight fails with a busy
// error rather than waiting, so the backend sees calls in the order they
// were accepted. Status never waits on a lifecycle call.
type Controller struct {
	// gate admits one lifecycle call at a time.
	gate sync.Mutex

	mu        sync.RWMutex
	lifecycle Lifecycle
	handle    backend.Handle
	desc      *descriptor.Descriptor

	backend backend.Backend
	opts    options
	emitter *eventEmitter
}

// New creates a controller for b. Nothing touches the backend until
// Initialize.
func New(b backend.Backend, opts ...Option) *Controller {
	o := options{
		tunnelName:      backend.DefaultTunnelName,
		eventBufferSize: 100,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Controller{
		lifecycle: LifecycleUninitialized,
		backend:   b,
		opts:      o,
	}
	c.emitter = newEventEmitter(o.eventBufferSize, o.metrics.EventDropped)

	if obs, ok := b.(backend.Observable); ok {
		obs.SetStateObserver(c.onBackendState)
	}

	log.WithField("tunnel", o.tunnelName).Debug("tunnel controller created")
	return c
}

// Initialize prepares the backend. Calling it again after success does
// nothing. On failure the controller stays uninitialized.
func (c *Controller) Initialize(ctx context.Context) (err error) {
	if !c.gate.TryLock() {
		return c.reject(OpInitialize)
	}
	defer c.gate.Unlock()
	defer func() { c.opts.metrics.ObserveCall(OpInitialize, err) }()

	if c.Lifecycle() != LifecycleUninitialized {
		log.Debug("tunnel backend already initialized")
		return nil
	}

	start := time.Now()
	initErr := c.backend.Init(ctx)
	c.opts.metrics.ObserveBackend(OpInitialize, time.Since(start))
	if initErr != nil {
		log.WithError(initErr).Error("failed to initialize tunnel backend")
		err = apperrors.Init("failed to initialize tunnel backend", initErr)
		c.emitter.emitError(err, "Initialization failed")
		return err
	}

	c.transitionTo(LifecycleReady)
	c.emitter.emitSimple(EventInitialized, "", "Backend initialized")
	return nil
}

// Connect validates raw, builds a fresh descriptor and asks the backend to
// bring the tunnel up with it. An invalid configuration never reaches the
// backend. A backend failure leaves the cached lifecycle where it was.
func (c *Controller) Connect(ctx context.Context, raw config.RawConfig) (err error) {
	if !c.gate.TryLock() {
		return c.reject(OpConnect)
	}
	defer c.gate.Unlock()
	defer func() { c.opts.metrics.ObserveCall(OpConnect, err) }()

	cfg, verr := config.Validate(raw)
	if verr != nil {
		log.WithError(verr).Debug("connect rejected: invalid configuration")
		err = apperrors.Config(verr)
		c.emitter.emitError(err, "Invalid configuration")
		return err
	}

	c.mu.Lock()
	if c.lifecycle == LifecycleUninitialized {
		c.mu.Unlock()
		err = apperrors.Init("backend not initialized", nil)
		c.emitter.emitError(err, "Connect before initialize")
		return err
	}
	if c.handle.IsZero() {
		c.handle = backend.NewHandle(c.opts.tunnelName)
	}
	h := c.handle
	d := descriptor.Build(cfg)
	// Kept before the backend call so a failed connect can still be torn
	// down.
	c.desc = d
	c.mu.Unlock()

	log.WithField("tunnel", h.Name).WithField("descriptor", d.String()).Debug("bringing tunnel up")

	state, setErr := c.setState(ctx, h, backend.StateUp, d)
	if setErr == nil && state != backend.StateUp {
		setErr = fmt.Errorf("backend reported %s after UP", state)
	}
	if setErr != nil {
		log.WithField("tunnel", h.Name).WithError(setErr).Error("failed to bring tunnel up")
		err = apperrors.Backend("failed to bring tunnel up", setErr)
		c.emitter.emitError(err, "Connect failed")
		return err
	}

	c.transitionTo(LifecycleConnected)
	c.opts.metrics.SetTunnelUp(true)
	c.emitter.emitSimple(EventConnected, state, "Tunnel is up")
	log.WithField("tunnel", h.Name).Info("tunnel connected")
	return nil
}

// Disconnect asks the backend to take the tunnel down. It fails with a
// not-connected error when there is nothing to take down, which includes
// a second Disconnect after a successful one.
func (c *Controller) Disconnect(ctx context.Context) (err error) {
	if !c.gate.TryLock() {
		return c.reject(OpDisconnect)
	}
	defer c.gate.Unlock()
	defer func() { c.opts.metrics.ObserveCall(OpDisconnect, err) }()

	c.mu.RLock()
	h, d := c.handle, c.desc
	c.mu.RUnlock()

	if h.IsZero() || d == nil {
		log.Debug("disconnect rejected: no tunnel")
		return apperrors.NotConnected("tunnel not initialized")
	}

	state, setErr := c.setState(ctx, h, backend.StateDown, d)
	if setErr != nil {
		log.WithField("tunnel", h.Name).WithError(setErr).Error("failed to bring tunnel down")
		err = apperrors.Backend("failed to bring tunnel down", setErr)
		c.emitter.emitError(err, "Disconnect failed")
		return err
	}

	c.mu.Lock()
	c.desc = nil
	c.mu.Unlock()
	c.transitionTo(LifecycleDisconnected)
	c.opts.metrics.SetTunnelUp(false)
	c.emitter.emitSimple(EventDisconnected, state, "Tunnel is down")
	log.WithField("tunnel", h.Name).Info("tunnel disconnected")
	return nil
}

// Status reports the tunnel as the backend sees it. It never fails: a
// backend query error is reported as StatusError with its message.
func (c *Controller) Status(ctx context.Context) Status {
	c.mu.RLock()
	h := c.handle
	c.mu.RUnlock()

	if h.IsZero() {
		return Status{TunnelState: StatusInactive}
	}

	state, err := c.backend.State(ctx, h)
	if err != nil {
		log.WithField("tunnel", h.Name).WithError(err).Warn("tunnel state query failed")
		return errorStatus(err)
	}
	return statusFor(state)
}

// Lifecycle returns the cached lifecycle state.
func (c *Controller) Lifecycle() Lifecycle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lifecycle
}

// Handle returns the tunnel handle once the first connect has created it.
func (c *Controller) Handle() (backend.Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle, !c.handle.IsZero()
}

// Subscribe registers fn for every event. Callbacks run synchronously on
// the goroutine that produced the event and must not call back into the
// controller's lifecycle methods. The returned function unsubscribes.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.emitter.subscribe(fn)
}

// Events returns a channel that receives controller events.
// The channel is buffered and may drop events if not consumed.
// Close the controller to close this channel.
func (c *Controller) Events() <-chan Event {
	return c.emitter.channel()
}

// DroppedEventCount returns the total number of events dropped due to a
// full buffer.
func (c *Controller) DroppedEventCount() uint64 {
	return c.emitter.droppedEvents()
}

// Close closes the event channel and removes all subscribers. It does not
// touch the backend or the tunnel.
func (c *Controller) Close() error {
	c.emitter.close()
	return nil
}

func (c *Controller) setState(ctx context.Context, h backend.Handle, state backend.TunnelState, d *descriptor.Descriptor) (backend.TunnelState, error) {
	start := time.Now()
	got, err := c.backend.SetState(ctx, h, state, d)
	op := OpConnect
	if state == backend.StateDown {
		op = OpDisconnect
	}
	c.opts.metrics.ObserveBackend(op, time.Since(start))
	return got, err
}

func (c *Controller) reject(op string) error {
	err := apperrors.Busy(op)
	log.WithField("op", op).Warn("lifecycle call rejected: another call in flight")
	c.opts.metrics.ObserveCall(op, err)
	return err
}

// transitionTo changes the cached lifecycle state.
func (c *Controller) transitionTo(newState Lifecycle) {
	c.mu.Lock()
	oldState := c.lifecycle
	c.lifecycle = newState
	c.mu.Unlock()
	log.WithField("oldState", oldState).WithField("newState", newState).Debug("tunnel lifecycle transition")
}

func (c *Controller) onBackendState(h backend.Handle, state backend.TunnelState) {
	c.mu.RLock()
	ours := h.ID == c.handle.ID
	c.mu.RUnlock()
	if !ours {
		return
	}

	log.WithField("tunnel", h.Name).WithField("state", state).Debug("backend state changed")
	c.emitter.emit(Event{
		Type:    EventStateChanged,
		State:   state,
		Message: fmt.Sprintf("Backend reports %s", state),
	})
}
