package embedded

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-i2p/wgmobile/lib/backend"
	"github.com/go-i2p/wgmobile/lib/config"
	apperrors "github.com/go-i2p/wgmobile/lib/errors"
	"github.com/go-i2p/wgmobile/lib/tunnel"
)

// StateCallback receives backend state changes ("UP", "DOWN", ...).
type StateCallback interface {
	OnStateChanged(state string)
}

// Bridge is the call surface for mobile bindings. It wraps one
// tunnel.Controller and only speaks strings, booleans and errors.
type Bridge struct {
	cfg  Config
	ctrl *tunnel.Controller

	// owned is the backend the Bridge created itself and must close.
	owned *backend.Netstack

	mu          sync.Mutex
	unsubscribe func()
}

// New creates a Bridge. Nothing touches the backend until Initialize.
func New(cfg Config) *Bridge {
	cfg.applyDefaults()

	b := &Bridge{cfg: cfg}
	be := cfg.Backend
	if be == nil {
		b.owned = backend.NewNetstack(backend.NetstackConfig{
			MTU:        cfg.MTU,
			Permission: cfg.Permission,
		})
		be = b.owned
	}

	b.ctrl = tunnel.New(be,
		tunnel.WithTunnelName(cfg.TunnelName),
		tunnel.WithMetrics(cfg.Metrics),
		tunnel.WithEventBufferSize(cfg.EventBufferSize),
	)

	log.WithField("tunnel", cfg.TunnelName).Debug("bridge created")
	return b
}

// NewWithOptions creates a Bridge with functional options.
func NewWithOptions(opts ...Option) *Bridge {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

// Initialize prepares the backend. Failures carry CodeInit.
func (b *Bridge) Initialize() error {
	ctx, cancel := b.callContext()
	defer cancel()
	return reject(CodeInit, b.ctrl.Initialize(ctx))
}

// Connect brings the tunnel up from a JSON configuration object. Every
// failure, whether bad input or a backend error, carries CodeConnect.
func (b *Bridge) Connect(configJSON string) error {
	raw, err := config.FromJSON([]byte(configJSON))
	if err != nil {
		return reject(CodeConnect, apperrors.Config(err))
	}
	return b.connect(raw)
}

// ConnectMap brings the tunnel up from an untyped key/value payload.
func (b *Bridge) ConnectMap(m map[string]any) error {
	raw, err := config.FromMap(m)
	if err != nil {
		return reject(CodeConnect, apperrors.Config(err))
	}
	return b.connect(raw)
}

func (b *Bridge) connect(raw config.RawConfig) error {
	ctx, cancel := b.callContext()
	defer cancel()
	return reject(CodeConnect, b.ctrl.Connect(ctx, raw))
}

// Disconnect takes the tunnel down. Failures carry CodeDisconnect.
func (b *Bridge) Disconnect() error {
	ctx, cancel := b.callContext()
	defer cancel()
	return reject(CodeDisconnect, b.ctrl.Disconnect(ctx))
}

// Status returns the tunnel status. It never fails.
func (b *Bridge) Status() tunnel.Status {
	ctx, cancel := b.callContext()
	defer cancel()
	return b.ctrl.Status(ctx)
}

// GetStatus returns Status as a JSON object with the fields isConnected,
// tunnelState and, on a failed query, error.
func (b *Bridge) GetStatus() string {
	data, err := json.Marshal(b.Status())
	if err != nil {
		// Status only holds a bool and two strings.
		return `{"isConnected":false,"tunnelState":"ERROR","error":"status encoding failed"}`
	}
	return string(data)
}

// IsSupported reports whether the tunnel backend can run on this platform.
func (b *Bridge) IsSupported() bool {
	return backend.Supported()
}

// SetStateCallback registers cb for backend state changes, replacing any
// previous callback. A nil cb removes it.
func (b *Bridge) SetStateCallback(cb StateCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	if cb == nil {
		return
	}

	b.unsubscribe = b.ctrl.Subscribe(func(ev tunnel.Event) {
		if ev.Type != tunnel.EventStateChanged {
			return
		}
		cb.OnStateChanged(ev.State.String())
	})
}

// Controller returns the underlying controller.
func (b *Bridge) Controller() *tunnel.Controller {
	return b.ctrl
}

// Close releases the Bridge. Tunnels on a backend the Bridge created are
// torn down; a caller-supplied backend is left alone.
func (b *Bridge) Close() error {
	b.SetStateCallback(nil)
	err := b.ctrl.Close()
	if b.owned != nil {
		if cerr := b.owned.Close(); err == nil {
			err = cerr
		}
	}
	log.Debug("bridge closed")
	return err
}

func (b *Bridge) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.cfg.CallTimeout)
}
