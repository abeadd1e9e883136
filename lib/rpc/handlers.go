package rpc

import (
	"context"
	"encoding/json"

	"golang.org/x/time/rate"

	"github.com/go-i2p/wgmobile/lib/backend"
	"github.com/go-i2p/wgmobile/lib/config"
	apperrors "github.com/go-i2p/wgmobile/lib/errors"
	"github.com/go-i2p/wgmobile/lib/metrics"
	"github.com/go-i2p/wgmobile/lib/tunnel"
	"github.com/go-i2p/wgmobile/version"
)

// Lifecycle throttle defaults: a burst of 5 calls refilled at 2 per second.
const (
	DefaultLifecycleRate  = rate.Limit(2)
	DefaultLifecycleBurst = 5
)

// Tunnel is the controller surface the handlers drive. *tunnel.Controller
// implements it.
type Tunnel interface {
	Initialize(ctx context.Context) error
	Connect(ctx context.Context, raw config.RawConfig) error
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) tunnel.Status
}

// HandlersConfig configures the RPC handlers.
type HandlersConfig struct {
	Tunnel Tunnel
	// Supported reports platform support (default backend.Supported).
	Supported func() bool
	// Metrics records throttled calls. May be nil.
	Metrics *metrics.Metrics
	// Limiter throttles lifecycle methods. Nil uses the defaults above.
	Limiter *rate.Limiter
}

// Handlers serves the tunnel methods.
type Handlers struct {
	tunnel    Tunnel
	supported func() bool
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
}

// NewHandlers creates RPC handlers.
func NewHandlers(cfg HandlersConfig) *Handlers {
	h := &Handlers{
		tunnel:    cfg.Tunnel,
		supported: cfg.Supported,
		metrics:   cfg.Metrics,
		limiter:   cfg.Limiter,
	}
	if h.supported == nil {
		h.supported = backend.Supported
	}
	if h.limiter == nil {
		h.limiter = rate.NewLimiter(DefaultLifecycleRate, DefaultLifecycleBurst)
	}
	return h
}

// RegisterAll registers all handlers with the server.
func (h *Handlers) RegisterAll(s *Server) {
	s.RegisterHandler(MethodInitialize, h.throttled(MethodInitialize, h.Initialize))
	s.RegisterHandler(MethodConnect, h.throttled(MethodConnect, h.Connect))
	s.RegisterHandler(MethodDisconnect, h.throttled(MethodDisconnect, h.Disconnect))
	s.RegisterHandler(MethodStatus, h.Status)
	s.RegisterHandler(MethodSupported, h.Supported)
	s.RegisterHandler(MethodVersion, h.Version)
}

// throttled rejects calls once the lifecycle budget is spent. The budget
// is shared by all lifecycle methods.
func (h *Handlers) throttled(method string, next Handler) Handler {
	return func(ctx context.Context, params json.RawMessage) (any, *Error) {
		if !h.limiter.Allow() {
			h.metrics.RateLimitedCall(method)
			log.WithField("method", method).Warn("lifecycle call throttled")
			return nil, ErrRateLimited(method)
		}
		return next(ctx, params)
	}
}

// Initialize prepares the tunnel backend.
func (h *Handlers) Initialize(ctx context.Context, _ json.RawMessage) (any, *Error) {
	if h.tunnel == nil {
		return nil, ErrInternal("tunnel not available")
	}
	if err := h.tunnel.Initialize(ctx); err != nil {
		return nil, FromTunnelError(err)
	}
	return OKResult{OK: true}, nil
}

// Connect brings the tunnel up. Params are the tunnel configuration object.
func (h *Handlers) Connect(ctx context.Context, params json.RawMessage) (any, *Error) {
	if h.tunnel == nil {
		return nil, ErrInternal("tunnel not available")
	}
	if len(params) == 0 {
		return nil, ErrInvalidParams("tunnel configuration required")
	}

	raw, err := config.FromJSON(params)
	if err != nil {
		return nil, FromTunnelError(apperrors.Config(err))
	}
	if err := h.tunnel.Connect(ctx, raw); err != nil {
		return nil, FromTunnelError(err)
	}
	return OKResult{OK: true}, nil
}

// Disconnect takes the tunnel down.
func (h *Handlers) Disconnect(ctx context.Context, _ json.RawMessage) (any, *Error) {
	if h.tunnel == nil {
		return nil, ErrInternal("tunnel not available")
	}
	if err := h.tunnel.Disconnect(ctx); err != nil {
		return nil, FromTunnelError(err)
	}
	return OKResult{OK: true}, nil
}

// Status returns the tunnel status. It never fails once a tunnel is wired.
func (h *Handlers) Status(ctx context.Context, _ json.RawMessage) (any, *Error) {
	if h.tunnel == nil {
		return nil, ErrInternal("tunnel not available")
	}
	return h.tunnel.Status(ctx), nil
}

// Supported reports whether the backend can run here.
func (h *Handlers) Supported(context.Context, json.RawMessage) (any, *Error) {
	return SupportedResult{Supported: h.supported()}, nil
}

// Version returns the daemon and protocol versions.
func (h *Handlers) Version(context.Context, json.RawMessage) (any, *Error) {
	return VersionResult{Info: version.Get(), Protocol: ProtocolVersion}, nil
}
