package embedded

import (
	"time"

	"github.com/go-i2p/wgmobile/lib/backend"
	"github.com/go-i2p/wgmobile/lib/metrics"
)

// Config configures a Bridge.
type Config struct {
	// TunnelName is the name the backend sees (default: "WireGuardTunnel").
	TunnelName string

	// Backend runs the tunnel. If nil, a userspace netstack backend is
	// created and owned by the Bridge.
	Backend backend.Backend

	// Permission is handed to the default backend and models the platform
	// VPN permission grant. Ignored when Backend is set.
	Permission backend.PermissionFunc

	// MTU is the default backend's MTU for tunnels without one.
	// Ignored when Backend is set.
	MTU int

	// Metrics receives lifecycle metrics. Optional.
	Metrics *metrics.Metrics

	// CallTimeout bounds each bridge call (default: 30s).
	CallTimeout time.Duration

	// EventBufferSize is the size of the controller's event channel buffer.
	EventBufferSize int
}

// Option is a functional option for configuring a Bridge.
type Option func(*Config)

// WithTunnelName sets the tunnel name.
func WithTunnelName(name string) Option {
	return func(c *Config) {
		c.TunnelName = name
	}
}

// WithBackend sets the backend.
func WithBackend(b backend.Backend) Option {
	return func(c *Config) {
		c.Backend = b
	}
}

// WithPermission sets the permission hook of the default backend.
func WithPermission(fn backend.PermissionFunc) Option {
	return func(c *Config) {
		c.Permission = fn
	}
}

// WithMetrics enables lifecycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithCallTimeout sets the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CallTimeout = d
	}
}

// WithEventBufferSize sets the event channel buffer size.
func WithEventBufferSize(size int) Option {
	return func(c *Config) {
		c.EventBufferSize = size
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TunnelName:      backend.DefaultTunnelName,
		CallTimeout:     30 * time.Second,
		EventBufferSize: 100,
	}
}

// applyDefaults fills in zero values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.TunnelName == "" {
		c.TunnelName = defaults.TunnelName
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaults.CallTimeout
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = defaults.EventBufferSize
	}
}
