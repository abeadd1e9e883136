// Package backend defines the contract between the tunnel controller and the
// component that actually runs WireGuard, and provides a userspace
// implementation built on wireguard-go and a gVisor netstack.
//
// A backend is a black box exposing two operations: set the state of a
// tunnel and report it. The handshake and the data plane are entirely its
// concern.
package backend

import (
	"context"
	"runtime"

	"github.com/google/uuid"

	"github.com/go-i2p/wgmobile/lib/descriptor"
)

// DefaultTunnelName is the name given to the tunnel when none is configured.
const DefaultTunnelName = "WireGuardTunnel"

// TunnelState is the backend's view of a tunnel.
type TunnelState string

const (
	StateUninitialized TunnelState = "UNINITIALIZED"
	StateDown          TunnelState = "DOWN"
	StateUp            TunnelState = "UP"
	StateError         TunnelState = "ERROR"
)

// String returns the string representation of the state.
func (s TunnelState) String() string {
	return string(s)
}

// Handle identifies one logical tunnel to the backend.
type Handle struct {
	ID   uuid.UUID
	Name string
}

// NewHandle returns a handle with a fresh random ID. An empty name is
// replaced by DefaultTunnelName.
func NewHandle(name string) Handle {
	if name == "" {
		name = DefaultTunnelName
	}
	return Handle{ID: uuid.New(), Name: name}
}

// IsZero reports whether h was never assigned.
func (h Handle) IsZero() bool {
	return h.ID == uuid.Nil
}

// String returns "name/id".
func (h Handle) String() string {
	return h.Name + "/" + h.ID.String()
}

// Backend drives tunnels. Implementations must be safe for concurrent use;
// the controller never issues two SetState calls at once but State may run
// alongside a SetState.
type Backend interface {
	// Init prepares the backend, including any platform permission grant.
	Init(ctx context.Context) error
	// SetState moves the tunnel to state (StateUp or StateDown) using d and
	// returns the state the backend ended in.
	SetState(ctx context.Context, h Handle, state TunnelState, d *descriptor.Descriptor) (TunnelState, error)
	// State reports the current state of the tunnel.
	State(ctx context.Context, h Handle) (TunnelState, error)
}

// StateObserver is called by a backend whenever a tunnel changes state.
type StateObserver func(h Handle, state TunnelState)

// Observable is implemented by backends that push state changes.
type Observable interface {
	SetStateObserver(fn StateObserver)
}

// PermissionFunc models the platform VPN permission prompt. Returning an
// error refuses the grant.
type PermissionFunc func(ctx context.Context) error

// Supported reports whether the userspace backend can run on this platform.
func Supported() bool {
	switch runtime.GOOS {
	case "linux", "android", "darwin", "ios", "windows", "freebsd", "openbsd":
		return true
	default:
		return false
	}
}
