package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun/netstack"

	"github.com/go-i2p/wgmobile/lib/descriptor"
	apperrors "github.com/go-i2p/wgmobile/lib/errors"
)

// DefaultMTU is used when the descriptor leaves the MTU unset.
const DefaultMTU = 1420

// NetstackConfig configures the userspace backend.
type NetstackConfig struct {
	// MTU overrides DefaultMTU for descriptors without an MTU.
	MTU int
	// NewBind returns the network binding for each new device.
	// If nil, defaults to conn.NewDefaultBind for standard UDP.
	NewBind func() conn.Bind
	// Permission is consulted once by Init. Nil grants permission.
	Permission PermissionFunc
	// Resolver looks up hostname endpoints. Nil uses net.DefaultResolver.
	Resolver *net.Resolver
	// Verbose enables wireguard-go's own logging.
	Verbose bool
}

// Netstack runs tunnels with wireguard-go on top of a gVisor network stack,
// so no kernel interface or privileges are needed. Traffic enters the
// tunnel through the *netstack.Net returned by Net.
type Netstack struct {
	mu          sync.Mutex
	cfg         NetstackConfig
	initialized bool
	tunnels     map[uuid.UUID]*netTunnel
	observer    StateObserver
}

type netTunnel struct {
	handle Handle
	dev    *device.Device
	net    *netstack.Net
}

// NewNetstack creates a userspace backend. It does nothing until Init.
func NewNetstack(cfg NetstackConfig) *Netstack {
	normalizeNetstackConfig(&cfg)
	return &Netstack{
		cfg:     cfg,
		tunnels: make(map[uuid.UUID]*netTunnel),
	}
}

// normalizeNetstackConfig sets default values for missing configuration.
func normalizeNetstackConfig(cfg *NetstackConfig) {
	if cfg.MTU <= 0 {
		cfg.MTU = DefaultMTU
	}
	if cfg.NewBind == nil {
		cfg.NewBind = conn.NewDefaultBind
	}
	if cfg.Resolver == nil {
		cfg.Resolver = net.DefaultResolver
	}
}

// SetStateObserver registers fn to receive state changes.
func (n *Netstack) SetStateObserver(fn StateObserver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observer = fn
}

// Init asks for permission once. Calling it again after success is a no-op.
func (n *Netstack) Init(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.initialized {
		return nil
	}
	if n.cfg.Permission != nil {
		if err := n.cfg.Permission(ctx); err != nil {
			log.WithError(err).Warn("VPN permission refused")
			return fmt.Errorf("%w: %w", apperrors.ErrPermissionDenied, err)
		}
	}
	n.initialized = true

	log.WithField("mtu", n.cfg.MTU).Debug("netstack backend initialized")
	return nil
}

// SetState brings the tunnel for h up with d, or tears it down. UP on a
// tunnel that is already running rebuilds it with the new descriptor. DOWN
// on a tunnel that does not exist succeeds.
func (n *Netstack) SetState(ctx context.Context, h Handle, state TunnelState, d *descriptor.Descriptor) (TunnelState, error) {
	switch state {
	case StateUp:
		return n.up(ctx, h, d)
	case StateDown:
		return n.down(h)
	default:
		return StateError, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedState, state)
	}
}

func (n *Netstack) up(ctx context.Context, h Handle, d *descriptor.Descriptor) (TunnelState, error) {
	if d == nil {
		return StateError, errors.New("backend: no descriptor")
	}

	n.mu.Lock()
	if !n.initialized {
		n.mu.Unlock()
		return StateUninitialized, apperrors.ErrBackendNotInitialized
	}
	n.mu.Unlock()

	// Resolution may block, so it happens before taking the lock.
	resolved, err := n.resolveEndpoint(ctx, d)
	if err != nil {
		return StateError, err
	}

	n.mu.Lock()
	if old, ok := n.tunnels[h.ID]; ok {
		old.dev.Close()
		delete(n.tunnels, h.ID)
		log.WithField("tunnel", h.Name).Debug("replacing running tunnel")
	}

	t, err := n.createTunnel(h, resolved)
	if err != nil {
		n.mu.Unlock()
		n.notify(h, StateDown)
		return StateError, err
	}
	n.tunnels[h.ID] = t
	n.mu.Unlock()

	log.WithField("tunnel", h.Name).WithField("endpoint", resolved.Peer.Endpoint).Info("tunnel up")
	n.notify(h, StateUp)
	return StateUp, nil
}

func (n *Netstack) down(h Handle) (TunnelState, error) {
	n.mu.Lock()
	if !n.initialized {
		n.mu.Unlock()
		return StateUninitialized, apperrors.ErrBackendNotInitialized
	}
	t, ok := n.tunnels[h.ID]
	if ok {
		t.dev.Close()
		delete(n.tunnels, h.ID)
	}
	n.mu.Unlock()

	if ok {
		log.WithField("tunnel", h.Name).Info("tunnel down")
	}
	n.notify(h, StateDown)
	return StateDown, nil
}

// createTunnel must be called with n.mu held.
func (n *Netstack) createTunnel(h Handle, d *descriptor.Descriptor) (*netTunnel, error) {
	mtu := d.Interface.MTU
	if mtu <= 0 {
		mtu = n.cfg.MTU
	}

	tunDev, tnet, err := netstack.CreateNetTUN(d.LocalAddrs(), d.Interface.DNS, mtu)
	if err != nil {
		return nil, fmt.Errorf("creating netstack TUN: %w", err)
	}

	level := device.LogLevelSilent
	if n.cfg.Verbose {
		level = device.LogLevelVerbose
	}
	dev := device.NewDevice(tunDev, n.cfg.NewBind(), device.NewLogger(level, fmt.Sprintf("(%s) ", h.Name)))

	if err := dev.IpcSet(d.UAPI()); err != nil {
		dev.Close()
		return nil, fmt.Errorf("configuring device: %w", err)
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("bringing up device: %w", err)
	}

	return &netTunnel{handle: h, dev: dev, net: tnet}, nil
}

// resolveEndpoint returns d unchanged when its endpoint is already an
// address literal, otherwise a copy carrying the first resolved address.
func (n *Netstack) resolveEndpoint(ctx context.Context, d *descriptor.Descriptor) (*descriptor.Descriptor, error) {
	host, portStr, err := net.SplitHostPort(d.Peer.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return d, nil
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint port: %w", err)
	}

	addrs, err := n.cfg.Resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolving endpoint %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolving endpoint %s: no addresses", host)
	}

	ap := netip.AddrPortFrom(addrs[0].Unmap(), uint16(port))
	log.WithField("host", host).WithField("addr", ap).Debug("resolved endpoint")
	return d.WithEndpoint(ap.String()), nil
}

// State reports StateUp for a running tunnel and StateDown otherwise.
func (n *Netstack) State(_ context.Context, h Handle) (TunnelState, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialized {
		return StateUninitialized, nil
	}
	if _, ok := n.tunnels[h.ID]; ok {
		return StateUp, nil
	}
	return StateDown, nil
}

// Net returns the netstack network for making connections through the
// tunnel for h.
func (n *Netstack) Net(h Handle) (*netstack.Net, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.tunnels[h.ID]
	if !ok {
		return nil, false
	}
	return t.net, true
}

// Close shuts every tunnel down.
func (n *Netstack) Close() error {
	n.mu.Lock()
	closed := make([]Handle, 0, len(n.tunnels))
	for id, t := range n.tunnels {
		t.dev.Close()
		delete(n.tunnels, id)
		closed = append(closed, t.handle)
	}
	n.mu.Unlock()

	for _, h := range closed {
		n.notify(h, StateDown)
	}
	if len(closed) > 0 {
		log.WithField("tunnels", len(closed)).Info("closed netstack backend")
	}
	return nil
}

func (n *Netstack) notify(h Handle, state TunnelState) {
	n.mu.Lock()
	fn := n.observer
	n.mu.Unlock()

	if fn != nil {
		fn(h, state)
	}
}
