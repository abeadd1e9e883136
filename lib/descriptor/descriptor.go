// Package descriptor assembles a validated tunnel configuration into the
// single-peer interface definition handed to a tunnel backend.
package descriptor

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/go-i2p/wgmobile/lib/config"
)

// Interface is the local side of the tunnel.
type Interface struct {
	PrivateKey wgtypes.Key
	// Addresses are the local tunnel addresses. They equal the peer's
	// allowed IPs: the single peer routes everything it is given.
	Addresses []netip.Prefix
	DNS       []netip.Addr
	// MTU is 0 when the backend should pick its default.
	MTU int
}

// Peer is the remote server.
type Peer struct {
	PublicKey    wgtypes.Key
	PresharedKey *wgtypes.Key
	// Endpoint is "host:port" with IPv6 hosts bracketed. The host may be a
	// name that the backend resolves.
	Endpoint            string
	AllowedIPs          []netip.Prefix
	PersistentKeepalive int
}

// Descriptor is an interface paired with exactly one peer. Treat it as
// immutable once built; use Clone or WithEndpoint to derive variants.
type Descriptor struct {
	Interface Interface
	Peer      Peer
}

// Build turns cfg into a Descriptor. It cannot fail for a ValidatedConfig.
func Build(cfg *config.ValidatedConfig) *Descriptor {
	d := &Descriptor{
		Interface: Interface{
			PrivateKey: cfg.PrivateKey(),
			Addresses:  cfg.AllowedIPs(),
			DNS:        cfg.DNS(),
			MTU:        cfg.MTU(),
		},
		Peer: Peer{
			PublicKey:           cfg.PublicKey(),
			Endpoint:            net.JoinHostPort(cfg.ServerHost(), strconv.Itoa(int(cfg.ServerPort()))),
			AllowedIPs:          cfg.AllowedIPs(),
			PersistentKeepalive: cfg.PersistentKeepalive(),
		},
	}
	if psk, ok := cfg.PresharedKey(); ok {
		d.Peer.PresharedKey = &psk
	}

	log.WithField("endpoint", d.Peer.Endpoint).
		WithField("peer", shortKey(d.Peer.PublicKey)).
		WithField("allowed_ips", len(d.Peer.AllowedIPs)).
		Debug("built tunnel descriptor")

	return d
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Interface.Addresses = append([]netip.Prefix(nil), d.Interface.Addresses...)
	c.Interface.DNS = append([]netip.Addr(nil), d.Interface.DNS...)
	c.Peer.AllowedIPs = append([]netip.Prefix(nil), d.Peer.AllowedIPs...)
	if d.Peer.PresharedKey != nil {
		psk := *d.Peer.PresharedKey
		c.Peer.PresharedKey = &psk
	}
	return &c
}

// WithEndpoint returns a copy with the peer endpoint replaced, typically by
// its resolved "ip:port" form.
func (d *Descriptor) WithEndpoint(endpoint string) *Descriptor {
	c := d.Clone()
	c.Peer.Endpoint = endpoint
	return c
}

// LocalAddrs returns the host address of each interface prefix.
func (d *Descriptor) LocalAddrs() []netip.Addr {
	addrs := make([]netip.Addr, 0, len(d.Interface.Addresses))
	for _, p := range d.Interface.Addresses {
		addrs = append(addrs, p.Addr())
	}
	return addrs
}

// UAPI renders the descriptor in the wireguard-go IPC set format. Keys are
// hex encoded. The peer endpoint is written verbatim, so it must already be
// an "ip:port" pair when handed to a device.
func (d *Descriptor) UAPI() string {
	var b strings.Builder
	fmt.Fprintf(&b, "private_key=%s\n", hexKey(d.Interface.PrivateKey))
	b.WriteString("replace_peers=true\n")

	fmt.Fprintf(&b, "public_key=%s\n", hexKey(d.Peer.PublicKey))
	if d.Peer.PresharedKey != nil {
		fmt.Fprintf(&b, "preshared_key=%s\n", hexKey(*d.Peer.PresharedKey))
	}
	fmt.Fprintf(&b, "endpoint=%s\n", d.Peer.Endpoint)
	if d.Peer.PersistentKeepalive > 0 {
		fmt.Fprintf(&b, "persistent_keepalive_interval=%d\n", d.Peer.PersistentKeepalive)
	}
	b.WriteString("replace_allowed_ips=true\n")
	for _, p := range d.Peer.AllowedIPs {
		fmt.Fprintf(&b, "allowed_ip=%s\n", p)
	}
	return b.String()
}

// WGQuick renders the descriptor as a wg-quick configuration file with
// base64 keys. The output contains the private key.
func (d *Descriptor) WGQuick() string {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", d.Interface.PrivateKey)
	fmt.Fprintf(&b, "Address = %s\n", joinPrefixes(d.Interface.Addresses))
	if len(d.Interface.DNS) > 0 {
		dns := make([]string, len(d.Interface.DNS))
		for i, a := range d.Interface.DNS {
			dns[i] = a.String()
		}
		fmt.Fprintf(&b, "DNS = %s\n", strings.Join(dns, ", "))
	}
	if d.Interface.MTU > 0 {
		fmt.Fprintf(&b, "MTU = %d\n", d.Interface.MTU)
	}

	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", d.Peer.PublicKey)
	if d.Peer.PresharedKey != nil {
		fmt.Fprintf(&b, "PresharedKey = %s\n", *d.Peer.PresharedKey)
	}
	fmt.Fprintf(&b, "Endpoint = %s\n", d.Peer.Endpoint)
	fmt.Fprintf(&b, "AllowedIPs = %s\n", joinPrefixes(d.Peer.AllowedIPs))
	if d.Peer.PersistentKeepalive > 0 {
		fmt.Fprintf(&b, "PersistentKeepalive = %d\n", d.Peer.PersistentKeepalive)
	}
	return b.String()
}

// String is safe to log: private and preshared keys are omitted and the
// peer key is truncated.
func (d *Descriptor) String() string {
	return fmt.Sprintf("descriptor{peer=%s endpoint=%s allowed_ips=[%s] mtu=%d}",
		shortKey(d.Peer.PublicKey), d.Peer.Endpoint, joinPrefixes(d.Peer.AllowedIPs), d.Interface.MTU)
}

func joinPrefixes(ps []netip.Prefix) string {
	s := make([]string, len(ps))
	for i, p := range ps {
		s[i] = p.String()
	}
	return strings.Join(s, ", ")
}

// hexKey converts a WireGuard key to hex format for IPC.
func hexKey(key wgtypes.Key) string {
	return fmt.Sprintf("%x", key[:])
}

func shortKey(key wgtypes.Key) string {
	return key.String()[:8] + "..."
}
