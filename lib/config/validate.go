package config

import (
	"errors"
	"net/netip"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	apperrors "github.com/go-i2p/wgmobile/lib/errors"
	"github.com/go-i2p/wgmobile/lib/validation"
)

// ValidatedConfig is a RawConfig that passed Validate. It is never mutated
// after construction; accessors hand out copies.
type ValidatedConfig struct {
	privateKey   wgtypes.Key
	publicKey    wgtypes.Key
	presharedKey *wgtypes.Key
	host         string
	port         uint16
	allowedIPs   []netip.Prefix
	dns          []netip.Addr
	mtu          int
	keepalive    int
}

// PrivateKey returns the interface private key.
func (c *ValidatedConfig) PrivateKey() wgtypes.Key { return c.privateKey }

// PublicKey returns the server's public key.
func (c *ValidatedConfig) PublicKey() wgtypes.Key { return c.publicKey }

// PresharedKey returns the optional preshared key.
func (c *ValidatedConfig) PresharedKey() (wgtypes.Key, bool) {
	if c.presharedKey == nil {
		return wgtypes.Key{}, false
	}
	return *c.presharedKey, true
}

// ServerHost returns the server address without brackets.
func (c *ValidatedConfig) ServerHost() string { return c.host }

// ServerPort returns the server UDP port.
func (c *ValidatedConfig) ServerPort() uint16 { return c.port }

// AllowedIPs returns the de-duplicated prefixes as given, host bits included.
func (c *ValidatedConfig) AllowedIPs() []netip.Prefix {
	return append([]netip.Prefix(nil), c.allowedIPs...)
}

// DNS returns the configured DNS servers.
func (c *ValidatedConfig) DNS() []netip.Addr {
	return append([]netip.Addr(nil), c.dns...)
}

// MTU returns the MTU, or 0 to let the backend choose.
func (c *ValidatedConfig) MTU() int { return c.mtu }

// PersistentKeepalive returns the keepalive interval in seconds (0 = off).
func (c *ValidatedConfig) PersistentKeepalive() int { return c.keepalive }

// Validate checks raw and returns the first problem found as a
// *errors.ConfigError. Missing required fields are reported before any
// format problem.
func Validate(raw RawConfig) (*ValidatedConfig, error) {
	cfg, errs := ValidateAll(raw)
	if errs.HasErrors() {
		return nil, errs.First()
	}
	return cfg, nil
}

// ValidateAll checks every field and returns all problems, in field order.
// The config is nil whenever errs is non-empty.
func ValidateAll(raw RawConfig) (*ValidatedConfig, validation.Errors) {
	var errs validation.Errors

	// Presence first, so a payload missing several fields reports the
	// missing ones ahead of any format complaints.
	errs.Add(toConfigError(validation.Required(FieldPrivateKey, raw.PrivateKey)))
	errs.Add(toConfigError(validation.Required(FieldPublicKey, raw.PublicKey)))
	errs.Add(toConfigError(validation.Required(FieldServerAddress, raw.ServerAddress)))
	if raw.ServerPort == nil {
		errs.Add(apperrors.MissingField(FieldServerPort))
	}
	errs.Add(toConfigError(validation.RequiredList(FieldAllowedIPs, raw.AllowedIPs)))
	missing := len(errs)

	cfg := &ValidatedConfig{}
	var err error

	if strings.TrimSpace(raw.PrivateKey) != "" {
		cfg.privateKey, err = validation.WireGuardKey(FieldPrivateKey, raw.PrivateKey)
		errs.Add(toConfigError(err))
	}
	if strings.TrimSpace(raw.PublicKey) != "" {
		cfg.publicKey, err = validation.WireGuardKey(FieldPublicKey, raw.PublicKey)
		errs.Add(toConfigError(err))
	}
	if raw.ServerPort != nil {
		if err := validation.Port(FieldServerPort, *raw.ServerPort); err != nil {
			errs.Add(toConfigError(err))
		} else {
			cfg.port = uint16(*raw.ServerPort)
		}
	}
	if strings.TrimSpace(raw.ServerAddress) != "" {
		if err := validation.Host(FieldServerAddress, raw.ServerAddress); err != nil {
			errs.Add(toConfigError(err))
		} else {
			cfg.host = strings.Trim(strings.TrimSpace(raw.ServerAddress), "[]")
		}
	}

	cfg.allowedIPs = collectPrefixes(raw.AllowedIPs, &errs)
	cfg.dns = collectAddrs(raw.DNS, &errs)

	if raw.MTU != nil {
		if err := validation.MTU(FieldMTU, *raw.MTU); err != nil {
			errs.Add(toConfigError(err))
		} else {
			cfg.mtu = *raw.MTU
		}
	}
	if strings.TrimSpace(raw.PresharedKey) != "" {
		psk, err := validation.WireGuardKey(FieldPresharedKey, raw.PresharedKey)
		if err != nil {
			errs.Add(toConfigError(err))
		} else {
			cfg.presharedKey = &psk
		}
	}
	if raw.PersistentKeepalive != nil {
		if err := validation.Keepalive(FieldPersistentKeepalive, *raw.PersistentKeepalive); err != nil {
			errs.Add(toConfigError(err))
		} else {
			cfg.keepalive = *raw.PersistentKeepalive
		}
	}

	if errs.HasErrors() {
		log.WithField("errors", len(errs)).WithField("missing", missing).Debug("tunnel config rejected")
		return nil, errs
	}
	return cfg, nil
}

func collectPrefixes(values []string, errs *validation.Errors) []netip.Prefix {
	seen := make(map[netip.Prefix]bool, len(values))
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		p, err := validation.Prefix(FieldAllowedIPs, v)
		if err != nil {
			errs.Add(toConfigError(err))
			continue
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func collectAddrs(values []string, errs *validation.Errors) []netip.Addr {
	out := make([]netip.Addr, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		addr, err := validation.IP(FieldDNS, v)
		if err != nil {
			errs.Add(toConfigError(err))
			continue
		}
		out = append(out, addr)
	}
	return out
}

// toConfigError maps a validation.Result onto the caller-visible taxonomy.
func toConfigError(err error) error {
	if err == nil {
		return nil
	}

	var r *validation.Result
	if !errors.As(err, &r) {
		return apperrors.InvalidType("config", err.Error())
	}

	switch {
	case errors.Is(err, validation.ErrRequired):
		return apperrors.MissingField(r.Field)
	case errors.Is(err, validation.ErrInvalidKey):
		return apperrors.InvalidKey(r.Field, r.Message)
	case errors.Is(err, validation.ErrOutOfRange):
		ce := apperrors.OutOfRange(r.Field, 0, r.Min, r.Max)
		ce.Value = r.Value
		return ce
	default:
		return apperrors.InvalidAddress(r.Field, r.Value)
	}
}
