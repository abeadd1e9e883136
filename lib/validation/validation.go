// Package validation provides reusable input validation functions for tunnel
// configuration fields. All validators follow a consistent pattern: they return
// nil (or the parsed value) on success and a *Result on failure. Results never
// carry secret values, so they are safe to log and to return to clients.
package validation

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Common validation errors. These are sentinel errors that can be checked with errors.Is().
var (
	// ErrRequired indicates a required field is missing or empty.
	ErrRequired = errors.New("field is required")

	// ErrInvalidFormat indicates a value doesn't match the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrOutOfRange indicates a numeric value is outside the allowed range.
	ErrOutOfRange = errors.New("value out of range")

	// ErrInvalidKey indicates malformed WireGuard key material.
	ErrInvalidKey = errors.New("invalid key")
)

// Constraints for tunnel fields.
const (
	MinPort = 1
	MaxPort = 65535

	// MinMTU is the IPv6 minimum link MTU.
	MinMTU = 1280
	MaxMTU = 65535

	MinKeepalive = 0
	MaxKeepalive = 65535

	// MaxHostnameLength is the DNS limit for a fully qualified name.
	MaxHostnameLength = 253
)

// KeyFormatDetail is the fixed explanation attached to key errors.
const KeyFormatDetail = "must be 32 bytes, base64 encoded"

var (
	// hostnameLabel matches a single RFC 1123 label.
	hostnameLabel = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

	// numericLabel matches an all-digit label. A top-level label may not be
	// one (RFC 3696 section 2), which keeps malformed dotted quads out.
	numericLabel = regexp.MustCompile(`^[0-9]+$`)
)

// Result represents a validation result with field context.
type Result struct {
	Field   string
	Message string
	// Value is the offending input; empty for secret fields.
	Value string
	// Min and Max are set for range failures.
	Min, Max int
	Err      error
}

// Error implements the error interface.
func (r *Result) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s: %s", r.Field, r.Message)
	}
	return r.Message
}

// Unwrap returns the underlying error for errors.Is() support.
func (r *Result) Unwrap() error {
	return r.Err
}

// NewResult creates a validation result.
func NewResult(field, message string, err error) *Result {
	return &Result{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Required validates that a string is non-empty.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return nil
}

// RequiredList validates that a list has at least one non-blank entry.
func RequiredList(field string, values []string) error {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return nil
		}
	}
	return NewResult(field, "requires at least one entry", ErrRequired)
}

// IntRange validates that an integer is within the given range (inclusive).
func IntRange(field string, value, min, max int) error {
	if value < min || value > max {
		r := NewResult(field, fmt.Sprintf("must be between %d and %d", min, max), ErrOutOfRange)
		r.Value = fmt.Sprintf("%d", value)
		r.Min, r.Max = min, max
		return r
	}
	return nil
}

// Port validates a network port number.
func Port(field string, value int) error {
	return IntRange(field, value, MinPort, MaxPort)
}

// MTU validates a tunnel MTU.
func MTU(field string, value int) error {
	return IntRange(field, value, MinMTU, MaxMTU)
}

// Keepalive validates a persistent keepalive interval in seconds.
func Keepalive(field string, value int) error {
	return IntRange(field, value, MinKeepalive, MaxKeepalive)
}

// WireGuardKey parses a base64 Curve25519 key. The error never includes the
// input, which may be a private key.
func WireGuardKey(field, value string) (wgtypes.Key, error) {
	key, err := wgtypes.ParseKey(strings.TrimSpace(value))
	if err != nil {
		return wgtypes.Key{}, NewResult(field, KeyFormatDetail, ErrInvalidKey)
	}
	return key, nil
}

// IP parses an IPv4 or IPv6 address literal.
func IP(field, value string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		return netip.Addr{}, invalidFormat(field, value, "must be an IP address")
	}
	return addr.Unmap(), nil
}

// Prefix parses CIDR notation. A bare address is accepted as a single-host
// prefix. Host bits are kept: the address doubles as the interface address.
func Prefix(field, value string) (netip.Prefix, error) {
	value = strings.TrimSpace(value)
	if !strings.Contains(value, "/") {
		addr, err := netip.ParseAddr(value)
		if err != nil {
			return netip.Prefix{}, invalidFormat(field, value, "must be valid CIDR notation (e.g., 10.0.0.0/8)")
		}
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}

	p, err := netip.ParsePrefix(value)
	if err != nil {
		return netip.Prefix{}, invalidFormat(field, value, "must be valid CIDR notation (e.g., 10.0.0.0/8)")
	}
	return p, nil
}

// Host validates an IP literal or an RFC 1123 hostname.
func Host(field, value string) error {
	value = strings.TrimSpace(value)
	if err := Required(field, value); err != nil {
		return err
	}

	if _, err := netip.ParseAddr(strings.Trim(value, "[]")); err == nil {
		return nil
	}

	name := strings.TrimSuffix(value, ".")
	if len(name) == 0 || len(name) > MaxHostnameLength {
		return invalidFormat(field, value, "must be an IP address or hostname")
	}
	labels := strings.Split(name, ".")
	for _, label := range labels {
		if !hostnameLabel.MatchString(label) {
			return invalidFormat(field, value, "must be an IP address or hostname")
		}
	}
	if numericLabel.MatchString(labels[len(labels)-1]) {
		return invalidFormat(field, value, "must be an IP address or hostname")
	}
	return nil
}

func invalidFormat(field, value, message string) *Result {
	r := NewResult(field, message, ErrInvalidFormat)
	r.Value = value
	return r
}

// Errors collects multiple validation errors.
type Errors []error

// Add appends an error to the collection (nil errors are ignored).
func (e *Errors) Add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

// HasErrors returns true if any errors were collected.
func (e Errors) HasErrors() bool {
	return len(e) > 0
}

// Error returns all errors as a single error message.
func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("multiple validation errors: ")
	for i, err := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// First returns the first error, or nil if none.
func (e Errors) First() error {
	if len(e) == 0 {
		return nil
	}
	return e[0]
}
