// Package errors provides the caller-visible error taxonomy for the tunnel
// controller. Every lifecycle failure carries a machine-readable Kind and
// code plus a human-readable message that is safe to hand to a UI.
//
// This package provides:
//   - Sentinel errors for each failure kind (use errors.Is)
//   - ConfigError with field-level detail for rejected configuration
//   - Error, the tagged wrapper returned by the controller
//   - Error codes for RPC response categorization
package errors

import (
	"errors"
	"fmt"
)

// Error codes. The generic ones align with JSON-RPC 2.0; the tunnel
// specific ones live in the -32000 to -32099 application range.
const (
	// Standard JSON-RPC 2.0 error codes
	CodeParseError     = -32700 // Invalid JSON
	CodeInvalidRequest = -32600 // Invalid request object
	CodeMethodNotFound = -32601 // Method not found
	CodeInvalidParams  = -32602 // Invalid method parameters
	CodeInternal       = -32603 // Internal error

	// Application-specific error codes (-32000 to -32099)
	CodeRateLimited  = -32004 // Rate limit exceeded
	CodeTimeout      = -32005 // Operation timeout
	CodeConfig       = -32008 // Tunnel configuration rejected
	CodeInit         = -32011 // Backend initialization failed
	CodeBackend      = -32012 // Backend state transition failed
	CodeNotConnected = -32013 // No tunnel to disconnect
	CodeBusy         = -32014 // Another lifecycle call is in flight
)

// Kind categorizes a tunnel failure.
type Kind string

const (
	KindConfig       Kind = "config"
	KindInit         Kind = "init"
	KindBackend      Kind = "backend"
	KindNotConnected Kind = "not_connected"
	KindBusy         Kind = "busy"
	KindInternal     Kind = "internal"
)

// Sentinel errors, one per Kind.
var (
	// ErrConfig indicates the supplied configuration was rejected.
	ErrConfig = errors.New("invalid tunnel configuration")

	// ErrInit indicates the backend or platform could not be set up.
	ErrInit = errors.New("tunnel backend initialization failed")

	// ErrBackend indicates the backend failed a state transition.
	ErrBackend = errors.New("tunnel backend failure")

	// ErrNotConnected indicates there is no tunnel to act on.
	ErrNotConnected = errors.New("tunnel not connected")

	// ErrBusy indicates a concurrent lifecycle call was rejected.
	ErrBusy = errors.New("lifecycle operation already in progress")

	// ErrInternal indicates an unexpected internal failure.
	ErrInternal = errors.New("internal error")
)

// Backend errors shared by backend implementations.
var (
	// ErrBackendNotInitialized is returned when a backend is used before Init.
	ErrBackendNotInitialized = fmt.Errorf("backend: not initialized: %w", ErrInit)

	// ErrPermissionDenied is returned when the platform refuses VPN access.
	ErrPermissionDenied = fmt.Errorf("backend: vpn permission denied: %w", ErrInit)

	// ErrUnsupportedState is returned for target states other than UP or DOWN.
	ErrUnsupportedState = errors.New("backend: unsupported target state")
)

// Error is a tagged lifecycle failure.
type Error struct {
	// Kind is the failure category
	Kind Kind `json:"kind"`
	// Code is the numeric code for RPC responses
	Code int `json:"code"`
	// Message is a safe, user-facing error message
	Message string `json:"message"`
	// Err is the underlying cause (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := []error{sentinelFor(e.Kind)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// SafeMessage returns a client-safe error message without internal details.
func (e *Error) SafeMessage() string {
	return e.Message
}

// Field returns the offending configuration field for config errors.
func (e *Error) Field() string {
	var ce *ConfigError
	if errors.As(e.Err, &ce) {
		return ce.Field
	}
	return ""
}

func newError(kind Kind, code int, message string, err error) *Error {
	if err != nil {
		log.WithField("kind", kind).WithError(err).Debug("wrapping tunnel error")
	}
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Config wraps a validation failure. The message is the validation error
// text, which never contains key material.
func Config(err error) *Error {
	msg := ErrConfig.Error()
	if err != nil {
		msg = err.Error()
	}
	return newError(KindConfig, CodeConfig, msg, err)
}

// Init wraps a backend initialization failure.
func Init(message string, err error) *Error {
	return newError(KindInit, CodeInit, message, err)
}

// Backend wraps a failed backend state transition.
func Backend(message string, err error) *Error {
	return newError(KindBackend, CodeBackend, message, err)
}

// NotConnected reports that no tunnel exists for the operation.
func NotConnected(message string) *Error {
	return newError(KindNotConnected, CodeNotConnected, message, nil)
}

// Busy reports that op was rejected because another lifecycle call is running.
func Busy(op string) *Error {
	return newError(KindBusy, CodeBusy, fmt.Sprintf("%s rejected: %s", op, ErrBusy), nil)
}

// Internal wraps an unexpected error with a generic message.
func Internal(err error) *Error {
	return newError(KindInternal, CodeInternal, "internal error", err)
}

func sentinelFor(kind Kind) error {
	switch kind {
	case KindConfig:
		return ErrConfig
	case KindInit:
		return ErrInit
	case KindBackend:
		return ErrBackend
	case KindNotConnected:
		return ErrNotConnected
	case KindBusy:
		return ErrBusy
	default:
		return ErrInternal
	}
}

// KindOf returns the Kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrInit):
		return KindInit
	case errors.Is(err, ErrBackend):
		return KindBackend
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrBusy):
		return KindBusy
	default:
		return KindInternal
	}
}

// CodeOf returns the numeric code for err.
func CodeOf(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	switch KindOf(err) {
	case KindConfig:
		return CodeConfig
	case KindInit:
		return CodeInit
	case KindBackend:
		return CodeBackend
	case KindNotConnected:
		return CodeNotConnected
	case KindBusy:
		return CodeBusy
	default:
		return CodeInternal
	}
}

// IsConfig returns true if err is a configuration failure.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsInit returns true if err is an initialization failure.
func IsInit(err error) bool {
	return errors.Is(err, ErrInit)
}

// IsBackend returns true if err is a backend transition failure.
func IsBackend(err error) bool {
	return errors.Is(err, ErrBackend)
}

// IsNotConnected returns true if err reports a missing tunnel.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsBusy returns true if err reports a rejected concurrent call.
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
