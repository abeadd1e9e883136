// Package rpc provides newline-delimited JSON-RPC 2.0 over a Unix socket
// for wgmobiled. It exposes the tunnel lifecycle (initialize, connect,
// disconnect, status) to local clients such as the wgmobiled CLI.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-i2p/wgmobile/lib/config"
	apperrors "github.com/go-i2p/wgmobile/lib/errors"
	"github.com/go-i2p/wgmobile/lib/tunnel"
	"github.com/go-i2p/wgmobile/version"
)

// Protocol version for compatibility checking.
const ProtocolVersion = "1.0"

// Error codes. The standard ones follow JSON-RPC 2.0; tunnel failures use
// the codes from lib/errors.
const (
	ErrCodeParse          = apperrors.CodeParseError
	ErrCodeInvalidRequest = apperrors.CodeInvalidRequest
	ErrCodeMethodNotFound = apperrors.CodeMethodNotFound
	ErrCodeInvalidParams  = apperrors.CodeInvalidParams
	ErrCodeInternal       = apperrors.CodeInternal
	ErrCodeRateLimited    = apperrors.CodeRateLimited
	ErrCodeTimeout        = apperrors.CodeTimeout
)

// Method names.
const (
	MethodInitialize = "tunnel.initialize"
	MethodConnect    = "tunnel.connect"
	MethodDisconnect = "tunnel.disconnect"
	MethodStatus     = "tunnel.status"
	MethodSupported  = "tunnel.supported"
	MethodVersion    = "version"
)

// Request represents a JSON-RPC request.
type Request struct {
	// JSONRPC must be "2.0"
	JSONRPC string `json:"jsonrpc"`
	// Method is the RPC method name
	Method string `json:"method"`
	// Params are the method parameters
	Params json.RawMessage `json:"params,omitempty"`
	// ID is the request identifier (string or number)
	ID json.RawMessage `json:"id,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// Error represents a JSON-RPC error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("%s (code %d): %v", e.Message, e.Code, e.Data)
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// ErrorData is attached to tunnel failures so clients can branch on the
// kind and highlight the rejected field.
type ErrorData struct {
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

// String implements fmt.Stringer.
func (d ErrorData) String() string {
	if d.Field != "" {
		return d.Kind + " (" + d.Field + ")"
	}
	return d.Kind
}

// NewError creates a new Error with the given code and message.
func NewError(code int, message string, data any) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// NewErrorResponse creates a Response with an error.
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{
		JSONRPC: "2.0",
		Error:   err,
		ID:      id,
	}
}

// NewSuccessResponse creates a Response with a result.
func NewSuccessResponse(id json.RawMessage, result any) (*Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{
		JSONRPC: "2.0",
		Result:  data,
		ID:      id,
	}, nil
}

// ValidateRequest checks that a Request is valid JSON-RPC 2.0.
func ValidateRequest(req *Request) error {
	if req.JSONRPC != "2.0" {
		return errors.New("jsonrpc must be \"2.0\"")
	}
	if req.Method == "" {
		return errors.New("method is required")
	}
	return nil
}

// ErrMethodNotFound returns a method not found error.
func ErrMethodNotFound(method string) *Error {
	return NewError(ErrCodeMethodNotFound, "method not found", method)
}

// ErrInvalidParams returns an invalid parameters error.
func ErrInvalidParams(details string) *Error {
	return NewError(ErrCodeInvalidParams, "invalid params", details)
}

// ErrInternal returns an internal error.
func ErrInternal(details string) *Error {
	return NewError(ErrCodeInternal, "internal error", details)
}

// ErrRateLimited returns a rate limit exceeded error.
func ErrRateLimited(method string) *Error {
	return NewError(ErrCodeRateLimited, "rate limit exceeded", method)
}

// ErrTimeout returns a handler timeout error.
func ErrTimeout(method string) *Error {
	return NewError(ErrCodeTimeout, "operation timed out", method)
}

// FromTunnelError converts a controller error into a JSON-RPC error. The
// message is the caller-safe one; causes stay on the server. Errors that
// carry no kind at all are reported as internal.
func FromTunnelError(err error) *Error {
	var te *apperrors.Error
	if !errors.As(err, &te) {
		if apperrors.KindOf(err) != apperrors.KindInternal {
			return NewError(apperrors.CodeOf(err), err.Error(), ErrorData{Kind: string(apperrors.KindOf(err))})
		}
		log.WithError(err).Warn("untagged error reached the RPC layer")
		te = apperrors.Internal(err)
	}
	data := ErrorData{Kind: string(te.Kind), Field: te.Field()}
	return NewError(te.Code, te.SafeMessage(), data)
}

// AsTunnelError reports whether e carries a tunnel failure and returns
// its kind and field.
func AsTunnelError(err error) (ErrorData, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorData{}, false
	}
	// Data round-trips through JSON as a map on the client side.
	switch d := e.Data.(type) {
	case ErrorData:
		return d, true
	case map[string]any:
		kind, _ := d["kind"].(string)
		field, _ := d["field"].(string)
		return ErrorData{Kind: kind, Field: field}, kind != ""
	}
	return ErrorData{}, false
}

// ---- Params and results ----

// ConnectParams is the request for "tunnel.connect". It is the tunnel
// configuration object itself.
type ConnectParams = config.RawConfig

// StatusResult is the response for "tunnel.status".
type StatusResult = tunnel.Status

// OKResult is the response for lifecycle methods that succeed.
type OKResult struct {
	OK bool `json:"ok"`
}

// SupportedResult is the response for "tunnel.supported".
type SupportedResult struct {
	Supported bool `json:"supported"`
}

// VersionResult is the response for "version".
type VersionResult struct {
	version.Info
	Protocol string `json:"protocol"`
}
