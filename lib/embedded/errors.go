package embedded

import (
	apperrors "github.com/go-i2p/wgmobile/lib/errors"
)

// Rejection codes, one per bridge operation.
const (
	CodeInit       = "INIT_ERROR"
	CodeConnect    = "CONNECT_ERROR"
	CodeDisconnect = "DISCONNECT_ERROR"
)

// BridgeError is a rejected bridge call. Code says which operation failed;
// Kind and Field carry the underlying cause for callers that want it.
type BridgeError struct {
	Code    string
	Message string
	Kind    apperrors.Kind
	// Field is the rejected configuration field, if any.
	Field string
	Err   error
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying error.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

func reject(code string, err error) error {
	if err == nil {
		return nil
	}
	be := &BridgeError{
		Code:    code,
		Message: err.Error(),
		Kind:    apperrors.KindOf(err),
		Err:     err,
	}
	var te *apperrors.Error
	if apperrors.As(err, &te) {
		be.Field = te.Field()
	}
	log.WithField("code", code).WithField("kind", be.Kind).Debug("bridge call rejected")
	return be
}
