package errors

import "fmt"

// Reason says why a configuration field was rejected.
type Reason string

const (
	ReasonMissingField   Reason = "missing_field"
	ReasonInvalidKey     Reason = "invalid_key"
	ReasonOutOfRange     Reason = "out_of_range"
	ReasonInvalidAddress Reason = "invalid_address"
	// ReasonInvalidType covers payload values of the wrong shape, such as
	// a map where a string was expected.
	ReasonInvalidType Reason = "invalid_type"
)

// ConfigError describes a single rejected configuration field.
// Value is only populated for non-secret fields.
type ConfigError struct {
	Reason Reason `json:"reason"`
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Min    int    `json:"min,omitempty"`
	Max    int    `json:"max,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch e.Reason {
	case ReasonMissingField:
		return fmt.Sprintf("%s: missing required field", e.Field)
	case ReasonInvalidKey:
		return fmt.Sprintf("%s: invalid key: %s", e.Field, e.Detail)
	case ReasonOutOfRange:
		return fmt.Sprintf("%s: value %s out of range [%d, %d]", e.Field, e.Value, e.Min, e.Max)
	case ReasonInvalidAddress:
		return fmt.Sprintf("%s: invalid address %q", e.Field, e.Value)
	case ReasonInvalidType:
		return fmt.Sprintf("%s: %s", e.Field, e.Detail)
	default:
		return fmt.Sprintf("%s: invalid", e.Field)
	}
}

// Is makes every ConfigError match ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// MissingField reports an absent required field.
func MissingField(field string) *ConfigError {
	return &ConfigError{Reason: ReasonMissingField, Field: field}
}

// InvalidKey reports malformed key material. detail must not contain the key.
func InvalidKey(field, detail string) *ConfigError {
	return &ConfigError{Reason: ReasonInvalidKey, Field: field, Detail: detail}
}

// OutOfRange reports a numeric value outside [min, max].
func OutOfRange(field string, value, min, max int) *ConfigError {
	return &ConfigError{
		Reason: ReasonOutOfRange,
		Field:  field,
		Value:  fmt.Sprintf("%d", value),
		Min:    min,
		Max:    max,
	}
}

// InvalidAddress reports an unparsable IP, prefix or hostname.
func InvalidAddress(field, value string) *ConfigError {
	return &ConfigError{Reason: ReasonInvalidAddress, Field: field, Value: value}
}

// InvalidType reports a payload value of the wrong shape.
func InvalidType(field, detail string) *ConfigError {
	return &ConfigError{Reason: ReasonInvalidType, Field: field, Detail: detail}
}
