package tunnel

import "github.com/go-i2p/wgmobile/lib/backend"

// StatusState is the caller-facing tunnel state.
type StatusState string

const (
	StatusActive   StatusState = "ACTIVE"
	StatusInactive StatusState = "INACTIVE"
	StatusError    StatusState = "ERROR"
)

// Status is what a UI renders. Error is only set with StatusError.
type Status struct {
	IsConnected bool        `json:"isConnected"`
	TunnelState StatusState `json:"tunnelState"`
	Error       string      `json:"error,omitempty"`
}

// statusFor maps a backend state. Only UP counts as connected.
func statusFor(state backend.TunnelState) Status {
	if state == backend.StateUp {
		return Status{IsConnected: true, TunnelState: StatusActive}
	}
	return Status{TunnelState: StatusInactive}
}

func errorStatus(err error) Status {
	return Status{TunnelState: StatusError, Error: err.Error()}
}
