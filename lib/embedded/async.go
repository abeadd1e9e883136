package embedded

import "errors"

// Promise receives the outcome of an asynchronous bridge call. Exactly one
// of Resolve or Reject is called, from a goroutine other than the caller's.
type Promise interface {
	Resolve(result string)
	Reject(code, message string)
}

// InitializeAsync runs Initialize off the calling thread.
func (b *Bridge) InitializeAsync(p Promise) {
	go func() { settle(p, CodeInit, b.Initialize()) }()
}

// ConnectAsync runs Connect off the calling thread.
func (b *Bridge) ConnectAsync(configJSON string, p Promise) {
	go func() { settle(p, CodeConnect, b.Connect(configJSON)) }()
}

// DisconnectAsync runs Disconnect off the calling thread.
func (b *Bridge) DisconnectAsync(p Promise) {
	go func() { settle(p, CodeDisconnect, b.Disconnect()) }()
}

// GetStatusAsync resolves with the GetStatus JSON. It never rejects.
func (b *Bridge) GetStatusAsync(p Promise) {
	go func() { p.Resolve(b.GetStatus()) }()
}

func settle(p Promise, code string, err error) {
	if err == nil {
		p.Resolve("")
		return
	}
	var be *BridgeError
	if errors.As(err, &be) {
		code = be.Code
	}
	p.Reject(code, errorMessage(err))
}

func errorMessage(err error) string {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
