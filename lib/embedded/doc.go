// Package embedded provides the call surface a mobile application binds to.
//
// A [Bridge] wraps one tunnel controller and exposes its operations with
// plain types only, so it can be bound with gomobile or called from any
// host that can pass strings:
//
//	b := embedded.New(embedded.Config{})
//	defer b.Close()
//
//	if err := b.Initialize(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := b.Connect(configJSON); err != nil {
//	    var be *embedded.BridgeError
//	    errors.As(err, &be)
//	    fmt.Println(be.Code, be.Message) // CONNECT_ERROR serverPort: value 99999 out of range [1, 65535]
//	}
//	fmt.Println(b.GetStatus()) // {"isConnected":true,"tunnelState":"ACTIVE"}
//
// # Configuration payload
//
// Connect takes a JSON object with the fields privateKey, publicKey,
// serverAddress, serverPort and allowedIPs, plus the optional dns, mtu,
// presharedKey and persistentKeepalive. ConnectMap takes the same fields
// as an untyped map.
//
// # Errors
//
// Every rejected call returns a [*BridgeError] whose Code names the
// operation (INIT_ERROR, CONNECT_ERROR, DISCONNECT_ERROR) and whose Kind
// names the cause (config, init, backend, not_connected, busy).
// GetStatus never fails; a backend query error is reported inside the
// status object with tunnelState ERROR.
//
// # Threading
//
// The synchronous methods block the calling goroutine for at most the
// configured call timeout. Hosts that must not block a UI thread use the
// Async variants, which settle a [Promise]. Lifecycle calls that overlap
// are rejected with Kind busy rather than queued.
//
// # State changes
//
// Register a [StateCallback] with [Bridge.SetStateCallback] to hear about
// backend state changes as they happen.
package embedded
