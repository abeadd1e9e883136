package rpc

import (
	"net"
	"sync"
	"sync/atomic"
)

// DefaultMaxConnections is the default maximum concurrent connections.
const DefaultMaxConnections = 100

// ConnectionLimiter caps concurrent client connections. Connections over
// the cap are closed immediately.
type ConnectionLimiter struct {
	maxConns    atomic.Int32
	activeConns atomic.Int32

	mu       sync.RWMutex
	onReject func(addr net.Addr)
}

// NewConnectionLimiter creates a limiter. If maxConns <= 0,
// DefaultMaxConnections is used.
func NewConnectionLimiter(maxConns int) *ConnectionLimiter {
	cl := &ConnectionLimiter{}
	cl.SetMaxConnections(maxConns)
	return cl
}

// SetOnReject sets a callback run for every rejected connection.
func (cl *ConnectionLimiter) SetOnReject(fn func(addr net.Addr)) {
	cl.mu.Lock()
	cl.onReject = fn
	cl.mu.Unlock()
}

// Acquire takes a slot, returning false if none is free.
func (cl *ConnectionLimiter) Acquire() bool {
	for {
		current := cl.activeConns.Load()
		if current >= cl.maxConns.Load() {
			return false
		}
		if cl.activeConns.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release returns a slot.
func (cl *ConnectionLimiter) Release() {
	cl.activeConns.Add(-1)
}

// TryAccept returns conn if a slot was free. Otherwise it closes conn and
// returns nil.
func (cl *ConnectionLimiter) TryAccept(conn net.Conn) net.Conn {
	if cl.Acquire() {
		return conn
	}

	cl.mu.RLock()
	onReject := cl.onReject
	cl.mu.RUnlock()
	if onReject != nil {
		onReject(conn.RemoteAddr())
	}
	conn.Close()
	return nil
}

// ActiveConnections returns the current number of active connections.
func (cl *ConnectionLimiter) ActiveConnections() int {
	return int(cl.activeConns.Load())
}

// MaxConnections returns the maximum allowed connections.
func (cl *ConnectionLimiter) MaxConnections() int {
	return int(cl.maxConns.Load())
}

// SetMaxConnections updates the limit. Existing connections are kept.
func (cl *ConnectionLimiter) SetMaxConnections(max int) {
	if max <= 0 {
		max = DefaultMaxConnections
	}
	cl.maxConns.Store(int32(max))
}

// LimitedConn releases its limiter slot on the first Close.
type LimitedConn struct {
	net.Conn
	limiter *ConnectionLimiter
	once    sync.Once
}

// WrapConn wraps a connection that already holds a slot.
func (cl *ConnectionLimiter) WrapConn(conn net.Conn) *LimitedConn {
	return &LimitedConn{Conn: conn, limiter: cl}
}

// Close closes the connection and releases the slot.
func (lc *LimitedConn) Close() error {
	lc.once.Do(lc.limiter.Release)
	return lc.Conn.Close()
}
