package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// MaxRequestSize is the maximum size of a request line in bytes (1MB).
	MaxRequestSize = 1024 * 1024

	// DefaultHandlerTimeout bounds each handler call.
	DefaultHandlerTimeout = 30 * time.Second

	// ReadTimeout is how long an idle connection may wait for a request.
	ReadTimeout = 5 * time.Minute

	// WriteTimeout is the timeout for writing responses.
	WriteTimeout = 10 * time.Second
)

// Handler handles one RPC method.
type Handler func(ctx context.Context, params json.RawMessage) (any, *Error)

// ServerConfig configures the RPC server.
type ServerConfig struct {
	// SocketPath is the Unix socket to listen on.
	SocketPath string
	// MaxConnections is the maximum concurrent connections (0 = default of 100).
	MaxConnections int
	// HandlerTimeout bounds each handler (0 = DefaultHandlerTimeout).
	HandlerTimeout time.Duration
}

// Server serves JSON-RPC on a Unix socket.
type Server struct {
	cfg         ServerConfig
	mu          sync.RWMutex
	handlers    map[string]Handler
	listener    net.Listener
	connLimiter *ConnectionLimiter
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewServer creates a new RPC server. It does not listen until Start.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("rpc: socket path is required")
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = DefaultHandlerTimeout
	}

	s := &Server{
		cfg:         cfg,
		handlers:    make(map[string]Handler),
		connLimiter: NewConnectionLimiter(cfg.MaxConnections),
	}
	s.connLimiter.SetOnReject(func(addr net.Addr) {
		log.WithField("active", s.connLimiter.ActiveConnections()).
			WithField("max", s.connLimiter.MaxConnections()).
			Warn("connection rejected: too many connections")
	})
	return s, nil
}

// RegisterHandler registers a handler for an RPC method.
func (s *Server) RegisterHandler(method string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

// Start listens on the socket and serves until ctx is cancelled or Stop
// is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("rpc: server already running")
	}

	path := s.cfg.SocketPath
	// A socket file left behind by a crashed daemon blocks Listen.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	// The socket directory belongs to the daemon. Tightening it also closes
	// the window between Listen and Chmod below.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating socket dir: %w", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return fmt.Errorf("chmod socket dir: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen unix: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.running = true

	s.wg.Add(1)
	go s.acceptLoop(ctx, listener)

	context.AfterFunc(ctx, func() { listener.Close() })

	log.WithField("path", path).Info("RPC server listening")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.WithError(err).Error("accept error")
			}
			return
		}

		conn = s.connLimiter.TryAccept(conn)
		if conn == nil {
			continue
		}
		limited := s.connLimiter.WrapConn(conn)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, limited)
		}()
	}
}

// handleConnection serves requests from one client until it hangs up.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Unblock the read when the server shuts down.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reader := bufio.NewReaderSize(conn, 64*1024)
	for ctx.Err() == nil {
		if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
			log.WithError(err).Debug("failed to set read deadline")
		}

		line, err := readLine(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.WithError(err).Debug("read error")
			}
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendResponse(conn, NewErrorResponse(nil, NewError(ErrCodeParse, "parse error", err.Error())))
			continue
		}
		if err := ValidateRequest(&req); err != nil {
			s.sendResponse(conn, NewErrorResponse(req.ID, NewError(ErrCodeInvalidRequest, "invalid request", err.Error())))
			continue
		}

		s.sendResponse(conn, s.dispatch(ctx, &req))
	}
}

// readLine reads one newline-terminated request, refusing lines longer
// than MaxRequestSize.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > MaxRequestSize {
			return nil, fmt.Errorf("request exceeds %d bytes", MaxRequestSize)
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// dispatch dispatches a request to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		return NewErrorResponse(req.ID, ErrMethodNotFound(req.Method))
	}

	handlerCtx, cancel := context.WithTimeout(ctx, s.cfg.HandlerTimeout)
	defer cancel()

	result, rpcErr := handler(handlerCtx, req.Params)
	if rpcErr != nil && errors.Is(handlerCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		log.WithField("method", req.Method).WithField("timeout", s.cfg.HandlerTimeout).Warn("rpc call timed out")
		rpcErr = ErrTimeout(req.Method)
	}
	if rpcErr != nil {
		log.WithField("method", req.Method).WithField("code", rpcErr.Code).Debug("rpc call failed")
		return NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := NewSuccessResponse(req.ID, result)
	if err != nil {
		log.WithField("method", req.Method).WithError(err).Error("encoding result")
		return NewErrorResponse(req.ID, ErrInternal("result encoding failed"))
	}
	return resp
}

// sendResponse sends a response to the client.
func (s *Server) sendResponse(conn net.Conn, resp *Response) {
	if err := conn.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil {
		log.WithError(err).Debug("failed to set write deadline")
	}

	data, err := json.Marshal(resp)
	if err != nil {
		log.WithError(err).Error("marshal response")
		return
	}

	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		log.WithError(err).Debug("write error")
	}
}

// Stop closes the listener, waits for open connections to finish and
// removes the socket file.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	// Cancelling closes the listener and every open connection.
	cancel()
	s.wg.Wait()

	if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Debug("removing socket")
	}
	log.Info("RPC server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the Unix socket path.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// ActiveConnections returns the current number of active connections.
func (s *Server) ActiveConnections() int {
	return s.connLimiter.ActiveConnections()
}
