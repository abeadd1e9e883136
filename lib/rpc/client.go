package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-i2p/wgmobile/lib/config"
)

// DefaultClientTimeout bounds dialing and each call when the context has
// no earlier deadline.
const DefaultClientTimeout = 30 * time.Second

// Client talks to a wgmobiled daemon over its Unix socket. Calls on one
// Client are serialized.
type Client struct {
	mu        sync.Mutex
	conn      net.Conn
	reader    *bufio.Reader
	requestID int
	timeout   time.Duration
}

// ClientConfig configures the RPC client.
type ClientConfig struct {
	// SocketPath is the daemon's Unix socket.
	SocketPath string
	// Timeout is the connection and request timeout.
	Timeout time.Duration
}

// NewClient connects to the daemon.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("no socket path specified")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientTimeout
	}

	conn, err := net.DialTimeout("unix", cfg.SocketPath, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connect unix: %w", err)
	}

	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: cfg.Timeout,
	}, nil
}

// Call makes an RPC call and unmarshals the result into result, which may
// be nil. A JSON-RPC error is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestID++
	req, err := c.buildRequest(method, params)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		// Wake the blocked read.
		c.conn.SetDeadline(time.Now())
	})
	defer stop()

	resp, err := c.roundTrip(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

func (c *Client) buildRequest(method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      json.RawMessage(strconv.Itoa(c.requestID)),
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = data
	}
	return req, nil
}

func (c *Client) roundTrip(req *Request) (*Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Initialize calls "tunnel.initialize".
func (c *Client) Initialize(ctx context.Context) error {
	return c.Call(ctx, MethodInitialize, nil, nil)
}

// Connect calls "tunnel.connect" with the given configuration.
func (c *Client) Connect(ctx context.Context, raw config.RawConfig) error {
	return c.Call(ctx, MethodConnect, raw, nil)
}

// Disconnect calls "tunnel.disconnect".
func (c *Client) Disconnect(ctx context.Context) error {
	return c.Call(ctx, MethodDisconnect, nil, nil)
}

// Status calls "tunnel.status".
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var result StatusResult
	if err := c.Call(ctx, MethodStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Supported calls "tunnel.supported".
func (c *Client) Supported(ctx context.Context) (bool, error) {
	var result SupportedResult
	if err := c.Call(ctx, MethodSupported, nil, &result); err != nil {
		return false, err
	}
	return result.Supported, nil
}

// Version calls "version".
func (c *Client) Version(ctx context.Context) (*VersionResult, error) {
	var result VersionResult
	if err := c.Call(ctx, MethodVersion, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
