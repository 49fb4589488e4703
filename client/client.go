// Package client provides an event-driven ABCI socket client. It notifies
// callers of connection state changes, received responses and errors via
// registered handlers, supports optional auto-reconnect, and offers Do for
// synchronous request batches.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cyberinferno/go-abci/abci"
	"github.com/cyberinferno/go-abci/codec"
	"github.com/cyberinferno/go-abci/netaddr"
)

var (
	ErrNotConnected = errors.New("client: not connected")
	ErrClosed       = errors.New("client: closed")
)

// ConnectionState represents the current state of the connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota // Not connected and not attempting to connect
	Connecting                          // Connection attempt in progress
	Connected                           // Successfully connected
	Reconnecting                        // Disconnected and attempting to reconnect (when AutoReconnect is enabled)
	Closed                              // Client has been closed and will not reconnect
)

// String returns a human-readable name for the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ConnectionStateEvent is emitted when the connection state changes.
type ConnectionStateEvent struct {
	State     ConnectionState
	Address   string
	Timestamp time.Time
	Error     error // Non-nil if the state change was due to an error
}

// ResponseEvent is emitted for every response read from the connection,
// paired with the request it answers.
type ResponseEvent struct {
	Request   abci.Request
	Response  abci.Response
	Timestamp time.Time
}

// ErrorEvent is emitted when a read, write, or connection error occurs.
type ErrorEvent struct {
	Error     error
	Timestamp time.Time
}

// Handlers are invoked from goroutines; implementations must be safe for
// concurrent use.
type (
	ConnectionStateHandler func(event ConnectionStateEvent)
	ResponseHandler        func(event ResponseEvent)
	ErrorHandler           func(event ErrorEvent)
)

// Result is the outcome of one request sent with SendAsync.
type Result struct {
	Response abci.Response
	Err      error
}

// Config holds configuration for the client.
type Config struct {
	// Address is "host:port", "tcp://host:port" or "unix:///path/to/socket".
	Address string
	// AutoReconnect enables automatic reconnection when the connection is lost.
	AutoReconnect bool
	// ReconnectInterval is the delay between reconnection attempts when AutoReconnect is true.
	ReconnectInterval time.Duration
	// WriteTimeout is the max duration for a single write; 0 means no timeout.
	WriteTimeout time.Duration
	// ConnectionTimeout is the max duration for establishing a new connection.
	ConnectionTimeout time.Duration
	// MaxMessageSize bounds a single message; 0 selects codec.DefaultMaxMessageSize.
	MaxMessageSize int
}

// DefaultConfig returns a Config with default values for the given address.
//
// Parameters:
//   - address: The server address to connect to
//
// Returns:
//   - A Config with defaults: AutoReconnect false, ReconnectInterval 5s,
//     WriteTimeout 10s, ConnectionTimeout 10s
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ReconnectInterval: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		ConnectionTimeout: 10 * time.Second,
	}
}

// call is a request awaiting its response. The server answers requests in
// the order they were sent, so calls form a FIFO queue.
type call struct {
	req  abci.Request
	done chan Result // nil when only the response handler should see the response
}

// Client is an ABCI client that drives I/O and connection lifecycle via
// events. Register handlers with OnConnectionState, OnResponse and OnError,
// then call Connect to start. It is safe for concurrent use.
type Client struct {
	config Config
	conn   net.Conn
	enc    *codec.Encoder
	state  ConnectionState

	onConnectionState ConnectionStateHandler
	onResponse        ResponseHandler
	onError           ErrorHandler

	mu            sync.RWMutex
	writeMu       sync.Mutex
	calls         []*call
	stopChan      chan struct{}
	reconnectChan chan struct{}
	wg            sync.WaitGroup
	closed        bool
	reconnecting  bool
}

// New creates a client with the given config in Disconnected state; call
// Connect to establish a connection.
//
// Parameters:
//   - config: Connection and behavior settings (e.g. from DefaultConfig)
//
// Returns:
//   - A new *Client; call Close when done to release resources
func New(config Config) *Client {
	return &Client{
		config:        config,
		state:         Disconnected,
		stopChan:      make(chan struct{}),
		reconnectChan: make(chan struct{}, 1),
	}
}

// OnConnectionState registers the handler for connection state changes.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnConnectionState(handler ConnectionStateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnectionState = handler
}

// OnResponse registers the handler for received responses.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnResponse(handler ResponseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResponse = handler
}

// OnError registers the handler for read, write, and connection errors.
// Repeated calls replace the previous handler; nil clears it.
func (c *Client) OnError(handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = handler
}

// Connect dials the configured address. When AutoReconnect is enabled a
// reconnect goroutine is started alongside the read loop.
//
// Returns:
//   - nil on success; ErrClosed, an "already connected" error, or the dial error otherwise
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return fmt.Errorf("client: already connected or connecting")
	}
	c.mu.Unlock()

	if err := c.connect(); err != nil {
		return err
	}

	if c.config.AutoReconnect {
		c.wg.Add(1)
		go c.reconnectHandler()
	}

	return nil
}

// Close shuts down the client, closes the connection, fails every
// outstanding call and stops all goroutines. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()

	close(c.stopChan)
	c.wg.Wait()

	c.failCalls(ErrClosed)
	c.setState(Closed, nil)

	return nil
}

// Send writes req and flushes it to the connection. The response is
// delivered to the OnResponse handler.
//
// Returns:
//   - nil on success; ErrNotConnected or the write error otherwise
func (c *Client) Send(req abci.Request) error {
	return c.write([]*call{{req: req}})
}

// SendAsync writes req and returns a channel that receives its response.
// The response is also delivered to the OnResponse handler.
//
// Returns:
//   - A channel receiving exactly one Result, or the write error
func (c *Client) SendAsync(req abci.Request) (<-chan Result, error) {
	cl := &call{req: req, done: make(chan Result, 1)}
	if err := c.write([]*call{cl}); err != nil {
		return nil, err
	}

	return cl.done, nil
}

// Do sends reqs followed by a Flush and waits for every response.
//
// Parameters:
//   - ctx: Bounds the wait for responses
//   - reqs: Requests to send in order
//
// Returns:
//   - The responses to reqs in order (the flush acknowledgement is not included)
//   - An error if the write fails, ctx ends, the connection is lost, or
//     the server answers with an exception
func (c *Client) Do(ctx context.Context, reqs ...abci.Request) ([]abci.Response, error) {
	calls := make([]*call, 0, len(reqs)+1)
	for _, req := range reqs {
		calls = append(calls, &call{req: req, done: make(chan Result, 1)})
	}
	calls = append(calls, &call{req: &abci.RequestFlush{}, done: make(chan Result, 1)})

	if err := c.write(calls); err != nil {
		return nil, err
	}

	resps := make([]abci.Response, 0, len(reqs))
	for i, cl := range calls {
		var res Result
		select {
		case res = <-cl.done:
		case <-ctx.Done():
			return resps, ctx.Err()
		}

		if res.Err != nil {
			return resps, res.Err
		}
		if ex, ok := res.Response.(*abci.ResponseException); ok {
			return resps, fmt.Errorf("client: %s failed: %s", cl.req.Method(), ex.Error)
		}
		if i == len(reqs) {
			if _, ok := res.Response.(*abci.ResponseFlush); !ok {
				return resps, fmt.Errorf("client: expected flush response, got %s", res.Response.Method())
			}
			break
		}

		resps = append(resps, res.Response)
	}

	return resps, nil
}

// GetState returns the current connection state.
func (c *Client) GetState() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected returns true if the client is in Connected state.
func (c *Client) IsConnected() bool {
	return c.GetState() == Connected
}

// write queues calls and writes their requests as one flushed batch. The
// queue push and the write happen under writeMu so queue order matches wire
// order.
func (c *Client) write(calls []*call) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn, enc, state := c.conn, c.enc, c.state
	if state != Connected || conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.calls = append(c.calls, calls...)
	c.mu.Unlock()

	if c.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
			return err
		}

		defer func() {
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	for _, cl := range calls {
		if err := enc.WriteRequest(cl.req); err != nil {
			c.connectionLost(conn, err)
			return err
		}
	}

	if err := enc.Flush(); err != nil {
		c.connectionLost(conn, err)
		return err
	}

	return nil
}

func (c *Client) connect() error {
	c.setState(Connecting, nil)

	network, address := netaddr.Parse(c.config.Address)
	dialer := net.Dialer{Timeout: c.config.ConnectionTimeout}

	conn, err := dialer.Dial(network, address)
	if err != nil {
		c.setState(Disconnected, err)
		c.emitError(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.enc = codec.NewEncoder(conn, c.config.MaxMessageSize)
	c.mu.Unlock()

	c.setState(Connected, nil)

	c.wg.Add(1)
	go c.readLoop(conn)

	return nil
}

func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	dec := codec.NewDecoder(conn, c.config.MaxMessageSize)
	for {
		resp, err := dec.ReadResponse()
		if c.isClosed() {
			return
		}

		if err != nil {
			c.connectionLost(conn, err)
			return
		}

		cl := c.popCall()
		if cl == nil {
			c.emitError(fmt.Errorf("client: unexpected %s response", resp.Method()))
			continue
		}

		if cl.done != nil {
			cl.done <- Result{Response: resp}
		}
		c.emitResponse(cl.req, resp)
	}
}

// connectionLost tears down conn once, fails outstanding calls and schedules
// a reconnect. Later reports for an already replaced conn are ignored.
func (c *Client) connectionLost(conn net.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	_ = conn.Close()
	c.conn = nil
	c.enc = nil
	c.mu.Unlock()

	c.failCalls(fmt.Errorf("%w: %v", ErrNotConnected, err))
	c.setState(Disconnected, err)
	c.emitError(err)
	c.triggerReconnect()
}

func (c *Client) popCall() *call {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.calls) == 0 {
		return nil
	}

	cl := c.calls[0]
	c.calls[0] = nil
	c.calls = c.calls[1:]
	return cl
}

func (c *Client) failCalls(err error) {
	c.mu.Lock()
	calls := c.calls
	c.calls = nil
	c.mu.Unlock()

	for _, cl := range calls {
		if cl.done != nil {
			cl.done <- Result{Err: err}
		}
	}
}

func (c *Client) reconnectHandler() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case <-c.reconnectChan:
			c.mu.Lock()
			if c.reconnecting {
				c.mu.Unlock()
				continue
			}
			c.reconnecting = true
			c.mu.Unlock()

			c.setState(Reconnecting, nil)

			select {
			case <-c.stopChan:
				return
			case <-time.After(c.config.ReconnectInterval):
			}

			if c.isClosed() {
				return
			}

			err := c.connect()

			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()

			if err != nil {
				c.triggerReconnect()
			}
		}
	}
}

func (c *Client) triggerReconnect() {
	if !c.config.AutoReconnect || c.isClosed() {
		return
	}

	select {
	case c.reconnectChan <- struct{}{}:
	default:
	}
}

func (c *Client) setState(state ConnectionState, err error) {
	c.mu.Lock()
	c.state = state
	handler := c.onConnectionState
	c.mu.Unlock()

	if handler != nil {
		go handler(ConnectionStateEvent{
			State:     state,
			Address:   c.config.Address,
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (c *Client) emitResponse(req abci.Request, resp abci.Response) {
	c.mu.RLock()
	handler := c.onResponse
	c.mu.RUnlock()

	if handler != nil {
		go handler(ResponseEvent{Request: req, Response: resp, Timestamp: time.Now()})
	}
}

func (c *Client) emitError(err error) {
	c.mu.RLock()
	handler := c.onError
	c.mu.RUnlock()

	if handler != nil {
		go handler(ErrorEvent{Error: err, Timestamp: time.Now()})
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
