package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"threadsync/pkg/types"
)

// Options tune one connection. Zero values fall back to the package defaults.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

const (
	defaultPingInterval = 30 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultBufferSize   = 100
)

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	return o
}

// Connection implements interfaces.Conn over one gorilla websocket.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized, so every frame and ping
// goes through the single writeLoop goroutine; reads have a single owner in readLoop
type Connection struct {
	conn    *websocket.Conn
	opts    Options
	writeCh chan []byte
	inbound chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu  sync.Mutex
	err error // first failure observed by either loop
}

// NewConnection wraps an established websocket and starts its reader and writer.
func NewConnection(conn *websocket.Conn, opts Options) *Connection {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		opts:    opts,
		writeCh: make(chan []byte, opts.BufferSize),
		inbound: make(chan []byte, opts.BufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	// TECHNICAL DISCOVERY: every pong pushes the read deadline out, so a silent peer is
	// detected within ReadTimeout without an application-level heartbeat
	_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})

	go c.writeLoop()
	go c.readLoop()

	return c
}

// writeLoop owns the socket: it is the only writer and closes the socket on exit,
// which in turn unblocks readLoop.
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				return
			}

		case <-c.ctx.Done():
			// Best-effort close frame; the peer may already be gone.
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *Connection) readLoop() {
	defer close(c.inbound)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		select {
		case c.inbound <- data:
		case <-c.ctx.Done():
			return
		}
	}
}

// fail records the first error and tears the connection down.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	_ = c.Close()
}

// Err returns the failure that ended the connection, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// WriteEnvelope queues env for the writer goroutine.
func (c *Connection) WriteEnvelope(env types.Envelope) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.opts.WriteTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// ReadEnvelope returns the next inbound frame. Frames that are not JSON envelopes
// are reported as ErrInvalidJSON without ending the connection.
func (c *Connection) ReadEnvelope(ctx context.Context) (types.Envelope, error) {
	select {
	case data, ok := <-c.inbound:
		return c.decode(data, ok)
	case <-ctx.Done():
		return types.Envelope{}, ctx.Err()
	case <-c.ctx.Done():
		// Frames read before the failure are still delivered.
		select {
		case data, ok := <-c.inbound:
			return c.decode(data, ok)
		default:
			return types.Envelope{}, c.closedErr()
		}
	}
}

func (c *Connection) decode(data []byte, ok bool) (types.Envelope, error) {
	if !ok {
		return types.Envelope{}, c.closedErr()
	}
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		return types.Envelope{}, ErrInvalidJSON
	}
	return env, nil
}

func (c *Connection) closedErr() error {
	if err := c.Err(); err != nil && !isNormalClose(err) {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return ErrConnectionClosed
}

// ARCHITECTURAL DISCOVERY: Clean shutdown requires careful goroutine coordination.
// Cancelling ctx makes the writer send a close frame and close the socket, and the
// closed socket ends the reader
func (c *Connection) Close() error {
	c.closeOnce.Do(c.cancel)
	return nil
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
