package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"threadsync/internal/log"
	"threadsync/pkg/interfaces"
	"threadsync/pkg/types"
)

var (
	ErrConnectionClosed = fmt.Errorf("nats: %w", interfaces.ErrConnClosed)
	ErrInvalidFrame     = fmt.Errorf("nats: invalid envelope: %w", interfaces.ErrMalformedFrame)
	ErrDialFailed       = errors.New("nats: dial failed")
)

const (
	defaultBufferSize = 100
	flushTimeout      = 5 * time.Second
)

// Dialer connects to a NATS server per thread session.
type Dialer struct {
	url        string
	bufferSize int
}

var _ interfaces.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer for the server at url.
func NewDialer(url string, bufferSize int) *Dialer {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Dialer{url: url, bufferSize: bufferSize}
}

// Dial connects and subscribes to the thread's events subject.
// The client library's own reconnect is disabled; the transport session decides
// when to dial again.
func (d *Dialer) Dial(ctx context.Context, opts interfaces.DialOptions) (interfaces.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &Conn{
		opts:   opts,
		msgs:   make(chan *nats.Msg, d.bufferSize),
		closed: make(chan struct{}),
	}

	natsOpts := []nats.Option{
		nats.Name("threadsync-" + opts.ParticipantID),
		nats.NoReconnect(),
		nats.ClosedHandler(func(*nats.Conn) { c.markClosed() }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn(log.CatTransport, "nats disconnected", "error", err)
			}
			c.markClosed()
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		natsOpts = append(natsOpts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := connect(ctx, d.url, natsOpts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}
	c.nc = nc

	sub, err := nc.ChanSubscribe(EventsSubject(opts.ThreadID), c.msgs)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: subscribe: %v", ErrDialFailed, err)
	}
	c.sub = sub

	// Make sure the subscription is registered before the caller sends join.
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := nc.FlushWithContext(flushCtx); err != nil {
		_ = c.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: flush: %v", ErrDialFailed, err)
	}

	return c, nil
}

// connect dials on its own goroutine so Dial returns as soon as ctx ends; nats.Connect
// itself only observes a timeout. A connection that completes after ctx ends is closed.
func connect(ctx context.Context, url string, opts ...nats.Option) (*nats.Conn, error) {
	type result struct {
		nc  *nats.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		nc, err := nats.Connect(url, opts...)
		done <- result{nc: nc, err: err}
	}()

	select {
	case r := <-done:
		return r.nc, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.nc != nil {
				r.nc.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Conn is one thread-scoped NATS link.
type Conn struct {
	nc   *nats.Conn
	sub  *nats.Subscription
	opts interfaces.DialOptions
	msgs chan *nats.Msg

	closeOnce  sync.Once
	closedOnce sync.Once
	closed     chan struct{}
}

var _ interfaces.Conn = (*Conn)(nil)

func (c *Conn) markClosed() {
	c.closedOnce.Do(func() { close(c.closed) })
}

// WriteEnvelope publishes env on the thread's intents subject.
func (c *Conn) WriteEnvelope(env types.Envelope) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return ErrInvalidFrame
	}

	msg := nats.NewMsg(IntentsSubject(c.opts.ThreadID))
	msg.Data = data
	msg.Header.Set(HeaderParticipant, c.opts.ParticipantID)
	msg.Header.Set(HeaderRole, string(c.opts.Role))

	if err := c.nc.PublishMsg(msg); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return ErrConnectionClosed
		}
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

// ReadEnvelope returns the next event published for the thread.
func (c *Conn) ReadEnvelope(ctx context.Context) (types.Envelope, error) {
	select {
	case msg := <-c.msgs:
		return decode(msg.Data)
	case <-ctx.Done():
		return types.Envelope{}, ctx.Err()
	case <-c.closed:
		select {
		case msg := <-c.msgs:
			return decode(msg.Data)
		default:
			return types.Envelope{}, ErrConnectionClosed
		}
	}
}

func decode(data []byte) (types.Envelope, error) {
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		return types.Envelope{}, ErrInvalidFrame
	}
	return env, nil
}

// Close unsubscribes and closes the NATS connection. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if c.sub != nil {
			_ = c.sub.Unsubscribe()
		}
		if c.nc != nil {
			c.nc.Close()
		}
		c.markClosed()
	})
	return nil
}
