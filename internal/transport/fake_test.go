package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"threadsync/pkg/interfaces"
	"threadsync/pkg/types"
)

// fakeConn is an in-memory interfaces.Conn. Frames pushed with deliver are read back
// in order; everything written is recorded.
type fakeConn struct {
	inbound chan result

	mu      sync.Mutex
	written []types.Envelope
	closed  chan struct{}
	once    sync.Once
}

type result struct {
	env types.Envelope
	err error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan result, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) WriteEnvelope(env types.Envelope) error {
	select {
	case <-c.closed:
		return interfaces.ErrConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, env)
	return nil
}

func (c *fakeConn) ReadEnvelope(ctx context.Context) (types.Envelope, error) {
	select {
	case r := <-c.inbound:
		return r.env, r.err
	case <-c.closed:
		return types.Envelope{}, interfaces.ErrConnClosed
	case <-ctx.Done():
		return types.Envelope{}, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(t *testing.T, event string, data any) {
	t.Helper()
	env, err := types.NewEnvelope(event, data)
	require.NoError(t, err)
	c.inbound <- result{env: env}
}

func (c *fakeConn) deliverRaw(event, data string) {
	c.inbound <- result{env: types.Envelope{Event: event, Data: json.RawMessage(data)}}
}

func (c *fakeConn) deliverErr(err error) {
	c.inbound <- result{err: err}
}

// drop simulates the server going away.
func (c *fakeConn) drop() {
	_ = c.Close()
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) writes() []types.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Envelope(nil), c.written...)
}

func (c *fakeConn) eventNames() []string {
	var names []string
	for _, env := range c.writes() {
		names = append(names, env.Event)
	}
	return names
}

// fakeDialer hands out scripted dial results in order. Once the script is exhausted
// every further dial fails.
type fakeDialer struct {
	mu     sync.Mutex
	script []dialResult
	calls  []interfaces.DialOptions
	dialed chan struct{}
}

type dialResult struct {
	conn *fakeConn
	err  error
}

var errRefused = errors.New("connection refused")

func newFakeDialer(script ...dialResult) *fakeDialer {
	return &fakeDialer{script: script, dialed: make(chan struct{}, 64)}
}

func (d *fakeDialer) Dial(ctx context.Context, opts interfaces.DialOptions) (interfaces.Conn, error) {
	d.mu.Lock()
	d.calls = append(d.calls, opts)
	var next dialResult
	if len(d.script) > 0 {
		next = d.script[0]
		d.script = d.script[1:]
	} else {
		next = dialResult{err: errRefused}
	}
	d.mu.Unlock()
	d.dialed <- struct{}{}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if next.err != nil {
		return nil, next.err
	}
	return next.conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func fastOptions() Options {
	return Options{
		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   time.Millisecond,
		ReconnectMaxDelay:    5 * time.Millisecond,
	}
}

// nextEvent waits for the next event of type T, skipping others.
func nextEvent[T Event](t *testing.T, s *Session) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "events closed while waiting")
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// waitForStatus drains events until a ConnectionChanged with status arrives.
func waitForStatus(t *testing.T, s *Session, status types.Status) types.ConnectionState {
	t.Helper()
	for {
		ev := nextEvent[ConnectionChanged](t, s)
		if ev.State.Status == status {
			return ev.State
		}
	}
}
