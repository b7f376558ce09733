package natsbus

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"threadsync/pkg/interfaces"
	"threadsync/pkg/types"
)

func TestToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"fb-1", "fb-1"},
		{"64f1c0ab9e", "64f1c0ab9e"},
		{"under_score", "under_score"},
		{"has.dot", "b64-aGFzLmRvdA"},
		{"wild*", "b64-d2lsZCo"},
		{"b64-aGk", "b64-YjY0LWFHaw"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Token(tt.in), tt.in)
	}
}

func TestSubjects(t *testing.T) {
	require.Equal(t, "discussion.fb-1.events", EventsSubject("fb-1"))
	require.Equal(t, "discussion.fb-1.intents", IntentsSubject("fb-1"))
	require.Equal(t, "discussion.b64-YSBi.events", EventsSubject("a b"))
}

func TestToken_InjectiveAndSafe(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.String().Draw(rt, "a")
		b := rapid.String().Draw(rt, "b")

		ta := Token(a)
		require.Regexp(rt, `^[A-Za-z0-9_-]+$`, ta)
		if a != b {
			require.NotEqual(rt, ta, Token(b))
		}
	})
}

func newTestConn() *Conn {
	return &Conn{
		opts:   interfaces.DialOptions{ThreadID: "fb-1", ParticipantID: "p1", Role: types.RoleDesigner},
		msgs:   make(chan *nats.Msg, 4),
		closed: make(chan struct{}),
	}
}

func TestConn_ReadEnvelope(t *testing.T) {
	c := newTestConn()
	c.msgs <- &nats.Msg{Data: []byte(`{"event":"user-typing","data":{"userId":"u2","role":"developer","isTyping":true}}`)}
	c.msgs <- &nats.Msg{Data: []byte(`{"data":{}}`)}

	env, err := c.ReadEnvelope(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.EventUserTyping, env.Event)

	_, err = c.ReadEnvelope(context.Background())
	require.ErrorIs(t, err, interfaces.ErrMalformedFrame)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.ReadEnvelope(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConn_ClosedDrainsThenFails(t *testing.T) {
	c := newTestConn()
	c.msgs <- &nats.Msg{Data: []byte(`{"event":"error","data":{"message":"boom"}}`)}
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	env, err := c.ReadEnvelope(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.EventError, env.Event)

	_, err = c.ReadEnvelope(context.Background())
	require.ErrorIs(t, err, interfaces.ErrConnClosed)

	require.True(t, errors.Is(c.WriteEnvelope(types.Envelope{Event: types.EventJoin}), interfaces.ErrConnClosed))
}

func TestDialer_Unreachable(t *testing.T) {
	d := NewDialer("nats://127.0.0.1:1", 0)
	require.Equal(t, defaultBufferSize, d.bufferSize)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := d.Dial(ctx, interfaces.DialOptions{ThreadID: "fb-1", ParticipantID: "p1"})
	require.ErrorIs(t, err, ErrDialFailed)
}

func TestDialer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDialer("nats://127.0.0.1:4222", 1).Dial(ctx, interfaces.DialOptions{ThreadID: "fb-1"})
	require.ErrorIs(t, err, context.Canceled)
}

// stalledServer accepts TCP connections but never sends the NATS INFO line,
// so a client handshake hangs until its own timeout.
func stalledServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	})
	return "nats://" + ln.Addr().String()
}

func TestDialer_CancelDuringHandshake(t *testing.T) {
	d := NewDialer(stalledServer(t), 1)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := d.Dial(ctx, interfaces.DialOptions{ThreadID: "fb-1", ParticipantID: "p1"})
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second, "dial should return promptly once cancelled")
}
