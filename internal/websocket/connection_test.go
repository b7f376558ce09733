package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"threadsync/pkg/interfaces"
	"threadsync/pkg/types"
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testPeer is a minimal server side that records the handshake query and
// lets a test script frames in both directions.
type testPeer struct {
	server *httptest.Server

	mu    sync.Mutex
	query url.Values
	conns []*websocket.Conn
	got   chan []byte
	pings chan struct{}
}

func newTestPeer(t *testing.T) *testPeer {
	t.Helper()
	p := &testPeer{got: make(chan []byte, 16), pings: make(chan struct{}, 16)}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.SetPingHandler(func(data string) error {
			select {
			case p.pings <- struct{}{}:
			default:
			}
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		p.mu.Lock()
		p.query = r.URL.Query()
		p.conns = append(p.conns, conn)
		p.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			p.got <- data
		}
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *testPeer) wsURL() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http")
}

func (p *testPeer) send(t *testing.T, raw string) {
	t.Helper()
	p.mu.Lock()
	conn := p.conns[len(p.conns)-1]
	p.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("peer write failed: %v", err)
	}
}

func (p *testPeer) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		_ = c.Close()
	}
}

func dialTest(t *testing.T, p *testPeer, opts Options) interfaces.Conn {
	t.Helper()
	d, err := NewDialer(p.wsURL(), opts)
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}
	conn, err := d.Dial(context.Background(), interfaces.DialOptions{
		ThreadID:      "fb-1",
		ParticipantID: "p-123",
		Role:          types.RoleDesigner,
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Architectural Validation Tests
func TestConnection_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Conn = &Connection{}
	var _ interfaces.Dialer = &Dialer{}
}

func TestErrors_WrapSharedSentinels(t *testing.T) {
	if !errors.Is(ErrConnectionClosed, interfaces.ErrConnClosed) {
		t.Error("ErrConnectionClosed should wrap interfaces.ErrConnClosed")
	}
	if !errors.Is(ErrInvalidJSON, interfaces.ErrMalformedFrame) {
		t.Error("ErrInvalidJSON should wrap interfaces.ErrMalformedFrame")
	}
}

// Functional Validation Tests
func TestDialer_RejectsBadEndpoints(t *testing.T) {
	for _, endpoint := range []string{"", "http://localhost:5000", "ws://", "::not a url"} {
		if _, err := NewDialer(endpoint, Options{}); !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("NewDialer(%q) = %v, want ErrInvalidEndpoint", endpoint, err)
		}
	}
}

func TestDialer_HandshakeCarriesIdentity(t *testing.T) {
	p := newTestPeer(t)
	conn := dialTest(t, p, Options{})

	// A write round-trip guarantees the handler has recorded the query.
	env, _ := types.NewEnvelope(types.EventJoin, "fb-1")
	if err := conn.WriteEnvelope(env); err != nil {
		t.Fatalf("WriteEnvelope failed: %v", err)
	}
	<-p.got

	p.mu.Lock()
	q := p.query
	p.mu.Unlock()

	if q.Get("participant_id") != "p-123" || q.Get("role") != "designer" || q.Get("thread_id") != "fb-1" {
		t.Errorf("unexpected handshake query: %v", q)
	}
}

func TestDialer_URLEscapesThreadID(t *testing.T) {
	d, err := NewDialer("ws://localhost:5000/ws?token=abc", Options{})
	if err != nil {
		t.Fatal(err)
	}
	got := d.URL(interfaces.DialOptions{ThreadID: "a b&c", ParticipantID: "p", Role: types.RoleReviewer})
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get("thread_id") != "a b&c" || u.Query().Get("token") != "abc" {
		t.Errorf("query not preserved/escaped: %s", got)
	}
}

func TestDialer_Unreachable(t *testing.T) {
	p := newTestPeer(t)
	endpoint := p.wsURL()
	p.server.Close()

	d, err := NewDialer(endpoint, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dial(context.Background(), interfaces.DialOptions{ThreadID: "fb-1"}); !errors.Is(err, ErrDialFailed) {
		t.Errorf("expected ErrDialFailed, got %v", err)
	}
}

func TestConnection_WriteEnvelope(t *testing.T) {
	p := newTestPeer(t)
	conn := dialTest(t, p, Options{})

	env, err := types.NewEnvelope(types.EventSendMessage, types.SendMessagePayload{
		ThreadID: "fb-1", Role: types.RoleDesigner, Text: "fix contrast",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteEnvelope(env); err != nil {
		t.Fatalf("WriteEnvelope failed: %v", err)
	}

	select {
	case raw := <-p.got:
		var got map[string]any
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatal(err)
		}
		data := got["data"].(map[string]any)
		if got["event"] != "send-message" || data["feedbackId"] != "fb-1" || data["message"] != "fix contrast" {
			t.Errorf("unexpected frame: %s", raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not receive frame")
	}
}

func TestConnection_ReadEnvelope(t *testing.T) {
	p := newTestPeer(t)
	conn := dialTest(t, p, Options{})

	env, _ := types.NewEnvelope(types.EventJoin, "fb-1")
	_ = conn.WriteEnvelope(env)
	<-p.got

	p.send(t, `not json`)
	p.send(t, `{"event":"user-joined","data":{"userId":"u2"}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := conn.ReadEnvelope(ctx); !errors.Is(err, interfaces.ErrMalformedFrame) {
		t.Fatalf("expected malformed frame error, got %v", err)
	}

	got, err := conn.ReadEnvelope(ctx)
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	if got.Event != types.EventUserJoined {
		t.Errorf("expected user-joined, got %q", got.Event)
	}
}

func TestConnection_ReadHonoursContext(t *testing.T) {
	p := newTestPeer(t)
	conn := dialTest(t, p, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := conn.ReadEnvelope(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestConnection_PeerCloseEndsRead(t *testing.T) {
	p := newTestPeer(t)
	conn := dialTest(t, p, Options{})

	env, _ := types.NewEnvelope(types.EventJoin, "fb-1")
	_ = conn.WriteEnvelope(env)
	<-p.got
	p.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := conn.ReadEnvelope(ctx); !errors.Is(err, interfaces.ErrConnClosed) {
		t.Errorf("expected closed connection, got %v", err)
	}
	if err := conn.WriteEnvelope(env); !errors.Is(err, interfaces.ErrConnClosed) {
		t.Errorf("write after failure should report closed, got %v", err)
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	p := newTestPeer(t)
	conn := dialTest(t, p, Options{})

	if err := conn.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	env, _ := types.NewEnvelope(types.EventTypingStop, types.TypingPayload{ThreadID: "fb-1"})
	if err := conn.WriteEnvelope(env); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_SendsPings(t *testing.T) {
	p := newTestPeer(t)
	dialTest(t, p, Options{PingInterval: 20 * time.Millisecond, ReadTimeout: time.Second})

	select {
	case <-p.pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.BufferSize != 100 || o.PingInterval != 30*time.Second || o.WriteTimeout != 10*time.Second {
		t.Errorf("unexpected defaults: %+v", o)
	}
}
