// Package testutil provides an in-process discussion server for tests: the feedback REST
// endpoint plus a websocket event server speaking the live wire protocol.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"threadsync/pkg/types"
)

const writeWait = 5 * time.Second

// Peer is a fake discussion server bound to an httptest.Server.
type Peer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	rooms    *rooms
	reject   atomic.Bool

	mu       sync.Mutex
	feedback map[string]*types.Feedback
	received []types.Envelope
	clock    func() time.Time
}

// peerConn is one client connection seen by the Peer.
type peerConn struct {
	ws            *websocket.Conn
	participantID string
	role          types.Role

	writeMu sync.Mutex
}

func (c *peerConn) send(env types.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(env)
}

// NewPeer starts a peer that is shut down when the test ends.
func NewPeer(t testing.TB) *Peer {
	t.Helper()

	p := &Peer{
		upgrader: websocket.Upgrader{
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: writeWait,
		},
		rooms:    newRooms(),
		feedback: make(map[string]*types.Feedback),
		clock:    func() time.Time { return time.Now().UTC() },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/feedback/{id}", p.handleFeedback)
	mux.HandleFunc("/ws", p.handleWebSocket)
	p.server = httptest.NewServer(mux)

	t.Cleanup(p.Close)
	return p
}

// URL is the REST base URL.
func (p *Peer) URL() string {
	return p.server.URL
}

// WebSocketURL is the live endpoint.
func (p *Peer) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http") + "/ws"
}

// Close drops every connection and stops the server.
func (p *Peer) Close() {
	p.DropConnections()
	p.server.Close()
}

// SetClock overrides the createdAt stamp given to sent messages.
func (p *Peer) SetClock(clock func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
}

// AddFeedback stores a feedback document served by the REST endpoint.
func (p *Peer) AddFeedback(fb types.Feedback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored := fb
	stored.Discussions = append([]types.Message(nil), fb.Discussions...)
	p.feedback[fb.ID] = &stored
}

// Discussion returns the persisted messages of threadID.
func (p *Peer) Discussion(threadID string) []types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	fb, ok := p.feedback[threadID]
	if !ok {
		return nil
	}
	return append([]types.Message(nil), fb.Discussions...)
}

// Received lists every envelope clients sent, in arrival order.
func (p *Peer) Received() []types.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Envelope(nil), p.received...)
}

// ReceivedEvents lists the event names of Received.
func (p *Peer) ReceivedEvents() []string {
	var names []string
	for _, env := range p.Received() {
		names = append(names, env.Event)
	}
	return names
}

// Members counts participants joined to threadID.
func (p *Peer) Members(threadID string) int {
	return p.rooms.count(threadID)
}

// RejectConnections makes the websocket endpoint answer 503 while set.
func (p *Peer) RejectConnections(reject bool) {
	p.reject.Store(reject)
}

// DropConnections closes every live socket without a close handshake.
func (p *Peer) DropConnections() {
	for _, conn := range p.rooms.all() {
		_ = conn.ws.Close()
	}
}

// Broadcast sends event to every participant in threadID.
func (p *Peer) Broadcast(threadID, event string, payload any) error {
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	p.fanOut(threadID, "", env)
	return nil
}

func (p *Peer) fanOut(threadID, except string, env types.Envelope) {
	for _, conn := range p.rooms.members(threadID, except) {
		_ = conn.send(env)
	}
}

func (p *Peer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	p.mu.Lock()
	fb, ok := p.feedback[id]
	var body []byte
	if ok {
		body, _ = json.Marshal(fb)
	}
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Feedback not found"}`))
		return
	}
	_, _ = w.Write(body)
}

func (p *Peer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if p.reject.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	participantID := query.Get("participant_id")
	role := query.Get("role")
	if participantID == "" || role == "" {
		http.Error(w, "Missing required query parameters: participant_id, role", http.StatusBadRequest)
		return
	}

	ws, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &peerConn{ws: ws, participantID: participantID, role: types.Role(role)}
	defer func() {
		p.rooms.leave(conn)
		_ = ws.Close()
	}()

	for {
		var env types.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			return
		}

		p.mu.Lock()
		p.received = append(p.received, env)
		p.mu.Unlock()

		p.dispatch(conn, env)
	}
}

// dispatch applies one client intent the way the discussion server does.
func (p *Peer) dispatch(conn *peerConn, env types.Envelope) {
	switch env.Event {
	case types.EventJoin:
		var threadID string
		if err := json.Unmarshal(env.Data, &threadID); err != nil || threadID == "" {
			p.reply(conn, "Invalid feedback id")
			return
		}
		if replaced := p.rooms.join(threadID, conn); replaced != nil {
			_ = replaced.ws.Close()
		}
		joined, _ := types.NewEnvelope(types.EventUserJoined, types.UserJoinedPayload{ParticipantID: conn.participantID})
		p.fanOut(threadID, conn.participantID, joined)

	case types.EventSendMessage:
		var in types.SendMessagePayload
		if err := json.Unmarshal(env.Data, &in); err != nil || in.ThreadID == "" {
			p.reply(conn, "Invalid message")
			return
		}
		msg := p.persist(in)
		out, _ := types.NewEnvelope(types.EventNewMessage, types.NewMessagePayload{
			ID:         msg.ID,
			ThreadID:   in.ThreadID,
			Discussion: &msg,
		})
		p.fanOut(in.ThreadID, "", out)

	case types.EventTypingStart, types.EventTypingStop:
		var in types.TypingPayload
		if err := json.Unmarshal(env.Data, &in); err != nil || in.ThreadID == "" {
			p.reply(conn, "Invalid typing event")
			return
		}
		out, _ := types.NewEnvelope(types.EventUserTyping, types.PresenceEntry{
			ParticipantID: conn.participantID,
			Role:          in.Role,
			IsTyping:      env.Event == types.EventTypingStart,
		})
		p.fanOut(in.ThreadID, conn.participantID, out)

	default:
		p.reply(conn, "Unknown event: "+env.Event)
	}
}

func (p *Peer) persist(in types.SendMessagePayload) types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := types.Message{
		ID:        uuid.NewString(),
		Role:      in.Role,
		Text:      in.Text,
		CreatedAt: p.clock().Format(time.RFC3339Nano),
	}
	fb, ok := p.feedback[in.ThreadID]
	if !ok {
		fb = &types.Feedback{ID: in.ThreadID}
		p.feedback[in.ThreadID] = fb
	}
	fb.Discussions = append(fb.Discussions, msg)
	return msg
}

func (p *Peer) reply(conn *peerConn, message string) {
	env, _ := types.NewEnvelope(types.EventError, types.ErrorPayload{Message: message})
	_ = conn.send(env)
}
