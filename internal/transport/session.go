// Package transport owns the live, thread-scoped connection to the discussion server.
package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"threadsync/internal/log"
	"threadsync/internal/metrics"
	"threadsync/internal/tracing"
	"threadsync/pkg/interfaces"
	"threadsync/pkg/types"
)

// Options configure a Session. Zero delays and buffer sizes fall back to DefaultOptions.
// Zero MaxReconnectAttempts disables reconnecting and zero SendRPS disables the send limiter.
type Options struct {
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	SendRPS              float64
	SendBurst            int
	EventBuffer          int

	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   500 * time.Millisecond,
		ReconnectMaxDelay:    10 * time.Second,
		SendRPS:              5,
		SendBurst:            10,
		EventBuffer:          64,
	}
}

// Session is one thread-scoped live connection with its reconnect loop.
// ARCHITECTURAL DISCOVERY: the Session owns connection state; observers learn about
// every transition from ConnectionChanged events and never mutate it
type Session struct {
	dialer        interfaces.Dialer
	opts          Options
	participantID string
	limiter       *RateLimiter
	tracer        trace.Tracer

	mu       sync.Mutex
	threadID string
	role     types.Role
	state    types.ConnectionState
	conn     interfaces.Conn
	typing   bool
	opened   bool
	closed   bool
	cancel   context.CancelFunc

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates an unopened session with a fresh participant id.
func NewSession(dialer interfaces.Dialer, opts Options) *Session {
	def := DefaultOptions()
	if opts.ReconnectBaseDelay <= 0 {
		opts.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if opts.ReconnectMaxDelay < opts.ReconnectBaseDelay {
		opts.ReconnectMaxDelay = max(def.ReconnectMaxDelay, opts.ReconnectBaseDelay)
	}
	if opts.MaxReconnectAttempts < 0 {
		opts.MaxReconnectAttempts = 0
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Noop().Tracer()
	}

	return &Session{
		dialer:        dialer,
		opts:          opts,
		participantID: uuid.NewString(),
		limiter:       NewRateLimiter(opts.SendRPS, opts.SendBurst),
		tracer:        tracer,
		state:         types.Disconnected(),
		events:        make(chan Event, opts.EventBuffer),
		done:          make(chan struct{}),
	}
}

// ParticipantID identifies this session to the server and to presence filtering.
func (s *Session) ParticipantID() string {
	return s.participantID
}

// Events delivers inbound events in arrival order. Closed after Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current connection state.
func (s *Session) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Typing reports the local typing flag.
func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Open starts connecting to threadID as role. Transport failures never surface here;
// they appear as ConnectionChanged events. Open may be called once per session.
func (s *Session) Open(threadID string, role types.Role) error {
	if err := types.ValidateThreadID(threadID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.opened {
		return ErrAlreadyOpen
	}
	s.opened = true
	s.threadID = threadID
	s.role = role

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	log.Info(log.CatTransport, "opening session", "thread", threadID, "role", role, "participant", s.participantID)
	go s.run(ctx)
	return nil
}

// Close stops the connection loop and closes the events channel. Idempotent and
// safe to call from any goroutine, including before Open.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		opened := s.opened
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if opened {
			<-s.done
		}

		s.mu.Lock()
		s.state = types.Disconnected()
		s.typing = false
		s.mu.Unlock()
		s.opts.Metrics.ConnectionState(types.Disconnected())

		close(s.events)
		log.Debug(log.CatTransport, "session closed", "participant", s.participantID)
	})
	return nil
}

// Send transmits text as a new discussion message. It is a silent no-op when the
// text is blank, the session is not connected, or the send limiter refuses it.
func (s *Session) Send(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	conn, threadID, role, ok := s.connected()
	if !ok {
		log.Debug(log.CatTransport, "send ignored while not connected")
		return
	}
	if !s.limiter.Allow() {
		s.opts.Metrics.RateLimited()
		log.Warn(log.CatTransport, "send dropped by rate limiter", "thread", threadID)
		return
	}

	s.write(conn, types.EventSendMessage, types.SendMessagePayload{ThreadID: threadID, Role: role, Text: text})
}

// NotifyTypingStart announces local typing. Ignored while not connected.
func (s *Session) NotifyTypingStart() {
	conn, threadID, role, ok := s.connected()
	if !ok {
		return
	}
	s.mu.Lock()
	s.typing = true
	s.mu.Unlock()
	s.write(conn, types.EventTypingStart, types.TypingPayload{ThreadID: threadID, Role: role})
}

// NotifyTypingStop withdraws local typing. The wire event is only sent while connected.
func (s *Session) NotifyTypingStop() {
	s.mu.Lock()
	s.typing = false
	s.mu.Unlock()

	conn, threadID, role, ok := s.connected()
	if !ok {
		return
	}
	s.write(conn, types.EventTypingStop, types.TypingPayload{ThreadID: threadID, Role: role})
}

func (s *Session) connected() (interfaces.Conn, string, types.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil || !s.state.Connected() {
		return nil, "", "", false
	}
	return s.conn, s.threadID, s.role, true
}

func (s *Session) write(conn interfaces.Conn, event string, payload any) bool {
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		log.ErrorErr(log.CatTransport, "encode outbound event", err, "event", event)
		return false
	}
	if err := conn.WriteEnvelope(env); err != nil {
		log.Warn(log.CatTransport, "write failed", "event", event, "error", err)
		return false
	}
	s.opts.Metrics.OutboundEvent(event)
	return true
}

// run is the connection loop: dial, join, read until the link fails, back off, repeat.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	s.mu.Lock()
	threadID, role := s.threadID, s.role
	s.mu.Unlock()

	rc := newReconnector(s.opts.ReconnectBaseDelay, s.opts.ReconnectMaxDelay, s.opts.MaxReconnectAttempts)

	for {
		s.setState(ctx, types.ConnectionState{Status: types.StatusConnecting})

		conn, err := s.dial(ctx, threadID, role, rc.attempt)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn(log.CatTransport, "dial failed", "thread", threadID, "attempt", rc.attempt, "error", err)
			s.setState(ctx, types.Errored(DialFailureMessage))
			if !s.backoff(ctx, rc) {
				return
			}
			continue
		}

		rc.reset()
		err = s.serve(ctx, conn, threadID)
		if ctx.Err() != nil {
			return
		}
		log.Warn(log.CatTransport, "connection lost", "thread", threadID, "error", err)
		s.setState(ctx, types.Disconnected())
		if !s.backoff(ctx, rc) {
			return
		}
	}
}

// backoff waits before the next attempt. When the retry budget is spent it parks
// until Close, leaving the last state in place, and reports false.
func (s *Session) backoff(ctx context.Context, rc *reconnector) bool {
	if !rc.shouldRetry() {
		log.Error(log.CatTransport, "giving up reconnecting", "attempts", rc.attempt)
		<-ctx.Done()
		return false
	}
	delay := rc.nextDelay()
	s.opts.Metrics.ReconnectAttempt()
	log.Debug(log.CatTransport, "reconnecting", "attempt", rc.attempt, "delay", delay)
	return sleep(ctx, delay)
}

func (s *Session) dial(ctx context.Context, threadID string, role types.Role, attempt int) (interfaces.Conn, error) {
	ctx, span := s.tracer.Start(ctx, "transport.dial",
		trace.WithAttributes(tracing.AttrThreadID.String(threadID), tracing.AttrAttempt.Int(attempt)))
	defer span.End()

	conn, err := s.dialer.Dial(ctx, interfaces.DialOptions{
		ThreadID:      threadID,
		ParticipantID: s.participantID,
		Role:          role,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return nil, err
	}
	return conn, nil
}

// serve joins the thread on conn and pumps inbound events until conn fails or ctx ends.
func (s *Session) serve(ctx context.Context, conn interfaces.Conn, threadID string) error {
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.typing = false
		s.mu.Unlock()
		_ = conn.Close()
	}()

	// FUNCTIONAL DISCOVERY: join is re-sent on every connect so a reconnected socket is
	// put back into the thread's room before any message is sent
	if !s.write(conn, types.EventJoin, threadID) {
		return errors.New("join failed")
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(ctx, types.ConnectionState{Status: types.StatusConnected})

	for {
		env, err := conn.ReadEnvelope(ctx)
		if err != nil {
			if errors.Is(err, interfaces.ErrMalformedFrame) {
				s.opts.Metrics.MalformedDropped("frame")
				log.Warn(log.CatTransport, "dropping malformed frame", "thread", threadID, "error", err)
				continue
			}
			return err
		}

		ev, err := decodeEvent(env, threadID)
		if err != nil {
			switch {
			case errors.Is(err, ErrMalformedEvent):
				s.opts.Metrics.MalformedDropped(env.Event)
				log.Warn(log.CatTransport, "dropping malformed event", "thread", threadID, "error", err)
			default:
				log.Debug(log.CatTransport, "ignoring event", "thread", threadID, "error", err)
			}
			continue
		}

		if _, ok := ev.(MessageReceived); ok {
			s.opts.Metrics.MessageReceived()
		}
		if !s.emit(ctx, ev) {
			return ctx.Err()
		}
	}
}

func (s *Session) setState(ctx context.Context, state types.ConnectionState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.opts.Metrics.ConnectionState(state)
	log.Debug(log.CatTransport, "connection state", "state", state)
	s.emit(ctx, ConnectionChanged{State: state})
}

func (s *Session) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
