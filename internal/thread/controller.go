// Package thread binds one discussion thread at a time to a history snapshot and a live
// session and exposes the merged, deduplicated view.
package thread

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"threadsync/internal/log"
	"threadsync/internal/metrics"
	"threadsync/internal/presence"
	"threadsync/internal/pubsub"
	"threadsync/internal/reconcile"
	"threadsync/internal/transport"
	"threadsync/pkg/interfaces"
	"threadsync/pkg/types"
)

// Options configure a Controller.
type Options struct {
	Role        types.Role
	QuietPeriod time.Duration
	Metrics     *metrics.Metrics
}

// Controller is the single entry point for one discussion view.
// ARCHITECTURAL DISCOVERY: every handler runs to completion under mu and inbound session
// events are applied by one pump goroutine per thread, so the view only changes in
// delivery order. A generation counter bumped on every switch makes late fetch results
// and events from a closed session no-ops
type Controller struct {
	history    interfaces.HistorySource
	newSession SessionFactory
	opts       Options
	broker     *pubsub.Broker[Change]

	mu          sync.Mutex
	gen         uint64
	phase       Phase
	threadID    string
	session     Session
	typing      *presence.Debouncer
	buffer      *reconcile.Buffer
	timeline    []types.Message
	tracker     *presence.Tracker
	conn        types.ConnectionState
	lastError   string
	hasError    bool
	draft       string
	cancelFetch context.CancelFunc
}

// NewController creates an idle controller.
func NewController(history interfaces.HistorySource, newSession SessionFactory, opts Options) *Controller {
	if opts.Role == "" {
		opts.Role = types.RoleDeveloper
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = presence.DefaultQuietPeriod
	}
	return &Controller{
		history:    history,
		newSession: newSession,
		opts:       opts,
		broker:     pubsub.NewBroker[Change](),
		tracker:    presence.NewTracker(),
		conn:       types.Disconnected(),
	}
}

// Subscribe delivers change notifications until ctx ends.
func (c *Controller) Subscribe(ctx context.Context) <-chan pubsub.Event[Change] {
	return c.broker.Subscribe(ctx)
}

// CurrentMessages returns the reconciled timeline.
func (c *Controller) CurrentMessages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.timeline...)
}

// ConnectionState mirrors the session's last reported state.
func (c *Controller) ConnectionState() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// TypingParticipants lists remote typers in arrival order, never including this participant.
func (c *Controller) TypingParticipants() []types.PresenceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	self := ""
	if c.session != nil {
		self = c.session.ParticipantID()
	}
	return c.tracker.Current(self)
}

// LocalTyping reports whether this participant is currently announced as typing.
func (c *Controller) LocalTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing != nil && c.typing.Active()
}

// LastError returns the last error shown to the user, if any.
func (c *Controller) LastError() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError, c.hasError
}

// Phase returns the lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// ThreadID returns the bound thread, or "" when idle.
func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// Draft returns the outbound draft.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SwitchThread tears down the current thread and starts loading threadID. The snapshot
// is fetched in the background with ctx; the session opens once it has been applied.
func (c *Controller) SwitchThread(ctx context.Context, threadID string) error {
	if err := types.ValidateThreadID(threadID); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()

	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	c.threadID = threadID
	c.phase = PhaseLoading
	gen := c.gen

	log.Info(log.CatThread, "switching thread", "thread", threadID)
	c.publish(ChangePhase)

	go c.load(fetchCtx, gen, threadID)
	return nil
}

// Close unbinds the controller: the session is closed, the fetch and typing timer are
// cancelled, and the controller returns to PhaseIdle. Safe to call repeatedly.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.threadID == "" && c.phase == PhaseIdle {
		return nil
	}
	err := c.teardownLocked()
	c.threadID = ""
	c.phase = PhaseIdle
	c.publish(ChangePhase)
	return err
}

// Send submits text to the live thread. Blank text is ignored. Nothing is appended
// locally; the message shows up when the server echoes it back. Send never reports
// transport problems; a disconnected session drops the text silently.
func (c *Controller) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.threadID == "" {
		return ErrNoActiveThread
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if c.session != nil {
		c.session.Send(text)
	}
	c.draft = ""
	if c.typing != nil {
		c.typing.Stop()
	}
	return nil
}

// UpdateDraft stores the draft and drives the local typing indicator.
func (c *Controller) UpdateDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.draft = text
	if c.typing == nil {
		return
	}
	if strings.TrimSpace(text) != "" {
		c.typing.Touch()
	} else {
		c.typing.Stop()
	}
}

// ClearError hides the last error. The connection is left alone.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearErrorLocked()
}

func (c *Controller) clearErrorLocked() {
	if !c.hasError {
		return
	}
	c.lastError = ""
	c.hasError = false
	c.publish(ChangeError)
}

// teardownLocked releases everything bound to the current thread. Callers hold mu.
func (c *Controller) teardownLocked() error {
	c.gen++

	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}
	if c.typing != nil {
		c.typing.Cancel()
		c.typing = nil
	}

	var err error
	if c.session != nil {
		err = c.session.Close()
		c.session = nil
	}

	hadThread := c.threadID != ""
	c.buffer = nil
	c.timeline = nil
	c.tracker.Reset()
	c.conn = types.Disconnected()
	c.lastError = ""
	c.hasError = false
	c.draft = ""

	if hadThread {
		log.Debug(log.CatThread, "thread closed", "thread", c.threadID)
		c.phase = PhaseClosed
		c.publish(ChangePhase)
	}
	return err
}

// load fetches the snapshot for gen and, if gen is still current, activates the thread.
func (c *Controller) load(ctx context.Context, gen uint64, threadID string) {
	snapshot, err := c.history.ThreadHistory(ctx, threadID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		log.Debug(log.CatThread, "discarding stale history", "thread", threadID)
		return
	}
	c.cancelFetch = nil

	switch {
	case err == nil:
	case errors.Is(err, interfaces.ErrNotFound):
		log.Info(log.CatThread, "thread has no history", "thread", threadID)
		snapshot = nil
	default:
		log.Warn(log.CatThread, "history unavailable, starting empty", "thread", threadID, "error", err)
		snapshot = nil
	}

	c.buffer = reconcile.NewBuffer(snapshot)
	c.timeline = c.buffer.Timeline()
	if dropped := len(snapshot) - len(c.timeline); dropped > 0 {
		log.Warn(log.CatThread, "dropped invalid or duplicate history entries", "thread", threadID, "count", dropped)
	}

	session := c.newSession()
	c.session = session
	c.typing = presence.NewDebouncer(c.opts.QuietPeriod, session.NotifyTypingStart, session.NotifyTypingStop)
	c.phase = PhaseActive

	if err := session.Open(threadID, c.opts.Role); err != nil {
		log.ErrorErr(log.CatThread, "open session", err, "thread", threadID)
	}
	go c.pump(gen, session)

	log.Info(log.CatThread, "thread active", "thread", threadID, "history", len(c.timeline))
	c.publish(ChangeMessages)
	c.publish(ChangePhase)
}

// pump applies session events in delivery order until the session closes.
func (c *Controller) pump(gen uint64, session Session) {
	for ev := range session.Events() {
		c.apply(gen, ev)
	}
}

func (c *Controller) apply(gen uint64, ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	switch e := ev.(type) {
	case transport.MessageReceived:
		added, err := c.buffer.Add(e.Message)
		if err != nil {
			c.opts.Metrics.MalformedDropped(types.EventNewMessage)
			log.Warn(log.CatThread, "dropping malformed message", "thread", c.threadID, "error", err)
			return
		}
		if !added {
			c.opts.Metrics.DuplicateDropped()
			log.Debug(log.CatThread, "duplicate message suppressed", "thread", c.threadID)
			return
		}
		c.timeline = c.buffer.Timeline()
		c.publish(ChangeMessages)

	case transport.PresenceChanged:
		if c.tracker.Apply(e.Entry) {
			c.publish(ChangePresence)
		}

	case transport.PeerJoined:
		log.Info(log.CatThread, "participant joined", "thread", c.threadID, "participant", e.ParticipantID)

	case transport.ErrorReported:
		c.setErrorLocked(e.Message)

	case transport.ConnectionChanged:
		c.conn = e.State
		c.publish(ChangeConnection)
		switch e.State.Status {
		case types.StatusErrored:
			c.setErrorLocked(e.State.Message)
		case types.StatusConnected:
			// A successful connect supersedes whatever went wrong before it.
			c.clearErrorLocked()
		}
	}
}

func (c *Controller) setErrorLocked(msg string) {
	c.lastError = msg
	c.hasError = true
	log.Warn(log.CatThread, "thread error", "thread", c.threadID, "message", msg)
	c.publish(ChangeError)
}

func (c *Controller) publish(kind pubsub.EventType) {
	c.broker.Publish(kind, Change{ThreadID: c.threadID, Phase: c.phase})
}
