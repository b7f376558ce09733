package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"threadsync/internal/pubsub"
	"threadsync/internal/thread"
	"threadsync/pkg/types"
)

func roleLabel(r types.Role) string {
	return strings.ReplaceAll(string(r), "_", " ")
}

// formatMessage renders one timeline line. Unparseable timestamps are shown verbatim.
func formatMessage(m types.Message, now time.Time) string {
	when := m.CreatedAt
	if t, ok := m.Time(); ok {
		when = humanize.RelTime(t, now, "ago", "from now")
	}
	if when == "" {
		when = "unknown time"
	}
	return fmt.Sprintf("[%s] %s (%s)", roleLabel(m.Role), m.Text, when)
}

// formatTypers renders the remote typing line, or "" when nobody is typing.
func formatTypers(entries []types.PresenceEntry) string {
	if len(entries) == 0 {
		return ""
	}
	seen := make(map[types.Role]bool, len(entries))
	roles := make([]string, 0, len(entries))
	for _, e := range entries {
		if seen[e.Role] {
			continue
		}
		seen[e.Role] = true
		roles = append(roles, roleLabel(e.Role))
	}
	verb := "is"
	if len(entries) > 1 {
		verb = "are"
	}
	return fmt.Sprintf("%s %s typing", english.WordSeries(roles, "and"), verb)
}

// timelineView prints controller changes as an append-only log.
// FUNCTIONAL DISCOVERY: the controller publishes kinds, not values, so the view reads
// state back and prints only what it has not shown yet
type timelineView struct {
	out     io.Writer
	now     func() time.Time
	printed map[string]struct{}
	status  types.ConnectionState
	typers  string
	lastErr string
	lastSeq uint64
}

func newTimelineView(out io.Writer) *timelineView {
	return &timelineView{
		out:     out,
		now:     time.Now,
		printed: make(map[string]struct{}),
		status:  types.Disconnected(),
	}
}

// handle renders one notification. After a sequence gap every kind is re-read,
// since the dropped notifications may have carried any of them.
func (v *timelineView) handle(ev pubsub.Event[thread.Change], c *thread.Controller) {
	gap := pubsub.Gap(v.lastSeq, ev)
	v.lastSeq = ev.Seq
	v.apply(ev.Type, ev.Payload, c)
	if !gap {
		return
	}
	for _, kind := range []pubsub.EventType{thread.ChangeMessages, thread.ChangeConnection, thread.ChangePresence, thread.ChangeError} {
		if kind != ev.Type {
			v.apply(kind, ev.Payload, c)
		}
	}
}

func (v *timelineView) apply(kind pubsub.EventType, change thread.Change, c *thread.Controller) {
	switch kind {
	case thread.ChangePhase:
		switch change.Phase {
		case thread.PhaseLoading:
			fmt.Fprintf(v.out, "-- loading %s\n", change.ThreadID)
		case thread.PhaseActive:
			fmt.Fprintf(v.out, "-- joined %s\n", change.ThreadID)
		}
	case thread.ChangeMessages:
		now := v.now()
		for _, m := range c.CurrentMessages() {
			key := types.IdentityKey(m)
			if _, ok := v.printed[key]; ok {
				continue
			}
			v.printed[key] = struct{}{}
			fmt.Fprintln(v.out, formatMessage(m, now))
		}
	case thread.ChangeConnection:
		state := c.ConnectionState()
		if state == v.status {
			return
		}
		v.status = state
		fmt.Fprintf(v.out, "-- %s\n", state)
	case thread.ChangePresence:
		line := formatTypers(c.TypingParticipants())
		if line == v.typers {
			return
		}
		v.typers = line
		if line != "" {
			fmt.Fprintf(v.out, "-- %s\n", line)
		}
	case thread.ChangeError:
		msg, ok := c.LastError()
		if !ok {
			v.lastErr = ""
			return
		}
		if msg != v.lastErr {
			v.lastErr = msg
			fmt.Fprintf(v.out, "!! %s\n", msg)
		}
	}
}

// summary renders "3 messages" style counts.
func summary(n int) string {
	return english.Plural(n, "message", "")
}
