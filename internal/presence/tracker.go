// Package presence tracks who is typing in a thread and debounces the local indicator.
package presence

import "threadsync/pkg/types"

// Tracker is the typing set of one thread, ordered by most recent start.
// Not safe for concurrent use; the thread controller serialises access.
type Tracker struct {
	entries []types.PresenceEntry
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Apply folds one presence event into the set and reports whether it changed.
// A typing entry replaces any previous one for the participant and moves to the end.
func (t *Tracker) Apply(entry types.PresenceEntry) bool {
	if entry.ParticipantID == "" {
		return false
	}

	idx := t.indexOf(entry.ParticipantID)
	if !entry.IsTyping {
		if idx < 0 {
			return false
		}
		t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
		return true
	}

	if idx >= 0 {
		if idx == len(t.entries)-1 && t.entries[idx] == entry {
			return false
		}
		t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
	}
	t.entries = append(t.entries, entry)
	return true
}

// Current returns the typing participants in order, leaving out exclude.
func (t *Tracker) Current(exclude string) []types.PresenceEntry {
	out := make([]types.PresenceEntry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.ParticipantID != exclude {
			out = append(out, e)
		}
	}
	return out
}

// Reset empties the set.
func (t *Tracker) Reset() {
	t.entries = nil
}

// Len returns the number of typing participants.
func (t *Tracker) Len() int {
	return len(t.entries)
}

func (t *Tracker) indexOf(participantID string) int {
	for i, e := range t.entries {
		if e.ParticipantID == participantID {
			return i
		}
	}
	return -1
}
