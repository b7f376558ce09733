// Package reconcile merges a thread's history snapshot with its live stream into one
// deduplicated, time-ordered timeline.
package reconcile

import (
	"sort"
	"time"

	"threadsync/pkg/types"
)

// Reconcile folds snapshot and streamed into the timeline a reader should see.
//
// Malformed messages are dropped. Snapshot entries are inserted first, then streamed ones;
// a later message with an identity already present replaces the earlier value in place.
// The result is stably sorted by createdAt. A message whose createdAt does not parse
// sorts as if it carried the time of the message inserted just before it (the zero time
// when it is first), so it keeps its insertion slot among its neighbours.
//
// Reconcile never mutates its inputs and is idempotent:
// Reconcile(Reconcile(a, b), nil) equals Reconcile(a, b).
func Reconcile(snapshot, streamed []types.Message) []types.Message {
	merged := newOrderedSet(len(snapshot) + len(streamed))
	for _, m := range snapshot {
		merged.put(m)
	}
	for _, m := range streamed {
		merged.put(m)
	}
	return sortByTime(merged.items)
}

type orderedSet struct {
	index map[string]int
	items []types.Message
}

func newOrderedSet(capacity int) *orderedSet {
	return &orderedSet{
		index: make(map[string]int, capacity),
		items: make([]types.Message, 0, capacity),
	}
}

func (s *orderedSet) put(m types.Message) {
	if m.Validate() != nil {
		return
	}
	key := types.IdentityKey(m)
	if i, ok := s.index[key]; ok {
		s.items[i] = m
		return
	}
	s.index[key] = len(s.items)
	s.items = append(s.items, m)
}

type timed struct {
	msg types.Message
	at  time.Time
}

func sortByTime(msgs []types.Message) []types.Message {
	entries := make([]timed, len(msgs))
	var last time.Time
	for i, m := range msgs {
		if t, ok := m.Time(); ok {
			last = t
		}
		entries[i] = timed{msg: m, at: last}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.Before(entries[j].at)
	})

	out := make([]types.Message, len(entries))
	for i, e := range entries {
		out[i] = e.msg
	}
	return out
}
