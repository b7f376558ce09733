package reconcile

import "threadsync/pkg/types"

// Buffer accumulates live stream messages for one thread and tells the caller whether
// an arrival actually changes the timeline.
// Not safe for concurrent use; the thread controller serialises access.
type Buffer struct {
	seen     map[string]struct{}
	snapshot []types.Message
	streamed []types.Message
}

// NewBuffer starts a buffer whose dedup set is seeded with the snapshot.
func NewBuffer(snapshot []types.Message) *Buffer {
	b := &Buffer{
		seen:     make(map[string]struct{}, len(snapshot)),
		snapshot: snapshot,
	}
	for _, m := range snapshot {
		if m.Validate() == nil {
			b.seen[types.IdentityKey(m)] = struct{}{}
		}
	}
	return b
}

// Add records m and reports whether it is a new, valid identity.
func (b *Buffer) Add(m types.Message) (bool, error) {
	if err := m.Validate(); err != nil {
		return false, err
	}
	key := types.IdentityKey(m)
	if _, dup := b.seen[key]; dup {
		return false, nil
	}
	b.seen[key] = struct{}{}
	b.streamed = append(b.streamed, m)
	return true, nil
}

// Timeline reconciles the snapshot with everything streamed so far.
func (b *Buffer) Timeline() []types.Message {
	return Reconcile(b.snapshot, b.streamed)
}

// Len returns the number of distinct streamed messages.
func (b *Buffer) Len() int {
	return len(b.streamed)
}
