package cache

import (
	"context"
	"time"

	"threadsync/internal/log"
	"threadsync/pkg/interfaces"
	"threadsync/pkg/types"
)

// History is a read-through cache in front of a HistorySource.
// FUNCTIONAL DISCOVERY: only successful fetches are cached. A not-found thread may be
// created at any moment and a failed fetch should be retried on the next switch
type History struct {
	source interfaces.HistorySource
	memory *Memory[[]types.Message]
}

// NewHistory wraps source. A ttl of zero or less returns source unchanged.
func NewHistory(source interfaces.HistorySource, ttl time.Duration) interfaces.HistorySource {
	if ttl <= 0 {
		return source
	}
	return &History{
		source: source,
		memory: NewMemory[[]types.Message]("history", ttl, DefaultCleanupInterval),
	}
}

// ThreadHistory serves a cached snapshot when present, otherwise fetches and stores it.
// Callers receive their own copy of the slice.
func (h *History) ThreadHistory(ctx context.Context, threadID string) ([]types.Message, error) {
	if msgs, ok := h.memory.Get(threadID); ok {
		return clone(msgs), nil
	}

	msgs, err := h.source.ThreadHistory(ctx, threadID)
	if err != nil {
		return nil, err
	}

	h.memory.Set(threadID, clone(msgs))
	log.Debug(log.CatCache, "cached thread history", "thread", threadID, "messages", len(msgs))
	return msgs, nil
}

// Invalidate forgets the snapshot of threadID.
func (h *History) Invalidate(threadID string) {
	h.memory.Delete(threadID)
}

func clone(msgs []types.Message) []types.Message {
	if msgs == nil {
		return nil
	}
	return append([]types.Message(nil), msgs...)
}
