package interfaces

import (
	"context"

	"threadsync/pkg/types"
)

// HistorySource returns the persisted discussion of a thread.
// FUNCTIONAL DISCOVERY: an unknown thread is reported as ErrNotFound so callers
// can treat it as an empty history instead of a failed load
type HistorySource interface {
	ThreadHistory(ctx context.Context, threadID string) ([]types.Message, error)
}

// HistorySourceFunc adapts a plain function to HistorySource.
type HistorySourceFunc func(ctx context.Context, threadID string) ([]types.Message, error)

// ThreadHistory calls f.
func (f HistorySourceFunc) ThreadHistory(ctx context.Context, threadID string) ([]types.Message, error) {
	return f(ctx, threadID)
}
