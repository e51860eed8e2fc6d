package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// CheckpointRepository persists per-thread conversation state. Two
// different thread ids never share message history or document scope.
type CheckpointRepository interface {
	// AppendMessages appends messages to the thread's history in order.
	// Persisted history is strictly append-only.
	AppendMessages(ctx context.Context, threadID string, messages ...*schema.Message) error

	// LoadState retrieves the full conversation state for a thread. A
	// thread with no history yields an empty state, not an error.
	LoadState(ctx context.Context, threadID string) (*ConversationState, error)

	// SaveScope records the most recently supplied document scope (nil
	// clears it) together with the global retrieval flag.
	SaveScope(ctx context.Context, threadID string, scope *DocumentScope, globalRAG bool) error

	// ClearHistory removes all conversation state for a thread.
	ClearHistory(ctx context.Context, threadID string) error

	// GetMessageCount returns the number of persisted messages.
	GetMessageCount(ctx context.Context, threadID string) (int, error)
}
