package conversations

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/pdfchat-core/server/internal/agent/model"
	logx "github.com/pdfchat-core/server/pkg/logger"
)

// MessagesManager mediates between the engine and the checkpoint store.
type MessagesManager struct {
	repo model.CheckpointRepository
}

func NewMessagesManager(repo model.CheckpointRepository) *MessagesManager {
	return &MessagesManager{repo: repo}
}

// LoadState fetches the persisted conversation for a thread.
func (m *MessagesManager) LoadState(ctx context.Context, threadID string) (*model.ConversationState, error) {
	return m.repo.LoadState(ctx, threadID)
}

// PersistTurn appends the messages produced during one turn and records
// the scope the turn ran under.
func (m *MessagesManager) PersistTurn(ctx context.Context, threadID string, scope *model.DocumentScope, globalRAG bool, messages []*schema.Message) error {
	if len(messages) > 0 {
		if err := m.repo.AppendMessages(ctx, threadID, messages...); err != nil {
			return err
		}
	}
	if err := m.repo.SaveScope(ctx, threadID, scope, globalRAG); err != nil {
		// Scope is advisory metadata, losing it does not corrupt history.
		logx.Warn().Err(err).Str("thread_id", threadID).Msg("failed to persist scope")
	}
	return nil
}

// ClearHistory wipes a thread.
func (m *MessagesManager) ClearHistory(ctx context.Context, threadID string) error {
	return m.repo.ClearHistory(ctx, threadID)
}

// Sanitize drops messages that would make the history invalid for a
// model call: assistant messages whose tool calls were never answered,
// and tool messages whose originating call is gone.
func Sanitize(messages []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.Assistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, msg)
				continue
			}
			resolved, next := toolCallsResolved(msg, messages[i+1:])
			if !resolved {
				continue
			}
			out = append(out, msg)
			out = append(out, messages[i+1:i+1+next]...)
			i += next
		case schema.Tool:
			// Reached only when the preceding assistant message was
			// dropped or missing.
			continue
		default:
			out = append(out, msg)
		}
	}
	return out
}

// toolCallsResolved reports whether the tool messages immediately
// following an assistant message answer every one of its tool calls, and
// how many of them to consume.
func toolCallsResolved(assistant *schema.Message, rest []*schema.Message) (bool, int) {
	pending := make(map[string]bool, len(assistant.ToolCalls))
	for _, tc := range assistant.ToolCalls {
		pending[tc.ID] = true
	}

	consumed := 0
	for _, msg := range rest {
		if msg == nil || msg.Role != schema.Tool {
			break
		}
		delete(pending, msg.ToolCallID)
		consumed++
		if len(pending) == 0 {
			return true, consumed
		}
	}
	return len(pending) == 0, consumed
}
