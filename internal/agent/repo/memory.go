package repo

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/pdfchat-core/server/internal/agent/model"
)

// MemoryCheckpointStore keeps conversation state in process memory. It is
// the default checkpoint backend and the one used by tests.
type MemoryCheckpointStore struct {
	mu      sync.RWMutex
	threads map[string]*memoryThread
}

type memoryThread struct {
	messages  []*schema.Message
	scope     *model.DocumentScope
	globalRAG bool
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{threads: make(map[string]*memoryThread)}
}

func (m *MemoryCheckpointStore) thread(threadID string) *memoryThread {
	t, ok := m.threads[threadID]
	if !ok {
		t = &memoryThread{}
		m.threads[threadID] = t
	}
	return t
}

func (m *MemoryCheckpointStore) AppendMessages(ctx context.Context, threadID string, messages ...*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.thread(threadID)
	t.messages = append(t.messages, messages...)
	return nil
}

func (m *MemoryCheckpointStore) LoadState(ctx context.Context, threadID string) (*model.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &model.ConversationState{ThreadID: threadID, Messages: []*schema.Message{}}
	t, ok := m.threads[threadID]
	if !ok {
		return st, nil
	}
	st.Messages = append(st.Messages, t.messages...)
	st.DocumentScope = t.scope
	st.GlobalRAG = t.globalRAG
	return st, nil
}

func (m *MemoryCheckpointStore) SaveScope(ctx context.Context, threadID string, scope *model.DocumentScope, globalRAG bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.thread(threadID)
	t.scope = scope
	t.globalRAG = globalRAG
	return nil
}

func (m *MemoryCheckpointStore) ClearHistory(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

func (m *MemoryCheckpointStore) GetMessageCount(ctx context.Context, threadID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threads[threadID]
	if !ok {
		return 0, nil
	}
	return len(t.messages), nil
}

var _ model.CheckpointRepository = (*MemoryCheckpointStore)(nil)
