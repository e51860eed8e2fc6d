package model

import (
	"github.com/cloudwego/eino/schema"
)

// DocumentScope binds a conversation to a single document. The scope is
// always supplied by the boundary layer, never inferred from free text.
type DocumentScope struct {
	ID       string `json:"id,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ConversationState is the unit of execution context for one thread.
// Messages are append-only: a persisted message is never mutated or
// removed, only extended by later turns.
type ConversationState struct {
	ThreadID      string
	Messages      []*schema.Message
	Route         Route
	DocumentScope *DocumentScope
	GlobalRAG     bool
}

// TurnInput is the inbound contract for one conversational turn.
type TurnInput struct {
	ThreadID   string `json:"thread_id"`
	Message    string `json:"message"`
	DocumentID string `json:"doc_id,omitempty"`
	GlobalRAG  bool   `json:"global_rag,omitempty"`
}
