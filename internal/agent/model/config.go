package model

import "time"

// ================ Config ================

type ConversationConfig struct {
	// TTL bounds how long idle conversation state is retained. Zero means
	// no expiry.
	TTL string `envconfig:"CONVERSATION_TTL" default:"0"`
	// CheckpointBackend selects where conversation state lives.
	CheckpointBackend string `envconfig:"CHECKPOINTER_BACKEND" default:"memory"`
	// MaxIterations caps model turns within a single user turn as a
	// safety net against runaway tool loops.
	MaxIterations int `envconfig:"CONVERSATION_MAX_ITERATIONS" default:"8"`
	// ScopedMaxRounds is how many satisfied retrieval rounds a
	// document-bound turn is granted before the next answer is final.
	ScopedMaxRounds int `envconfig:"CONVERSATION_SCOPED_MAX_ROUNDS" default:"1"`
}

type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"512"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0"`
}

type AgentModelConfig struct {
	Model       string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"AGENT_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"AGENT_TEMPERATURE" default:"0.2"`
}

type TimeoutConfig struct {
	// Model bounds every language-model call.
	Model time.Duration `envconfig:"MODEL_TIMEOUT" default:"60s"`
	// Tool bounds every tool invocation.
	Tool time.Duration `envconfig:"TOOL_TIMEOUT" default:"30s"`
}
