package nodes

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	errx "github.com/pdfchat-core/server/internal/core/error"

	"github.com/pdfchat-core/server/internal/agent/graph/conversations"
	"github.com/pdfchat-core/server/internal/agent/model"
	logx "github.com/pdfchat-core/server/pkg/logger"
)

// Generator is the chat-model surface the nodes need.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error)
}

// AgentNode runs the answering model over the sanitized history.
type AgentNode struct {
	chatModel Generator
	modelName string
}

func NewAgentNode(chatModel Generator, modelName string) *AgentNode {
	return &AgentNode{chatModel: chatModel, modelName: modelName}
}

// Step generates the next assistant message. The history is sanitized
// first so unresolved tool calls never reach the model.
func (n *AgentNode) Step(ctx context.Context, system *schema.Message, history []*schema.Message) (*schema.Message, error) {
	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, system)
	messages = append(messages, conversations.Sanitize(history)...)

	out, err := n.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, errx.WrapModel(fmt.Errorf("agent model generate: %w", err))
	}

	normalizeToolCallIDs(out)
	n.logUsage(out)
	return out, nil
}

// normalizeToolCallIDs assigns IDs to tool calls left blank by the
// provider so tool results can be matched back to their requests.
func normalizeToolCallIDs(msg *schema.Message) {
	if msg == nil {
		return
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = uuid.NewString()
		}
	}
}

func (n *AgentNode) logUsage(out *schema.Message) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	pricing := model.ResolvePricing(n.modelName)
	inC, outC, totalC := model.ComputeCost(usage, pricing)
	logx.Debug().
		Str("model", n.modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
