package graph

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/pdfchat-core/server/internal/agent/graph/nodes"
	"github.com/pdfchat-core/server/internal/agent/graph/parsers"
	"github.com/pdfchat-core/server/internal/agent/graph/prompts"
	"github.com/pdfchat-core/server/internal/agent/model"
	logx "github.com/pdfchat-core/server/pkg/logger"
)

// Router classifies each turn into a route. Any classifier failure
// falls open to the direct route so a broken classifier never blocks a
// conversation.
type Router struct {
	chatModel    nodes.Generator
	hasDocuments func() bool
}

func NewRouter(chatModel nodes.Generator, hasDocuments func() bool) *Router {
	return &Router{chatModel: chatModel, hasDocuments: hasDocuments}
}

// Decide picks the route for a turn. When the boundary bound a document
// or forced global retrieval, the classifier is skipped entirely.
func (r *Router) Decide(ctx context.Context, flags model.ContextFlags, userMessage string) *model.RouteDecision {
	if flags.Forced() {
		return &model.RouteDecision{Route: model.RouteRAG, Reason: "document context present"}
	}

	system, err := prompts.RenderRouterSystem(ctx, r.hasDocuments())
	if err != nil {
		logx.Warn().Err(err).Msg("router prompt render failed, falling back to direct")
		return fallbackDecision()
	}

	out, err := r.chatModel.Generate(ctx, []*schema.Message{
		system,
		schema.UserMessage(userMessage),
	})
	if err != nil {
		logx.Warn().Err(err).Msg("router model call failed, falling back to direct")
		return fallbackDecision()
	}

	decision, err := parsers.ParseRouteDecision(out.Content)
	if err != nil {
		logx.Warn().Err(err).Str("output", out.Content).Msg("unparseable route decision, falling back to direct")
		return fallbackDecision()
	}

	logx.Debug().Str("route", string(decision.Route)).Str("reason", decision.Reason).Msg("route decided")
	return decision
}

func fallbackDecision() *model.RouteDecision {
	return &model.RouteDecision{Route: model.RouteDirect, Reason: "classifier unavailable"}
}
