package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/pdfchat-core/server/internal/agent/model"
)

//go:embed template/router.txt
var routerTemplate string

//go:embed template/direct.txt
var directTemplate string

//go:embed template/rag.txt
var ragTemplate string

//go:embed template/web.txt
var webTemplate string

// RenderRouterSystem builds the routing classifier's system message.
func RenderRouterSystem(ctx context.Context, hasDocuments bool) (*schema.Message, error) {
	tmpl := prompt.FromMessages(schema.FString, schema.SystemMessage(routerTemplate))
	msgs, err := tmpl.Format(ctx, map[string]any{
		"has_documents": fmt.Sprintf("%t", hasDocuments),
	})
	if err != nil {
		return nil, fmt.Errorf("render router prompt: %w", err)
	}
	return msgs[0], nil
}

// AgentSystem returns the base system prompt for a route. The returned
// message has no template variables, scoped context is appended by the
// agent node when a document is bound.
func AgentSystem(route model.Route) *schema.Message {
	var body string
	switch route {
	case model.RouteRAG:
		body = ragTemplate
	case model.RouteWeb:
		body = webTemplate
	default:
		body = directTemplate
	}
	return schema.SystemMessage(strings.TrimSpace(body))
}
