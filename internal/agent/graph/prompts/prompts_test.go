package prompts

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdfchat-core/server/internal/agent/model"
)

func TestRenderRouterSystem(t *testing.T) {
	msg, err := RenderRouterSystem(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, schema.System, msg.Role)
	assert.Contains(t, msg.Content, "Uploaded documents available: true")
	assert.Contains(t, msg.Content, `"route"`)

	msg, err = RenderRouterSystem(context.Background(), false)
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "Uploaded documents available: false")
}

func TestAgentSystemPerRoute(t *testing.T) {
	rag := AgentSystem(model.RouteRAG)
	assert.Equal(t, schema.System, rag.Role)
	assert.Contains(t, rag.Content, "retrieve")

	web := AgentSystem(model.RouteWeb)
	assert.Contains(t, web.Content, "web_search")

	direct := AgentSystem(model.RouteDirect)
	assert.NotContains(t, direct.Content, "web_search")

	// anything unrecognized behaves like direct
	assert.Equal(t, direct.Content, AgentSystem(model.Route("mystery")).Content)
}
