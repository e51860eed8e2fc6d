package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/pdfchat-core/server/internal/agent/model"
	logx "github.com/pdfchat-core/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	APIKey    string
	BaseURL   string
	RouterCfg *model.RouterModelConfig
	AgentCfg  *model.AgentModelConfig
}

// ChatModels holds the routing classifier and the answering model.
type ChatModels struct {
	Router          *gemini.ChatModel
	Agent           *gemini.ChatModel
	RouterModelName string
	AgentModelName  string
}

// NewChatModels creates the router and agent chat models over one client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	routerModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RouterCfg.Model,
		Temperature: &config.RouterCfg.Temperature,
		MaxTokens:   &config.RouterCfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, fmt.Errorf("error creating router model: %w", err)
	}

	agentModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.AgentCfg.Model,
		Temperature: &config.AgentCfg.Temperature,
		MaxTokens:   &config.AgentCfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}

	return &ChatModels{
		Router:          routerModel,
		Agent:           agentModel,
		RouterModelName: config.RouterCfg.Model,
		AgentModelName:  config.AgentCfg.Model,
	}, nil
}

// BindToolsToAgentModel binds the tool schemas to the answering model.
func (cm *ChatModels) BindToolsToAgentModel(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Agent.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to agent model")
	return nil
}
