package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/finbuddy-intake-core/server/internal/agent/model"
	logx "github.com/finbuddy-intake-core/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey          string
	BaseURL         string
	ConversationCfg *model.ConversationModelConfig
	ExtractionCfg   *model.ExtractionModelConfig
	LLM             model.LLMConfig
}

// ChatModels holds the conversation and extraction chat models. Both share one
// rate limiter and are wrapped with retry.
type ChatModels struct {
	Conversation          einomodel.BaseChatModel
	Extraction            einomodel.BaseChatModel
	ConversationModelName string
	ExtractionModelName   string
}

// NewChatModels creates both Gemini chat models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.ConversationCfg == nil || config.ExtractionCfg == nil {
		return nil, fmt.Errorf("chat model config is nil")
	}

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

	// Conversation model: full temperature, short thinking budget
	conversation, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ConversationCfg.Model,
		Temperature: &config.ConversationCfg.Temperature,
		MaxTokens:   &config.ConversationCfg.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating conversation model")
		return nil, fmt.Errorf("error creating conversation model: %w", err)
	}

	// Extraction model: deterministic JSON output
	extraction, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.ExtractionCfg.Model,
		Temperature: &config.ExtractionCfg.Temperature,
		MaxTokens:   &config.ExtractionCfg.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating extraction model")
		return nil, fmt.Errorf("error creating extraction model: %w", err)
	}

	limiter := NewLimiter(config.LLM.RequestsPerMinute)
	return &ChatModels{
		Conversation:          NewResilientChatModel(conversation, config.ConversationCfg.Model, limiter, config.LLM),
		Extraction:            NewResilientChatModel(extraction, config.ExtractionCfg.Model, limiter, config.LLM),
		ConversationModelName: config.ConversationCfg.Model,
		ExtractionModelName:   config.ExtractionCfg.Model,
	}, nil
}
