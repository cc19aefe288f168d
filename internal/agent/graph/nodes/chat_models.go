package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/ollama/api"
	"google.golang.org/genai"

	"github.com/prodscout/server/internal/agent/model"
	logx "github.com/prodscout/server/pkg/logger"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	Provider  model.ProviderConfig
	IntentCfg *model.IntentModelConfig
	RespCfg   *model.ResponseModelConfig
}

// ChatModels holds the pipeline's chat model instances. Intent serves the
// router and planner stages; Retriever gets the retrieval tools bound;
// Answer shares the response tuning but stays unbound.
type ChatModels struct {
	Intent    einomodel.ToolCallingChatModel
	Retriever einomodel.ToolCallingChatModel
	Answer    einomodel.ToolCallingChatModel
	ModelName string
}

// NewChatModels creates the pipeline chat models for the configured provider.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.IntentCfg == nil || config.RespCfg == nil {
		return nil, fmt.Errorf("model stage configs are nil")
	}

	f, modelName, err := newModelFactory(ctx, config.Provider)
	if err != nil {
		return nil, err
	}

	intentModel, err := f(ctx, config.IntentCfg.Temperature, config.IntentCfg.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating intent model")
		return nil, fmt.Errorf("error creating intent model: %w", err)
	}
	retrieverModel, err := f(ctx, config.RespCfg.Temperature, config.RespCfg.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating retriever model")
		return nil, fmt.Errorf("error creating retriever model: %w", err)
	}
	answerModel, err := f(ctx, config.RespCfg.Temperature, config.RespCfg.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating answer model")
		return nil, fmt.Errorf("error creating answer model: %w", err)
	}

	return &ChatModels{
		Intent:    intentModel,
		Retriever: retrieverModel,
		Answer:    answerModel,
		ModelName: modelName,
	}, nil
}

type modelFactory func(ctx context.Context, temperature float32, maxTokens int) (einomodel.ToolCallingChatModel, error)

func newModelFactory(ctx context.Context, p model.ProviderConfig) (modelFactory, string, error) {
	switch strings.ToLower(p.Name) {
	case ProviderOpenAI:
		if p.OpenAI.APIKey == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return func(ctx context.Context, temperature float32, maxTokens int) (einomodel.ToolCallingChatModel, error) {
			return openai.NewChatModel(ctx, &openai.ChatModelConfig{
				APIKey:      p.OpenAI.APIKey,
				BaseURL:     p.OpenAI.BaseURL,
				Model:       p.OpenAI.Model,
				Temperature: &temperature,
				MaxTokens:   &maxTokens,
			})
		}, p.OpenAI.Model, nil

	case ProviderOllama:
		return func(ctx context.Context, temperature float32, maxTokens int) (einomodel.ToolCallingChatModel, error) {
			return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
				BaseURL:  p.Ollama.BaseURL,
				Model:    p.Ollama.Model,
				Thinking: &api.ThinkValue{Value: false},
			})
		}, p.Ollama.Model, nil

	case ProviderGemini:
		if p.Gemini.APIKey == "" {
			return nil, "", fmt.Errorf("GEMINI_API_KEY is not set")
		}
		clientCfg := &genai.ClientConfig{
			APIKey:  p.Gemini.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
		if p.Gemini.BaseURL != "" {
			clientCfg.HTTPOptions.BaseURL = p.Gemini.BaseURL
		}
		client, err := genai.NewClient(ctx, clientCfg)
		if err != nil {
			logx.Error().Err(err).Msg("Error creating Gemini client")
			return nil, "", fmt.Errorf("error creating Gemini client: %w", err)
		}
		return func(ctx context.Context, temperature float32, maxTokens int) (einomodel.ToolCallingChatModel, error) {
			return gemini.NewChatModel(ctx, &gemini.Config{
				Client:      client,
				Model:       p.Gemini.Model,
				Temperature: &temperature,
				MaxTokens:   &maxTokens,
				ThinkingConfig: &genai.ThinkingConfig{
					IncludeThoughts: false,
					ThinkingBudget:  genai.Ptr(int32(0)),
				},
			})
		}, p.Gemini.Model, nil

	default:
		return nil, "", fmt.Errorf("unknown MODEL_PROVIDER %q: use openai, ollama or gemini", p.Name)
	}
}

// BindToolsToRetrieverModel binds the retrieval tools to the retriever model.
func (cm *ChatModels) BindToolsToRetrieverModel(ctx context.Context, tools []*schema.ToolInfo) error {
	bound, err := cm.Retriever.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	cm.Retriever = bound

	logx.Debug().Msg("Successfully bound tools to retriever model")
	return nil
}
