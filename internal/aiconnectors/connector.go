package aiconnectors

import (
	"context"
	"fmt"

	"github.com/prcontext/internal/rag"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider represents an embedding provider type
type Provider string

const (
	// Provider types
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderOllama Provider = "ollama"
)

// ConnectorOptions contains options for creating an embedding connector
type ConnectorOptions struct {
	Provider   Provider `json:"provider" koanf:"provider"`
	APIKey     string   `json:"api_key" koanf:"api_key"`
	BaseURL    string   `json:"base_url,omitempty" koanf:"base_url"`
	Model      string   `json:"model,omitempty" koanf:"model"`
	Dimensions int      `json:"dimensions,omitempty" koanf:"dimensions"`
	BatchSize  int      `json:"batch_size,omitempty" koanf:"batch_size"`
}

// GetDefaultModel returns the embedding model used when none is configured
func GetDefaultModel(provider Provider) string {
	switch provider {
	case ProviderOpenAI:
		return "text-embedding-3-small"
	case ProviderGemini:
		return "text-embedding-004"
	case ProviderOllama:
		return "nomic-embed-text"
	default:
		return ""
	}
}

// GetDefaultDimensions returns the vector size of the provider's default model
func GetDefaultDimensions(provider Provider) int {
	switch provider {
	case ProviderOpenAI:
		return 1536
	case ProviderGemini, ProviderOllama:
		return 768
	default:
		return 0
	}
}

// NewEmbedder creates an embedding provider for the configured backend
func NewEmbedder(ctx context.Context, options ConnectorOptions) (*rag.LangchainEmbedder, error) {
	if options.Model == "" {
		options.Model = GetDefaultModel(options.Provider)
	}
	if options.Dimensions == 0 {
		options.Dimensions = GetDefaultDimensions(options.Provider)
	}

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Int("dimensions", options.Dimensions).
		Msg("Creating embedding connector")

	var client embeddings.EmbedderClient
	var err error
	switch options.Provider {
	case ProviderOpenAI:
		client, err = createOpenAIClient(options)
	case ProviderGemini:
		client, err = createGeminiClient(ctx, options)
	case ProviderOllama:
		client, err = createOllamaClient(options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create client for provider %s: %w", options.Provider, err)
	}

	embedOpts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if options.BatchSize > 0 {
		embedOpts = append(embedOpts, embeddings.WithBatchSize(options.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embedOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return rag.NewLangchainEmbedder(embedder, options.Model, options.Dimensions), nil
}

func createOpenAIClient(options ConnectorOptions) (*openai.LLM, error) {
	opts := []openai.Option{
		openai.WithEmbeddingModel(options.Model),
		openai.WithToken(options.APIKey),
	}

	// Add custom base URL if provided
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}

	return openai.New(opts...)
}

func createGeminiClient(ctx context.Context, options ConnectorOptions) (*googleai.GoogleAI, error) {
	return googleai.New(ctx,
		googleai.WithAPIKey(options.APIKey),
		googleai.WithDefaultEmbeddingModel(options.Model),
	)
}

func createOllamaClient(options ConnectorOptions) (*ollama.LLM, error) {
	// Set default server URL if not provided
	if options.BaseURL == "" {
		options.BaseURL = "http://localhost:11434"
	}

	return ollama.New(
		ollama.WithServerURL(options.BaseURL),
		ollama.WithModel(options.Model),
	)
}
