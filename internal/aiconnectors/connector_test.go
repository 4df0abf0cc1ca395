package aiconnectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	tests := []struct {
		provider Provider
		model    string
		dims     int
	}{
		{ProviderOpenAI, "text-embedding-3-small", 1536},
		{ProviderGemini, "text-embedding-004", 768},
		{ProviderOllama, "nomic-embed-text", 768},
		{Provider("unknown"), "", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.model, GetDefaultModel(tt.provider), tt.provider)
		assert.Equal(t, tt.dims, GetDefaultDimensions(tt.provider), tt.provider)
	}
}

func TestNewEmbedder_UnsupportedProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), ConnectorOptions{Provider: "claude"})
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestNewEmbedder_Ollama(t *testing.T) {
	e, err := NewEmbedder(context.Background(), ConnectorOptions{Provider: ProviderOllama})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", e.DefaultModel())
	assert.Equal(t, 768, e.DefaultSize())
}
