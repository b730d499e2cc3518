package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/autoclaim/internal/model"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// New builds the embedder selected by cfg
func New(cfg model.EmbeddingsConfig, httpCfg model.HTTPConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI embeddings require an API key")
		}
		return NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, OpenAIModel(cfg.Model), httpCfg), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL, httpCfg), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s (supported: openai, ollama)", cfg.Provider)
	}
}
