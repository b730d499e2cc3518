package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/autoclaim/internal/cache"
	"github.com/ppiankov/autoclaim/internal/embeddings"
	"github.com/ppiankov/autoclaim/internal/llm"
	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/pipeline"
	"github.com/ppiankov/autoclaim/internal/retrieval"
	"github.com/ppiankov/autoclaim/internal/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// setDefaults registers every default config key so env variables and
// flags can override keys that appear in no config file.
func setDefaults(v *viper.Viper) {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	flattenDefaults(v, "", tree)
}

func flattenDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			flattenDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// loadConfig resolves the configuration from flags, env, file, and defaults
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Provider-specific key names, as used by each vendor's own tooling
	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.LLM.BaseURL == "" && strings.EqualFold(cfg.LLM.Provider, "ollama") {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.Embeddings.BaseURL == "" && strings.EqualFold(cfg.Embeddings.Provider, "ollama") {
		cfg.Embeddings.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}

	return cfg, nil
}

// app holds the wired components for one command invocation
type app struct {
	cfg       *model.Config
	logger    *logrus.Logger
	limiter   *worker.Limiter
	cache     cache.Cache
	provider  llm.Provider
	generator *llm.Generator
	embedder  embeddings.Embedder
	retrieval *retrieval.Service
	pipeline  *pipeline.Pipeline
}

// newApp validates cfg and wires inference, retrieval, and the pipeline
func newApp(cfg *model.Config, logger *logrus.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		limiter: newLimiter(cfg.RateLimit),
		cache:   cache.FromConfig(cfg.Cache),
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg))
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	a.provider = llm.WithRateLimit(provider, a.limiter)
	a.generator = llm.NewGenerator(a.provider, llm.ConfigFromModel(cfg), logger)

	if strings.EqualFold(cfg.Retrieval.Provider, "local") {
		if a.embedder, err = a.newEmbedder(); err != nil {
			return nil, err
		}
	}

	a.retrieval, err = retrieval.NewServiceFromConfig(cfg, a.embedder, a.limiter, a.cache)
	if err != nil {
		return nil, fmt.Errorf("create retrieval service: %w", err)
	}

	a.pipeline = pipeline.New(a.retrieval, a.generator, pipeline.OptionsFromConfig(cfg.Pipeline, logger))
	return a, nil
}

// newEmbedder builds the configured embedder behind the embedding cache
func (a *app) newEmbedder() (embeddings.Embedder, error) {
	e, err := embeddings.New(a.cfg.Embeddings, a.cfg.HTTP)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return embeddings.NewCachedEmbedder(e, a.cache, a.cfg.Cache.DiskTTL), nil
}

// newLimiter builds the shared limiter with per-service overrides applied
func newLimiter(cfg model.RateLimitConfig) *worker.Limiter {
	limiter := worker.NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	for key, svc := range cfg.Services {
		limiter.SetRate(key, svc.RequestsPerSecond, svc.Burst)
	}
	return limiter
}
