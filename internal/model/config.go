package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the complete autoclaim configuration
type Config struct {
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" mapstructure:"embeddings"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
}

// LLMConfig selects and configures the inference backend
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds, per request
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
}

// RetrievalConfig selects and configures the document retrieval backend
type RetrievalConfig struct {
	Provider         string           `yaml:"provider" mapstructure:"provider"` // llamacloud, local
	PolicyIndex      string           `yaml:"policy_index" mapstructure:"policy_index"`
	DeclarationIndex string           `yaml:"declarations_index" mapstructure:"declarations_index"`
	RerankTopN       int              `yaml:"rerank_top_n" mapstructure:"rerank_top_n"`
	DenseTopK        int              `yaml:"dense_top_k" mapstructure:"dense_top_k"`
	LlamaCloud       LlamaCloudConfig `yaml:"llamacloud" mapstructure:"llamacloud"`
	Local            LocalIndexConfig `yaml:"local" mapstructure:"local"`
}

// LlamaCloudConfig holds managed retrieval service credentials
type LlamaCloudConfig struct {
	APIKey         string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	OrganizationID string `yaml:"organization_id" mapstructure:"organization_id"`
	ProjectName    string `yaml:"project_name" mapstructure:"project_name"`
}

// LocalIndexConfig configures the on-disk chromem corpora
type LocalIndexConfig struct {
	DataDir      string `yaml:"data_dir" mapstructure:"data_dir"`
	ChunkSize    int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	EmbedWorkers int    `yaml:"embed_workers" mapstructure:"embed_workers"`
}

// EmbeddingsConfig configures the embedder used by the local index
type EmbeddingsConfig struct {
	Provider string `yaml:"provider" mapstructure:"provider"` // openai, ollama
	Model    string `yaml:"model" mapstructure:"model"`
	APIKey   string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL  string `yaml:"base_url,omitempty" mapstructure:"base_url"`
}

// PipelineConfig bounds a single claim decision run
type PipelineConfig struct {
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ConcurrentRetrieval bool          `yaml:"concurrent_retrieval" mapstructure:"concurrent_retrieval"`
	RetrievalWorkers    int           `yaml:"retrieval_workers" mapstructure:"retrieval_workers"`
}

// RateLimitConfig applies per-service request limits. Services overrides the
// default for individual limiter keys ("llamacloud", "llm:openai", ...).
type RateLimitConfig struct {
	RequestsPerSecond float64                     `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int                         `yaml:"burst" mapstructure:"burst"`
	Services          map[string]ServiceRateLimit `yaml:"services,omitempty" mapstructure:"services"`
}

// ServiceRateLimit is the limit for one service
type ServiceRateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// CacheConfig configures the embedding and index-id caches
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// HTTPConfig applies to outbound service clients
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	HTTPProxy  string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// ServerConfig configures the upload UI
type ServerConfig struct {
	Addr            string `yaml:"addr" mapstructure:"addr"`
	AllowAllOrigins bool   `yaml:"allow_all_origins" mapstructure:"allow_all_origins"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Timeout:     60,
			MaxTokens:   1500,
			Temperature: 0.1,
		},
		Retrieval: RetrievalConfig{
			Provider:   "llamacloud",
			RerankTopN: 3,
			DenseTopK:  30,
			LlamaCloud: LlamaCloudConfig{
				BaseURL:     "https://api.cloud.llamaindex.ai",
				ProjectName: "Default",
			},
			Local: LocalIndexConfig{
				DataDir:      "./autoclaim-index",
				ChunkSize:    1500,
				EmbedWorkers: 4,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Pipeline: PipelineConfig{
			Timeout:          180 * time.Second,
			RetrievalWorkers: 4,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".autoclaim-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
		},
		HTTP: HTTPConfig{
			Timeout: 60 * time.Second,
		},
		Server: ServerConfig{
			Addr:           ":8501",
			MaxUploadBytes: 1 << 20,
		},
	}
}

// Validate reports every missing or inconsistent setting at once
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "anthropic", "claude":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider))
		}
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown llm.provider %q (supported: openai, anthropic, ollama)", c.LLM.Provider))
	}

	if c.Retrieval.PolicyIndex == "" {
		errs = append(errs, errors.New("retrieval.policy_index is required"))
	}
	if c.Retrieval.DeclarationIndex == "" {
		errs = append(errs, errors.New("retrieval.declarations_index is required"))
	}
	if c.Retrieval.RerankTopN <= 0 {
		errs = append(errs, errors.New("retrieval.rerank_top_n must be positive"))
	}

	switch strings.ToLower(c.Retrieval.Provider) {
	case "llamacloud":
		if c.Retrieval.LlamaCloud.APIKey == "" {
			errs = append(errs, errors.New("retrieval.llamacloud.api_key is required"))
		}
	case "local":
		if c.Retrieval.Local.DataDir == "" {
			errs = append(errs, errors.New("retrieval.local.data_dir is required"))
		}
		switch strings.ToLower(c.Embeddings.Provider) {
		case "openai", "":
			if c.Embeddings.APIKey == "" {
				errs = append(errs, errors.New("embeddings.api_key is required for the local index"))
			}
		case "ollama":
		default:
			errs = append(errs, fmt.Errorf("unknown embeddings.provider %q (supported: openai, ollama)", c.Embeddings.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown retrieval.provider %q (supported: llamacloud, local)", c.Retrieval.Provider))
	}

	if c.Pipeline.Timeout <= 0 {
		errs = append(errs, errors.New("pipeline.timeout must be positive"))
	}

	return errors.Join(errs...)
}
