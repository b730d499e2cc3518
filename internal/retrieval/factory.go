package retrieval

import (
	"fmt"
	"strings"

	"github.com/ppiankov/autoclaim/internal/cache"
	"github.com/ppiankov/autoclaim/internal/embeddings"
	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/worker"
)

// NewServiceFromConfig opens the configured backend for both corpora.
// The local backend needs an embedder; the managed backend ignores it.
func NewServiceFromConfig(cfg *model.Config, embedder embeddings.Embedder, limiter *worker.Limiter, c cache.Cache) (*Service, error) {
	rc := cfg.Retrieval

	switch strings.ToLower(rc.Provider) {
	case "llamacloud", "":
		open := func(name string) (Index, error) {
			return NewLlamaCloudIndex(LlamaCloudOptions{
				IndexName:      name,
				APIKey:         rc.LlamaCloud.APIKey,
				BaseURL:        rc.LlamaCloud.BaseURL,
				OrganizationID: rc.LlamaCloud.OrganizationID,
				ProjectName:    rc.LlamaCloud.ProjectName,
				DenseTopK:      rc.DenseTopK,
				HTTP:           cfg.HTTP,
				Limiter:        limiter,
				Cache:          c,
			})
		}
		policy, err := open(rc.PolicyIndex)
		if err != nil {
			return nil, fmt.Errorf("policy index: %w", err)
		}
		declarations, err := open(rc.DeclarationIndex)
		if err != nil {
			return nil, fmt.Errorf("declarations index: %w", err)
		}
		return NewService(policy, declarations, rc.RerankTopN), nil

	case "local":
		if embedder == nil {
			return nil, fmt.Errorf("local retrieval requires an embedder")
		}
		policy, err := OpenChromemIndex(rc.Local.DataDir, rc.PolicyIndex, embedder, rc.DenseTopK)
		if err != nil {
			return nil, fmt.Errorf("policy index: %w", err)
		}
		declarations, err := OpenChromemIndex(rc.Local.DataDir, rc.DeclarationIndex, embedder, rc.DenseTopK)
		if err != nil {
			return nil, fmt.Errorf("declarations index: %w", err)
		}
		return NewService(policy, declarations, rc.RerankTopN), nil

	default:
		return nil, fmt.Errorf("unknown retrieval provider: %s (supported: llamacloud, local)", rc.Provider)
	}
}
