package retrieval

import (
	"context"
)

// Document is a retrieved passage. IDs are stable within an index.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Query describes one retrieval request
type Query struct {
	Text string

	// TopK bounds the dense candidate set; 0 uses the index default
	TopK int

	// TopN keeps the N most relevant results. LlamaCloud reranks before
	// truncating; the local index truncates its similarity order. 0 keeps all.
	TopN int

	// Filters are exact-match metadata constraints, all of which must hold
	Filters map[string]string
}

// Index is a searchable corpus
type Index interface {
	// Name returns the index name
	Name() string

	// Retrieve returns documents ordered by relevance. An empty result is not an error.
	Retrieve(ctx context.Context, q Query) ([]Document, error)

	// IsAvailable checks if the index is reachable and populated
	IsAvailable(ctx context.Context) bool
}
