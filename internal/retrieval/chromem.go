package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	chromem "github.com/philippgille/chromem-go"
	"github.com/ppiankov/autoclaim/internal/corpus"
	"github.com/ppiankov/autoclaim/internal/embeddings"
)

const defaultDenseTopK = 30

// ChromemIndex is a local corpus backed by a chromem-go collection
type ChromemIndex struct {
	name       string
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
	denseTopK  int
}

// NewChromemIndex creates an empty in-memory index
func NewChromemIndex(name string, embedder embeddings.Embedder, denseTopK int) (*ChromemIndex, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)

	col, err := db.GetOrCreateCollection(name, map[string]string{"embedder": embedder.Name()}, ef)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	if denseTopK <= 0 {
		denseTopK = defaultDenseTopK
	}

	return &ChromemIndex{
		name:       name,
		db:         db,
		collection: col,
		embedFunc:  ef,
		denseTopK:  denseTopK,
	}, nil
}

// OpenChromemIndex loads an index previously written by Export
func OpenChromemIndex(dataDir, name string, embedder embeddings.Embedder, denseTopK int) (*ChromemIndex, error) {
	idx, err := NewChromemIndex(name, embedder, denseTopK)
	if err != nil {
		return nil, err
	}

	path := IndexPath(dataDir, name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("index %q not built (expected %s)", name, path)
	}

	if err := idx.db.ImportFromFile(path, "", name); err != nil {
		return nil, fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection reference after import.
	col := idx.db.GetCollection(name, idx.embedFunc)
	if col == nil {
		return nil, fmt.Errorf("collection %q not found after import", name)
	}
	idx.collection = col
	return idx, nil
}

// IndexPath is the file an index named name is exported to
func IndexPath(dataDir, name string) string {
	return filepath.Join(dataDir, name+".gob.gz")
}

// Name returns the index name
func (c *ChromemIndex) Name() string {
	return c.name
}

// Count returns the number of stored chunks
func (c *ChromemIndex) Count() int {
	return c.collection.Count()
}

// IsAvailable reports whether the index holds any documents
func (c *ChromemIndex) IsAvailable(context.Context) bool {
	return c.collection.Count() > 0
}

// AddChunks embeds and stores chunks
func (c *ChromemIndex) AddChunks(ctx context.Context, chunks []corpus.Chunk, concurrency int) error {
	if len(chunks) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:       ch.ID,
			Content:  ch.Text,
			Metadata: ch.Metadata,
		}
	}
	return c.collection.AddDocuments(ctx, docs, concurrency)
}

// Export writes the index to dataDir
func (c *ChromemIndex) Export(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := c.db.ExportToFile(IndexPath(dataDir, c.name), true, "", c.name); err != nil {
		return fmt.Errorf("export index: %w", err)
	}
	return nil
}

// Retrieve runs a dense similarity search and keeps the top N candidates.
// There is no second-stage reranker; TopN only truncates the similarity order.
func (c *ChromemIndex) Retrieve(ctx context.Context, q Query) ([]Document, error) {
	count := c.collection.Count()
	if count == 0 {
		return nil, nil
	}

	k := q.TopK
	if k <= 0 {
		k = c.denseTopK
	}
	// chromem-go requires nResults <= collection size.
	k = min(k, count)

	var where map[string]string
	if len(q.Filters) > 0 {
		where = q.Filters
	}

	results, err := c.collection.Query(ctx, q.Text, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{
			ID:       r.ID,
			Text:     r.Content,
			Metadata: r.Metadata,
			Score:    float64(r.Similarity),
		}
	}

	if q.TopN > 0 {
		docs = topN(docs, q.TopN)
	}
	return docs, nil
}

// topN keeps the n best candidates. chromem already returns them by
// similarity; the sort only makes equal scores deterministic by id.
func topN(docs []Document, n int) []Document {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].ID < docs[j].ID
	})
	if len(docs) > n {
		docs = docs[:n]
	}
	return docs
}
