package retrieval

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/ppiankov/autoclaim/internal/corpus"
)

// wordEmbedder hashes words into buckets so texts sharing words are similar
type wordEmbedder struct {
	dims int
}

func (w *wordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, w.dims)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(word, ".,:$")))
			vec[h.Sum32()%uint32(w.dims)]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			vec[0], norm = 1, 1
		}
		for j := range vec {
			vec[j] = float32(float64(vec[j]) / norm)
		}
		out[i] = vec
	}
	return out, nil
}

func (w *wordEmbedder) Dimensions() int { return w.dims }
func (w *wordEmbedder) Name() string    { return "word-hash" }

func newTestIndex(t *testing.T, name string, chunks []corpus.Chunk) *ChromemIndex {
	t.Helper()
	idx, err := NewChromemIndex(name, &wordEmbedder{dims: 256}, 0)
	if err != nil {
		t.Fatalf("NewChromemIndex: %v", err)
	}
	if err := idx.AddChunks(context.Background(), chunks, 2); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}
	return idx
}

var policyChunks = []corpus.Chunk{
	{ID: "policy.md#0", Text: "Collision coverage pays for damage from a collision with another vehicle."},
	{ID: "policy.md#1", Text: "Comprehensive coverage pays for theft, fire and hail damage."},
	{ID: "policy.md#2", Text: "Towing and labor costs are covered up to 100 dollars."},
	{ID: "policy.md#3", Text: "Rental reimbursement pays for a rental car while yours is repaired."},
	{ID: "policy.md#4", Text: "The deductible amount is subtracted from every collision settlement."},
}

func TestChromemIndex_RetrieveRanksAndTruncates(t *testing.T) {
	idx := newTestIndex(t, "policies", policyChunks)

	docs, err := idx.Retrieve(context.Background(), Query{Text: "collision coverage", TopN: 3})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("Expected 3 documents, got %d", len(docs))
	}
	if docs[0].ID != "policy.md#0" {
		t.Errorf("Expected collision clause first, got %s", docs[0].ID)
	}
	for i := 1; i < len(docs); i++ {
		if docs[i].Score > docs[i-1].Score {
			t.Errorf("Results not ordered by score: %v", docs)
		}
	}
}

func TestChromemIndex_TopKLargerThanCollection(t *testing.T) {
	idx := newTestIndex(t, "policies", policyChunks[:2])

	docs, err := idx.Retrieve(context.Background(), Query{Text: "theft", TopK: 50})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("Expected both documents, got %d", len(docs))
	}
}

func TestChromemIndex_EmptyAndFiltered(t *testing.T) {
	ctx := context.Background()

	empty := newTestIndex(t, "empty", nil)
	docs, err := empty.Retrieve(ctx, Query{Text: "anything"})
	if err != nil || len(docs) != 0 {
		t.Fatalf("Expected empty result, got %v, %v", docs, err)
	}
	if empty.IsAvailable(ctx) {
		t.Error("Expected empty index to be unavailable")
	}

	decl := newTestIndex(t, "declarations", []corpus.Chunk{
		{ID: "p55.md#0", Text: "Declarations page for P55. Collision deductible 500.", Metadata: map[string]string{"policy_number": "P55"}},
		{ID: "p77.md#0", Text: "Declarations page for P77. Collision deductible 1000.", Metadata: map[string]string{"policy_number": "P77"}},
	})

	docs, err = decl.Retrieve(ctx, Query{Text: DeclarationQuery("P55"), Filters: map[string]string{"policy_number": "P55"}})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "p55.md#0" {
		t.Errorf("Expected only P55 declarations, got %+v", docs)
	}

	docs, err = decl.Retrieve(ctx, Query{Text: DeclarationQuery("P99"), Filters: map[string]string{"policy_number": "P99"}})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("Expected no match for P99, got %+v", docs)
	}
}

func TestChromemIndex_ExportAndOpen(t *testing.T) {
	dir := t.TempDir()
	idx := newTestIndex(t, "policies", policyChunks)
	if err := idx.Export(dir); err != nil {
		t.Fatalf("Export: %v", err)
	}

	reopened, err := OpenChromemIndex(dir, "policies", &wordEmbedder{dims: 256}, 10)
	if err != nil {
		t.Fatalf("OpenChromemIndex: %v", err)
	}
	if reopened.Count() != len(policyChunks) {
		t.Errorf("Expected %d documents after import, got %d", len(policyChunks), reopened.Count())
	}

	docs, err := reopened.Retrieve(context.Background(), Query{Text: "rental car", TopN: 1})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "policy.md#3" {
		t.Errorf("Expected rental clause, got %+v", docs)
	}

	if _, err := OpenChromemIndex(dir, "missing", &wordEmbedder{dims: 256}, 0); err == nil {
		t.Error("Expected error opening an index that was never built")
	}
}

func TestTopN_TiesBrokenByID(t *testing.T) {
	docs := topN([]Document{{ID: "b", Score: 0.5}, {ID: "a", Score: 0.5}, {ID: "c", Score: 0.9}}, 2)
	if len(docs) != 2 || docs[0].ID != "c" || docs[1].ID != "a" {
		t.Errorf("unexpected order %+v", docs)
	}
}
