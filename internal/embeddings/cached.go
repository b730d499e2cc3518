package embeddings

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ppiankov/autoclaim/internal/cache"
)

// CachedEmbedder memoizes vectors per model and text
type CachedEmbedder struct {
	inner Embedder
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedEmbedder wraps inner with c. A zero ttl uses the cache default.
func NewCachedEmbedder(inner Embedder, c cache.Cache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl}
}

func (e *CachedEmbedder) Name() string {
	return e.inner.Name()
}

func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Embed returns cached vectors and sends only the misses to the inner embedder
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := e.key(text)
		if data, ok := e.cache.Get(key); ok {
			if vec, ok := decodeVector(data); ok {
				out[i] = vec
				continue
			}
			_ = e.cache.Delete(key)
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}

	for j, vec := range vecs {
		out[missIdx[j]] = vec
		// A failed cache write only costs a recomputation later
		_ = e.cache.Set(e.key(missTexts[j]), encodeVector(vec), e.ttl)
	}
	return out, nil
}

func (e *CachedEmbedder) key(text string) string {
	return cache.Key("embedding", e.inner.Name(), text)
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, bool) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, true
}
