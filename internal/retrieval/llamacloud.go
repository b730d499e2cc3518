package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/autoclaim/internal/cache"
	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/util"
	"github.com/ppiankov/autoclaim/internal/worker"
)

const (
	defaultLlamaCloudURL = "https://api.cloud.llamaindex.ai"
	pipelineIDTTL        = 24 * time.Hour
)

// LlamaCloudOptions configures a managed index
type LlamaCloudOptions struct {
	IndexName      string
	APIKey         string
	BaseURL        string
	OrganizationID string
	ProjectName    string
	DenseTopK      int
	HTTP           model.HTTPConfig
	Limiter        *worker.Limiter
	Cache          cache.Cache
}

// LlamaCloudIndex retrieves from a LlamaCloud pipeline looked up by name
type LlamaCloudIndex struct {
	opts       LlamaCloudOptions
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache

	mu         sync.Mutex
	pipelineID string
}

type llamaPipeline struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type llamaFilter struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Operator string `json:"operator"`
}

type llamaFilters struct {
	Filters   []llamaFilter `json:"filters"`
	Condition string        `json:"condition"`
}

type llamaRetrieveRequest struct {
	Query               string        `json:"query"`
	DenseSimilarityTopK int           `json:"dense_similarity_top_k,omitempty"`
	EnableReranking     bool          `json:"enable_reranking"`
	RerankTopN          int           `json:"rerank_top_n,omitempty"`
	SearchFilters       *llamaFilters `json:"search_filters,omitempty"`
}

type llamaRetrieveResponse struct {
	PipelineID     string `json:"pipeline_id"`
	RetrievalNodes []struct {
		Node struct {
			ID       string         `json:"id_"`
			Text     string         `json:"text"`
			Metadata map[string]any `json:"metadata"`
		} `json:"node"`
		Score float64 `json:"score"`
	} `json:"retrieval_nodes"`
}

// NewLlamaCloudIndex creates a managed index client. The pipeline id is resolved lazily.
func NewLlamaCloudIndex(opts LlamaCloudOptions) (*LlamaCloudIndex, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("LlamaCloud API key is required")
	}
	if opts.IndexName == "" {
		return nil, fmt.Errorf("LlamaCloud index name is required")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultLlamaCloudURL
	}

	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}

	return &LlamaCloudIndex{
		opts:       opts,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: util.NewHTTPClient(opts.HTTP, 0),
		cache:      c,
	}, nil
}

// Name returns the index name
func (l *LlamaCloudIndex) Name() string {
	return l.opts.IndexName
}

// IsAvailable checks the index name resolves to a pipeline
func (l *LlamaCloudIndex) IsAvailable(ctx context.Context) bool {
	_, err := l.resolvePipelineID(ctx)
	return err == nil
}

// Retrieve runs a retrieval against the pipeline
func (l *LlamaCloudIndex) Retrieve(ctx context.Context, q Query) ([]Document, error) {
	pipelineID, err := l.resolvePipelineID(ctx)
	if err != nil {
		return nil, err
	}

	reqBody := llamaRetrieveRequest{
		Query:               q.Text,
		DenseSimilarityTopK: q.TopK,
		EnableReranking:     q.TopN > 0,
		RerankTopN:          q.TopN,
	}
	if reqBody.DenseSimilarityTopK == 0 {
		reqBody.DenseSimilarityTopK = l.opts.DenseTopK
	}
	if len(q.Filters) > 0 {
		reqBody.SearchFilters = &llamaFilters{Condition: "and"}
		for _, key := range sortedKeys(q.Filters) {
			reqBody.SearchFilters.Filters = append(reqBody.SearchFilters.Filters, llamaFilter{
				Key:      key,
				Value:    q.Filters[key],
				Operator: "==",
			})
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp llamaRetrieveResponse
	path := "/api/v1/pipelines/" + url.PathEscape(pipelineID) + "/retrieve"
	if err := l.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		var apiErr *llamaAPIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			// The pipeline was deleted or recreated; look it up again next time
			l.forgetPipelineID(pipelineID)
		}
		return nil, err
	}

	docs := make([]Document, 0, len(resp.RetrievalNodes))
	for _, n := range resp.RetrievalNodes {
		docs = append(docs, Document{
			ID:       n.Node.ID,
			Text:     n.Node.Text,
			Metadata: stringifyMetadata(n.Node.Metadata),
			Score:    n.Score,
		})
	}
	if q.TopN > 0 && len(docs) > q.TopN {
		docs = docs[:q.TopN]
	}
	return docs, nil
}

// resolvePipelineID maps the index name to a pipeline id, caching the answer
func (l *LlamaCloudIndex) resolvePipelineID(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pipelineID != "" {
		return l.pipelineID, nil
	}

	key := l.pipelineKey()
	if data, ok := l.cache.Get(key); ok && len(data) > 0 {
		l.pipelineID = string(data)
		return l.pipelineID, nil
	}

	params := url.Values{}
	params.Set("pipeline_name", l.opts.IndexName)
	if l.opts.ProjectName != "" {
		params.Set("project_name", l.opts.ProjectName)
	}
	if l.opts.OrganizationID != "" {
		params.Set("organization_id", l.opts.OrganizationID)
	}

	var pipelines []llamaPipeline
	if err := l.do(ctx, http.MethodGet, "/api/v1/pipelines", params, nil, &pipelines); err != nil {
		return "", fmt.Errorf("look up index %q: %w", l.opts.IndexName, err)
	}

	for _, p := range pipelines {
		if p.Name == l.opts.IndexName && p.ID != "" {
			l.pipelineID = p.ID
			_ = l.cache.Set(key, []byte(p.ID), pipelineIDTTL)
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("index %q not found in project %q", l.opts.IndexName, l.opts.ProjectName)
}

// forgetPipelineID drops a pipeline id the service no longer knows
func (l *LlamaCloudIndex) forgetPipelineID(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pipelineID == id {
		l.pipelineID = ""
	}
	_ = l.cache.Delete(l.pipelineKey())
}

func (l *LlamaCloudIndex) pipelineKey() string {
	return cache.Key("llamacloud-pipeline", l.baseURL, l.opts.OrganizationID, l.opts.ProjectName, l.opts.IndexName)
}

// llamaAPIError is a non-200 answer from the service
type llamaAPIError struct {
	Status int
	Body   string
}

func (e *llamaAPIError) Error() string {
	return fmt.Sprintf("LlamaCloud API error (%d): %s", e.Status, e.Body)
}

// do sends an authenticated request and decodes the JSON response into out
func (l *LlamaCloudIndex) do(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	if err := l.opts.Limiter.Wait(ctx, "llamacloud"); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := l.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+l.opts.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &llamaAPIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func stringifyMetadata(md map[string]any) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for k, v := range md {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
