package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/ppiankov/autoclaim/internal/pipeline"
	"github.com/sirupsen/logrus/hooks/test"
)

const claimDoc = `{"claim_number":"C100","policy_number":"P55","claimant_name":"Jordan Lee","date_of_loss":"2024-03-02","loss_description":"Rear-ended","estimated_repair_cost":4200}`

type fakeRunner struct {
	err    error
	notes  string
	claims []model.ClaimInfo
}

func (f *fakeRunner) Run(ctx context.Context, claim model.ClaimInfo) (*pipeline.Result, error) {
	f.claims = append(f.claims, claim)
	if f.err != nil {
		return nil, f.err
	}
	notes := f.notes
	if notes == "" {
		notes = "Covered under collision"
	}
	return &pipeline.Result{
		RunID: "run-1",
		Decision: model.ClaimDecision{
			ClaimNumber:       claim.ClaimNumber,
			Covered:           true,
			Deductible:        500,
			RecommendedPayout: 3700,
			Notes:             notes,
		},
		Queries:     []string{"collision coverage"},
		DocumentIDs: []string{"policy-1", "decl-P55"},
	}, nil
}

func newTestServer(runner Runner, cfg Config) *Server {
	logger, _ := test.NewNullLogger()
	return New(cfg, runner, logger)
}

func multipartBody(t *testing.T, field, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "claim.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(newTestServer(&fakeRunner{}, Config{}), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected healthz response %d %s", rec.Code, rec.Body.String())
	}
}

func TestDecideAPI_RawJSON(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(runner, Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(claimDoc))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Decision.ClaimNumber != "C100" || !got.Decision.Covered || got.Decision.RecommendedPayout != 3700 {
		t.Errorf("unexpected decision %+v", got.Decision)
	}
	if got.RunID != "run-1" {
		t.Errorf("unexpected run id %q", got.RunID)
	}
	if len(runner.claims) != 1 || runner.claims[0].PolicyNumber != "P55" {
		t.Errorf("claim not passed through: %+v", runner.claims)
	}
}

func TestDecideAPI_Multipart(t *testing.T) {
	s := newTestServer(&fakeRunner{}, Config{})

	body, contentType := multipartBody(t, ClaimFileField, claimDoc)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"claim_number":"C100"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestDecideAPI_Errors(t *testing.T) {
	notFound := &pipeline.StageError{
		Stage: pipeline.StageRetrievePolicyText,
		Err:   fmt.Errorf("%w: no declarations page for policy P55", model.ErrNotFound),
	}
	timeout := &pipeline.StageError{
		Stage: pipeline.StageGenerateRecommendation,
		Err:   fmt.Errorf("%w: run exceeded 3m0s: %w", model.ErrTimeout, context.DeadlineExceeded),
	}
	inference := &pipeline.StageError{
		Stage: pipeline.StageGenerateQueries,
		Err:   fmt.Errorf("%w: openai: 500", model.ErrInference),
	}
	cancelled := &pipeline.StageError{
		Stage: pipeline.StageRetrievePolicyText,
		Err:   fmt.Errorf("%w: llamacloud: %w", model.ErrRetrieval, context.Canceled),
	}
	deadline := &pipeline.StageError{
		Stage: pipeline.StageRetrievePolicyText,
		Err:   fmt.Errorf("%w: run exceeded 3m0s: %w", model.ErrTimeout, context.Canceled),
	}

	tests := []struct {
		name       string
		body       string
		runErr     error
		wantStatus int
		wantKind   string
		wantStage  string
		retryable  bool
	}{
		{"invalid json", "{claim", nil, http.StatusBadRequest, "validation error", "", false},
		{"missing field", `{"claim_number":"C1"}`, nil, http.StatusBadRequest, "validation error", "", false},
		{"no declarations", claimDoc, notFound, http.StatusNotFound, "not found", "retrieve_policy_text", false},
		{"timeout", claimDoc, timeout, http.StatusGatewayTimeout, "timeout", "generate_recommendation", true},
		{"inference", claimDoc, inference, http.StatusBadGateway, "inference error", "generate_queries", true},
		{"caller cancelled mid-stage", claimDoc, cancelled, http.StatusServiceUnavailable, "context canceled", "retrieve_policy_text", false},
		{"deadline during cancelled retrieval", claimDoc, deadline, http.StatusGatewayTimeout, "timeout", "retrieve_policy_text", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeRunner{err: tt.runErr}, Config{})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(tt.body))
			rec := serve(s, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var got errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if got.Kind != tt.wantKind || got.Stage != tt.wantStage || got.Retryable != tt.retryable {
				t.Errorf("unexpected error response %+v", got)
			}
			if got.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestDecideAPI_UploadLimit(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(runner, Config{MaxUploadBytes: 16})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(claimDoc))
	rec := serve(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(runner.claims) != 0 {
		t.Error("oversized claim must not reach the pipeline")
	}
}

func TestIndexPage(t *testing.T) {
	rec := serve(newTestServer(&fakeRunner{}, Config{}), httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Auto Insurance Claim Decision", `name="claim_file"`, `enctype="multipart/form-data"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in page", want)
		}
	}
	if strings.Contains(body, "Claim Approved") {
		t.Error("empty page should not show a verdict")
	}
}

func TestUploadPage(t *testing.T) {
	s := newTestServer(&fakeRunner{notes: "Covered <script>alert(1)</script>"}, Config{})

	body, contentType := multipartBody(t, ClaimFileField, claimDoc)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	page := rec.Body.String()
	for _, want := range []string{
		"Claim Approved",
		"<strong>Claim Number:</strong> C100",
		"<strong>Covered:</strong> Yes",
		"<strong>Deductible:</strong> $500.00",
		"<strong>Recommended Payout:</strong> $3700.00",
		"Run run-1",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("expected %q in page:\n%s", want, page)
		}
	}
	if strings.Contains(page, "<script>alert(1)</script>") {
		t.Error("model output must not be rendered as raw HTML")
	}
}

func TestUploadPage_Errors(t *testing.T) {
	s := newTestServer(&fakeRunner{}, Config{})

	body, contentType := multipartBody(t, "wrong_field", claimDoc)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve(s, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing claim_file upload") {
		t.Errorf("expected error banner, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("expected html error page, got %s", rec.Header().Get("Content-Type"))
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(&fakeRunner{}, Config{AllowAll: true})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/decisions", nil)
	req.Header.Set("Origin", "https://claims.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(s, req)

	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS headers for allowed origin")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", model.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: x", model.ErrRetrieval), http.StatusBadGateway},
		{fmt.Errorf("%w: x", model.ErrSchemaValidation), http.StatusBadGateway},
		{context.Canceled, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", model.ErrInference, context.Canceled), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", model.ErrTimeout, context.Canceled), http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(model.DefaultConfig().Server, model.DefaultConfig().Pipeline.Timeout)
	if cfg.Addr != ":8501" || cfg.MaxUploadBytes != 1<<20 || cfg.WriteTimeout <= model.DefaultConfig().Pipeline.Timeout {
		t.Errorf("unexpected server config %+v", cfg)
	}
}
