package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/autoclaim/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type mockProvider struct {
	content  string
	err      error
	requests []CompletionRequest
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) IsAvailable(ctx context.Context) bool { return true }

func (m *mockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &CompletionResponse{Content: m.content}, nil
}

func newTestGenerator(p Provider) *Generator {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewGenerator(p, Config{Model: "test-model", MaxTokens: 100}, logger)
}

func TestGenerate_PolicyRecommendation(t *testing.T) {
	provider := &mockProvider{content: "```json\n" +
		`{"policy_section": "Collision", "recommendation_summary": "Covered under collision", "deductible": 500, "settlement_amount": 3700}` +
		"\n```"}
	g := newTestGenerator(provider)

	rec, err := Generate[model.PolicyRecommendation](context.Background(), g, PolicyRecommendationPrompt, map[string]string{
		"claim_info":  `{"claim_number":"C100"}`,
		"policy_text": "Collision coverage applies.",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if rec.PolicySection != "Collision" || rec.Deductible == nil || *rec.Deductible != 500 {
		t.Errorf("Unexpected recommendation: %+v", rec)
	}
	if rec.SettlementAmount == nil || *rec.SettlementAmount != 3700 {
		t.Errorf("Unexpected settlement: %v", rec.SettlementAmount)
	}

	if len(provider.requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(provider.requests))
	}
	req := provider.requests[0]
	if req.Model != "test-model" || req.MaxTokens != 100 {
		t.Errorf("Generator config not applied: %+v", req)
	}
	if req.Schema == nil || req.Schema.Name != "PolicyRecommendation" {
		t.Errorf("Expected schema in request, got %+v", req.Schema)
	}
	if !strings.Contains(req.Messages[0].Content, `"recommendation_summary"`) {
		t.Error("Expected schema JSON in system message")
	}
	if !strings.Contains(req.Messages[1].Content, "Collision coverage applies.") {
		t.Error("Expected rendered policy text in user message")
	}
}

func TestGenerate_PolicyQueriesMayBeEmpty(t *testing.T) {
	g := newTestGenerator(&mockProvider{content: `{}`})

	q, err := Generate[model.PolicyQueries](context.Background(), g, PolicyQueriesPrompt, map[string]string{"claim_info": "{}"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(q.Queries) != 0 {
		t.Errorf("Expected no queries, got %v", q.Queries)
	}
}

func TestGenerate_SchemaValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"prose", "I think the claim is covered.", "no JSON object"},
		{"missing required", `{"policy_section": "Collision"}`, "recommendation_summary"},
		{"null required", `{"policy_section": null, "recommendation_summary": "ok"}`, "policy_section"},
		{"wrong type", `{"policy_section": "A", "recommendation_summary": "ok", "deductible": "five hundred"}`, "decode response"},
		{"truncated", `{"policy_section": "A", "recommendation_summary": "ok"`, "no JSON object"},
		{"negative settlement", `{"policy_section": "A", "recommendation_summary": "ok", "settlement_amount": -10}`, "settlement_amount must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(&mockProvider{content: tt.content})

			_, err := Generate[model.PolicyRecommendation](context.Background(), g, PolicyRecommendationPrompt, map[string]string{
				"claim_info":  "{}",
				"policy_text": "",
			})
			if !errors.Is(err, model.ErrSchemaValidation) {
				t.Fatalf("Expected ErrSchemaValidation, got %v", err)
			}
			if !model.IsRetryable(err) {
				t.Error("Expected schema validation failure to be retryable")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected %q in %v", tt.wantMsg, err)
			}
		})
	}
}

func TestGenerate_InferenceError(t *testing.T) {
	cause := errors.New("connection reset")
	g := newTestGenerator(&mockProvider{err: cause})

	_, err := Generate[model.PolicyQueries](context.Background(), g, PolicyQueriesPrompt, map[string]string{"claim_info": "{}"})
	if !errors.Is(err, model.ErrInference) {
		t.Fatalf("Expected ErrInference, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected cause to be preserved, got %v", err)
	}
}

func TestGenerate_MissingPromptArgument(t *testing.T) {
	provider := &mockProvider{content: `{}`}
	g := newTestGenerator(provider)

	_, err := Generate[model.PolicyRecommendation](context.Background(), g, PolicyRecommendationPrompt, map[string]string{"claim_info": "{}"})
	if err == nil {
		t.Fatal("Expected error for missing policy_text")
	}
	if len(provider.requests) != 0 {
		t.Error("Expected no provider call when the prompt cannot render")
	}
}

type positiveScore struct {
	Score int `json:"score"`
}

func (p *positiveScore) Validate() error {
	if p.Score <= 0 {
		return errors.New("score must be positive")
	}
	return nil
}

func TestDecodeStructured_RunsValidator(t *testing.T) {
	var out positiveScore
	err := DecodeStructured(`{"score": 0}`, model.PolicyQueries{}.JSONSchema(), &out)
	if err == nil || !strings.Contains(err.Error(), "must be positive") {
		t.Fatalf("Expected validator error, got %v", err)
	}

	if err := DecodeStructured(`Here you go: {"score": 3} Thanks!`, model.PolicyQueries{}.JSONSchema(), &out); err != nil {
		t.Fatalf("Expected surrounding text to be ignored, got %v", err)
	}
	if out.Score != 3 {
		t.Errorf("Expected score 3, got %d", out.Score)
	}
}
