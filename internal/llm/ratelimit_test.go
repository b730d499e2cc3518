package llm

import (
	"context"
	"testing"

	"github.com/ppiankov/autoclaim/internal/worker"
)

func TestWithRateLimit_NilLimiter(t *testing.T) {
	p := &mockProvider{}
	if got := WithRateLimit(p, nil); got != Provider(p) {
		t.Error("Expected provider to be returned unchanged")
	}
}

func TestRateLimitedProvider_Complete(t *testing.T) {
	p := &mockProvider{content: "{}"}
	limited := WithRateLimit(p, worker.NewLimiter(1, 1))

	if limited.Name() != "mock" {
		t.Errorf("Expected wrapped name, got %s", limited.Name())
	}
	if _, err := limited.Complete(context.Background(), CompletionRequest{}); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	// The single token is spent; a cancelled context cannot wait for the next one
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := limited.Complete(ctx, CompletionRequest{}); err == nil {
		t.Fatal("Expected rate limit wait to fail on cancelled context")
	}
	if len(p.requests) != 1 {
		t.Errorf("Expected 1 request to reach the provider, got %d", len(p.requests))
	}
}
